package featurestore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecrec/codec"
	"github.com/hupe1980/vecrec/internal/conv"
	"github.com/hupe1980/vecrec/persistence"
)

// schemaVersion is the feature store payload version inside the envelope.
const schemaVersion = 1

var errSchema = errors.New("featurestore: invalid payload")

// WriteTo serializes the store:
//
//	version u32 | codec string | dimension u32 | count u64 |
//	count*dimension f32 | count * (key string, metadata bytes)
func (s *Store) WriteTo(w *persistence.BinaryWriter) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w.WriteUint32(schemaVersion)
	w.WriteString(s.codec.Name())
	w.WriteUint32(uint32(s.dim))
	w.WriteUint64(uint64(s.count))

	for c := 0; c*s.chunkRows < s.count; c++ {
		rows := min(s.chunkRows, s.count-c*s.chunkRows)
		w.WriteFloat32Slice(s.chunks[c][:rows*s.dim])
	}

	for i := 0; i < s.count; i++ {
		w.WriteString(s.keys[i])
		if s.meta[i] == nil {
			w.WriteBytes(nil)
			continue
		}
		b, err := s.codec.Marshal(s.meta[i])
		if err != nil {
			return fmt.Errorf("featurestore: encode metadata %d: %w", i, err)
		}
		w.WriteBytes(b)
	}

	return w.Err()
}

// ReadFeatureStore decodes a store written by WriteTo.
func ReadFeatureStore(r *persistence.SliceReader, optFns ...func(o *Options)) (*Store, error) {
	version, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if version != schemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", errSchema, version)
	}

	codecName, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", errSchema, codecName)
	}

	dim32, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	count64, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	count, err := conv.Uint64ToInt(count64)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSchema, err)
	}
	dim := int(dim32)
	if count > 0 && dim == 0 {
		return nil, fmt.Errorf("%w: %d rows without a dimension", errSchema, count)
	}
	if count64 > uint64(r.Remaining()) || (dim > 0 && count > r.Remaining()/(4*dim)) {
		return nil, fmt.Errorf("%w: %d x %d vectors", persistence.ErrTruncated, count, dim)
	}

	s := New(append(optFns, func(o *Options) {
		o.Dimension = dim
		o.Codec = c
	})...)

	s.count = count
	for done := 0; done < count; done += s.chunkRows {
		chunk := make([]float32, s.chunkRows*dim)
		rows := min(s.chunkRows, count-done)
		if err := r.ReadFloat32SliceInto(chunk[:rows*dim]); err != nil {
			return nil, err
		}
		s.chunks = append(s.chunks, chunk)
	}

	s.keys = make([]string, count)
	s.meta = make([]Metadata, count)
	for i := 0; i < count; i++ {
		key, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if key != "" {
			if _, dup := s.byKey[key]; dup {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
			}
			s.byKey[key] = uint32(i)
		}
		s.keys[i] = key

		raw, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			continue
		}
		var m Metadata
		if err := c.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("featurestore: decode metadata %d: %w", i, err)
		}
		s.meta[i] = m
	}

	return s, nil
}
