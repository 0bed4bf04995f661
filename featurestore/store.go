package featurestore

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/vecrec/codec"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/internal/conv"
)

// defaultChunkRows is the number of rows per backing chunk.
const defaultChunkRows = 1024

var (
	// ErrZeroDimension is returned when a vector of length 0 is appended.
	ErrZeroDimension = errors.New("featurestore: vectors must have at least one dimension")

	// ErrDuplicateKey is returned when an appended key already exists.
	ErrDuplicateKey = errors.New("featurestore: duplicate key")
)

// Metadata is an opaque key/value record attached to an item.
type Metadata map[string]string

// Item is a vector together with its key and metadata record.
type Item struct {
	Key      string
	Vector   []float32
	Metadata Metadata
}

// Options configures a Store.
type Options struct {
	// Dimension fixes the vector dimension up front. If 0, the first append
	// sets it.
	Dimension int

	// Codec encodes metadata records in the persisted form.
	// Default: codec.Default
	Codec codec.Codec

	// ChunkRows is the number of rows allocated per backing chunk.
	ChunkRows int
}

// DefaultOptions contains the default store options.
var DefaultOptions = Options{
	Codec:     codec.Default,
	ChunkRows: defaultChunkRows,
}

// Store is an append-only vector collection. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	dim       int
	chunkRows int
	count     int

	// chunks are allocated at full size and never grown, so row slices
	// remain valid after later appends.
	chunks [][]float32

	keys  []string
	byKey map[string]uint32
	meta  []Metadata

	codec codec.Codec
}

// New creates an empty store.
func New(optFns ...func(o *Options)) *Store {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.ChunkRows <= 0 {
		opts.ChunkRows = defaultChunkRows
	}

	return &Store{
		dim:       opts.Dimension,
		chunkRows: opts.ChunkRows,
		byKey:     make(map[string]uint32),
		codec:     opts.Codec,
	}
}

// Dimension returns the vector dimension, or 0 before the first append.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Count returns the number of stored vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Codec returns the metadata codec.
func (s *Store) Codec() codec.Codec { return s.codec }

// Append stores vectors and returns their identities, which are contiguous
// starting at the previous Count. Either every vector is stored or none is.
func (s *Store) Append(vectors [][]float32) ([]uint32, error) {
	items := make([]Item, len(vectors))
	for i, v := range vectors {
		items[i] = Item{Vector: v}
	}
	return s.AppendItems(items)
}

// AppendItems stores items and returns their identities. Non-empty keys must
// be unique across the store. Either every item is stored or none is.
func (s *Store) AppendItems(items []Item) ([]uint32, error) {
	if len(items) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(items[0].Vector)
	}
	if dim == 0 {
		return nil, ErrZeroDimension
	}

	batchKeys := make(map[string]struct{}, len(items))
	for _, it := range items {
		if len(it.Vector) != dim {
			return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(it.Vector)}
		}
		if it.Key == "" {
			continue
		}
		if _, ok := s.byKey[it.Key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, it.Key)
		}
		if _, ok := batchKeys[it.Key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, it.Key)
		}
		batchKeys[it.Key] = struct{}{}
	}

	if _, err := conv.IntToUint32(s.count + len(items)); err != nil {
		return nil, fmt.Errorf("featurestore: identity space exhausted: %w", err)
	}

	s.dim = dim
	ids := make([]uint32, len(items))
	for i, it := range items {
		id := uint32(s.count)
		copy(s.row(id, true), it.Vector)

		s.keys = append(s.keys, it.Key)
		if it.Key != "" {
			s.byKey[it.Key] = id
		}
		s.meta = append(s.meta, cloneMetadata(it.Metadata))

		s.count++
		ids[i] = id
	}

	return ids, nil
}

// row returns the backing slice for id, allocating a chunk when grow is set.
// Callers hold s.mu.
func (s *Store) row(id uint32, grow bool) []float32 {
	c := int(id) / s.chunkRows
	off := (int(id) % s.chunkRows) * s.dim
	if grow && c == len(s.chunks) {
		s.chunks = append(s.chunks, make([]float32, s.chunkRows*s.dim))
	}
	return s.chunks[c][off : off+s.dim : off+s.dim]
}

func (s *Store) checkID(id uint32) error {
	if int(id) >= s.count {
		return &index.ErrUnknownIdentity{ID: id, Count: s.count}
	}
	return nil
}

// Get returns a copy of the vector stored under id.
func (s *Store) Get(id uint32) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkID(id); err != nil {
		return nil, err
	}
	v := s.row(id, false)
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

// Key returns the key stored under id ("" if the item had none).
func (s *Store) Key(id uint32) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkID(id); err != nil {
		return "", err
	}
	return s.keys[id], nil
}

// Metadata returns a copy of the metadata record stored under id.
func (s *Store) Metadata(id uint32) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkID(id); err != nil {
		return nil, err
	}
	return cloneMetadata(s.meta[id]), nil
}

// Lookup returns the identity stored under key.
func (s *Store) Lookup(key string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	return id, ok
}

// Contains reports whether key is stored.
func (s *Store) Contains(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Snapshot returns a read-only view bounded at the current Count.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Snapshot{
		dim:       s.dim,
		count:     s.count,
		chunkRows: s.chunkRows,
		chunks:    append([][]float32(nil), s.chunks...),
	}
}

func cloneMetadata(m Metadata) Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Snapshot is an immutable view of a Store at a fixed count. It implements
// index.VectorSource and needs no locking: rows below count never change.
type Snapshot struct {
	dim       int
	count     int
	chunkRows int
	chunks    [][]float32
}

var _ index.VectorSource = (*Snapshot)(nil)

// Dimension returns the vector dimension.
func (s *Snapshot) Dimension() int { return s.dim }

// Count returns the number of vectors visible in the snapshot.
func (s *Snapshot) Count() int { return s.count }

// Vector returns the stored vector for id without copying.
func (s *Snapshot) Vector(id uint32) ([]float32, error) {
	if int(id) >= s.count {
		return nil, &index.ErrUnknownIdentity{ID: id, Count: s.count}
	}
	c := int(id) / s.chunkRows
	off := (int(id) % s.chunkRows) * s.dim
	return s.chunks[c][off : off+s.dim : off+s.dim], nil
}
