package persistence

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	name   string
	ids    []uint32
	values []float32
}

func writeSample(s sample) func(w *BinaryWriter) error {
	return func(w *BinaryWriter) error {
		w.WriteString(s.name)
		w.WriteUint32(uint32(len(s.ids)))
		w.WriteUint32Slice(s.ids)
		w.WriteUint32(uint32(len(s.values)))
		w.WriteFloat32Slice(s.values)
		return nil
	}
}

func readSample(out *sample) func(r *SliceReader) error {
	return func(r *SliceReader) error {
		var err error
		if out.name, err = r.ReadString(); err != nil {
			return err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return err
		}
		if out.ids, err = r.ReadUint32Slice(int(n)); err != nil {
			return err
		}
		m, err := r.ReadUint32()
		if err != nil {
			return err
		}
		if int(m) > r.Remaining()/4 {
			return ErrTruncated
		}
		out.values = make([]float32, m)
		return r.ReadFloat32SliceInto(out.values)
	}
}

func newSample() sample {
	s := sample{name: "songs"}
	for i := 0; i < 512; i++ {
		s.ids = append(s.ids, uint32(i%7))
		s.values = append(s.values, float32(i%13)*0.5)
	}
	return s
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			in := newSample()
			data, err := Encode(KindKDTree, c, writeSample(in))
			require.NoError(t, err)

			var out sample
			require.NoError(t, Decode(data, KindKDTree, readSample(&out)))
			assert.Equal(t, in, out)
		})
	}
}

func TestEncode_IncompressibleLZ4FallsBack(t *testing.T) {
	data, err := Encode(KindHNSW, CompressionLZ4, func(w *BinaryWriter) error {
		w.WriteUint8(42)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, Compression(data[9]))

	require.NoError(t, Decode(data, KindHNSW, func(r *SliceReader) error {
		v, err := r.ReadUint8()
		assert.Equal(t, uint8(42), v)
		return err
	}))
}

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, 40, headerSize)
}

func TestDecode_Corruption(t *testing.T) {
	in := newSample()
	good, err := Encode(KindFeatureStore, CompressionZSTD, writeSample(in))
	require.NoError(t, err)

	mutate := func(fn func(b []byte) []byte) []byte {
		b := make([]byte, len(good))
		copy(b, good)
		return fn(b)
	}

	cases := map[string][]byte{
		"empty":     {},
		"short":     good[:10],
		"magic":     mutate(func(b []byte) []byte { b[0] ^= 0xFF; return b }),
		"version":   mutate(func(b []byte) []byte { b[4] ^= 0xFF; return b }),
		"truncated": good[:len(good)-3],
		"payload":   mutate(func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }),
		"checksum": mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:], binary.LittleEndian.Uint32(b[12:])+1)
			return b
		}),
		"compression": mutate(func(b []byte) []byte { b[9] = 9; return b }),
		"oversized": mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[16:], 1<<40)
			return b
		}),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			var out sample
			err := Decode(data, KindFeatureStore, readSample(&out))
			require.Error(t, err)
			assert.True(t, index.IsCorrupt(err), "%v", err)
		})
	}

	t.Run("wrong kind", func(t *testing.T) {
		var out sample
		err := Decode(good, KindHNSW, readSample(&out))
		assert.True(t, index.IsCorrupt(err))
		assert.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("checksum mismatch is exposed", func(t *testing.T) {
		bad := mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:], 0)
			return b
		})
		var mismatch *ChecksumMismatchError
		err := Decode(bad, KindFeatureStore, readSample(&sample{}))
		assert.True(t, errors.As(err, &mismatch))
	})
}

func TestDecode_TrailingBytes(t *testing.T) {
	data, err := Encode(KindKDTree, CompressionNone, func(w *BinaryWriter) error {
		w.WriteUint32(1)
		w.WriteUint32(2)
		return nil
	})
	require.NoError(t, err)

	err = Decode(data, KindKDTree, func(r *SliceReader) error {
		_, err := r.ReadUint32()
		return err
	})
	assert.True(t, index.IsCorrupt(err))
}

func TestDecode_ReaderErrorsAreCorrupt(t *testing.T) {
	data, err := Encode(KindKDTree, CompressionNone, func(w *BinaryWriter) error { return nil })
	require.NoError(t, err)

	err = Decode(data, KindKDTree, func(r *SliceReader) error {
		_, err := r.ReadUint64()
		return err
	})
	assert.True(t, index.IsCorrupt(err))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncode_WriterError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Encode(KindKDTree, CompressionNone, func(w *BinaryWriter) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	err := Load(ctx, store, "kdtree.vrec", KindKDTree, readSample(&sample{}))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.False(t, index.IsCorrupt(err))

	in := newSample()
	n, err := Save(ctx, store, "kdtree.vrec", KindKDTree, CompressionLZ4, writeSample(in))
	require.NoError(t, err)
	assert.Positive(t, n)

	var out sample
	require.NoError(t, Load(ctx, store, "kdtree.vrec", KindKDTree, readSample(&out)))
	assert.Equal(t, in, out)

	require.True(t, store.Corrupt("kdtree.vrec", n-1))
	err = Load(ctx, store, "kdtree.vrec", KindKDTree, readSample(&sample{}))
	assert.True(t, index.IsCorrupt(err))
}

type countingPacer struct {
	bytes int
	err   error
}

func (p *countingPacer) AcquireIO(ctx context.Context, n int) error {
	if p.err != nil {
		return p.err
	}
	p.bytes += n
	return ctx.Err()
}

func TestSaveLoad_Pacer(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	pacer := &countingPacer{}

	n, err := Save(ctx, store, "hnsw.vrec", KindHNSW, CompressionZSTD, writeSample(newSample()), WithPacer(pacer))
	require.NoError(t, err)
	assert.Equal(t, n, pacer.bytes)

	var out sample
	require.NoError(t, Load(ctx, store, "hnsw.vrec", KindHNSW, readSample(&out), WithPacer(pacer)))
	assert.Equal(t, 2*n, pacer.bytes)

	// A refused budget is neither stored nor reported as corruption.
	limit := errors.New("budget exhausted")
	_, err = Save(ctx, store, "other.vrec", KindHNSW, CompressionNone, writeSample(newSample()), WithPacer(&countingPacer{err: limit}))
	assert.ErrorIs(t, err, limit)
	_, err = blobstore.ReadAll(ctx, store, "other.vrec")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	err = Load(ctx, store, "hnsw.vrec", KindHNSW, readSample(&sample{}), WithPacer(&countingPacer{err: limit}))
	assert.ErrorIs(t, err, limit)
	assert.False(t, index.IsCorrupt(err))
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{
		"":     CompressionNone,
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZSTD,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

func TestSliceReader_Bounds(t *testing.T) {
	w := NewBinaryWriter()
	w.WriteUint32(100)
	r := NewSliceReader(w.Bytes())

	_, err := r.ReadLenBytes()
	assert.ErrorIs(t, err, ErrTruncated)

	r = NewSliceReader([]byte{1, 2, 3})
	_, err = r.ReadUint32Slice(1)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = r.ReadUint32Slice(-1)
	assert.ErrorIs(t, err, ErrTruncated)
}
