package featurestore

import (
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/vecrec/codec"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsContiguousIdentities(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, s.Dimension())

	ids, err := s.Append([][]float32{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)
	assert.Equal(t, 3, s.Dimension())

	ids, err = s.Append([][]float32{{7, 8, 9}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, ids)
	assert.Equal(t, 3, s.Count())

	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, v)

	ids, err = s.Append(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAppendDimensionMismatchIsAtomic(t *testing.T) {
	s := New()
	_, err := s.Append([][]float32{{1, 2}})
	require.NoError(t, err)

	_, err = s.Append([][]float32{{3, 4}, {5, 6, 7}})
	var dm *index.ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
	assert.Equal(t, 1, s.Count())
}

func TestFixedDimension(t *testing.T) {
	s := New(func(o *Options) { o.Dimension = 4 })
	_, err := s.Append([][]float32{{1, 2}})
	var dm *index.ErrDimensionMismatch
	assert.True(t, errors.As(err, &dm))

	_, err = New().Append([][]float32{{}})
	assert.ErrorIs(t, err, ErrZeroDimension)
}

func TestGetUnknownIdentity(t *testing.T) {
	s := New()
	_, err := s.Append([][]float32{{1}})
	require.NoError(t, err)

	_, err = s.Get(1)
	var unk *index.ErrUnknownIdentity
	require.True(t, errors.As(err, &unk))
	assert.Equal(t, uint32(1), unk.ID)
	assert.Equal(t, 1, unk.Count)

	_, err = s.Metadata(7)
	assert.True(t, errors.As(err, &unk))
	_, err = s.Key(7)
	assert.True(t, errors.As(err, &unk))
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	_, err := s.Append([][]float32{{1, 2}})
	require.NoError(t, err)

	v, _ := s.Get(0)
	v[0] = 99

	again, _ := s.Get(0)
	assert.Equal(t, float32(1), again[0])
}

func TestItemsKeysAndMetadata(t *testing.T) {
	s := New()
	ids, err := s.AppendItems([]Item{
		{Key: "t1", Vector: []float32{1, 0}, Metadata: Metadata{"title": "So What"}},
		{Key: "t2", Vector: []float32{0, 1}},
		{Vector: []float32{1, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids)

	id, ok := s.Lookup("t2")
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)
	assert.True(t, s.Contains("t1"))
	assert.False(t, s.Contains(""))

	m, err := s.Metadata(0)
	require.NoError(t, err)
	assert.Equal(t, "So What", m["title"])
	m["title"] = "changed"
	m, _ = s.Metadata(0)
	assert.Equal(t, "So What", m["title"])

	m, err = s.Metadata(1)
	require.NoError(t, err)
	assert.Nil(t, m)

	key, err := s.Key(2)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestDuplicateKeysRejected(t *testing.T) {
	s := New()
	_, err := s.AppendItems([]Item{{Key: "a", Vector: []float32{1}}})
	require.NoError(t, err)

	_, err = s.AppendItems([]Item{{Key: "b", Vector: []float32{2}}, {Key: "a", Vector: []float32{3}}})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = s.AppendItems([]Item{{Key: "c", Vector: []float32{2}}, {Key: "c", Vector: []float32{3}}})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	assert.Equal(t, 1, s.Count())
	assert.False(t, s.Contains("b"))
}

func TestSnapshotIsBoundedAndStable(t *testing.T) {
	s := New(func(o *Options) { o.ChunkRows = 2 })
	_, err := s.Append([][]float32{{0}, {1}, {2}})
	require.NoError(t, err)

	snap := s.Snapshot()
	v2, err := snap.Vector(2)
	require.NoError(t, err)

	// Appends past the chunk boundary must not move existing rows.
	for i := 3; i < 20; i++ {
		_, err := s.Append([][]float32{{float32(i)}})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, snap.Count())
	assert.Equal(t, 1, snap.Dimension())
	assert.Equal(t, []float32{2}, v2)

	_, err = snap.Vector(3)
	var unk *index.ErrUnknownIdentity
	assert.True(t, errors.As(err, &unk))

	later := s.Snapshot()
	v19, err := later.Vector(19)
	require.NoError(t, err)
	assert.Equal(t, []float32{19}, v19)

	again, _ := later.Vector(2)
	assert.Same(t, &v2[0], &again[0])
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	s := New(func(o *Options) { o.ChunkRows = 8 })
	_, err := s.Append([][]float32{{0, 0}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i < 200; i++ {
			_, _ = s.Append([][]float32{{float32(i), float32(i)}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := s.Snapshot()
			for id := 0; id < snap.Count(); id++ {
				v, err := snap.Vector(uint32(id))
				if assert.NoError(t, err) {
					assert.Equal(t, float32(id), v[0])
				}
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 200, s.Count())
}

func TestPersistRoundTrip(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			s := New(func(o *Options) {
				o.Codec = c
				o.ChunkRows = 3
			})
			for i := 0; i < 10; i++ {
				item := Item{Vector: []float32{float32(i), float32(-i)}}
				if i%2 == 0 {
					item.Key = string(rune('a' + i))
					item.Metadata = Metadata{"n": item.Key}
				}
				_, err := s.AppendItems([]Item{item})
				require.NoError(t, err)
			}

			w := persistence.NewBinaryWriter()
			require.NoError(t, s.WriteTo(w))

			r := persistence.NewSliceReader(w.Bytes())
			loaded, err := ReadFeatureStore(r)
			require.NoError(t, err)
			assert.Zero(t, r.Remaining())

			assert.Equal(t, c.Name(), loaded.Codec().Name())
			assert.Equal(t, s.Count(), loaded.Count())
			assert.Equal(t, s.Dimension(), loaded.Dimension())
			for i := 0; i < s.Count(); i++ {
				want, _ := s.Get(uint32(i))
				got, err := loaded.Get(uint32(i))
				require.NoError(t, err)
				assert.Equal(t, want, got)

				wm, _ := s.Metadata(uint32(i))
				gm, _ := loaded.Metadata(uint32(i))
				assert.Equal(t, wm, gm)
			}

			id, ok := loaded.Lookup("e")
			require.True(t, ok)
			assert.Equal(t, uint32(4), id)

			// The loaded store keeps accepting appends.
			ids, err := loaded.Append([][]float32{{1, 1}})
			require.NoError(t, err)
			assert.Equal(t, []uint32{10}, ids)
		})
	}
}

func TestReadFeatureStoreEmpty(t *testing.T) {
	w := persistence.NewBinaryWriter()
	require.NoError(t, New().WriteTo(w))

	loaded, err := ReadFeatureStore(persistence.NewSliceReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Count())
}

func TestReadFeatureStoreRejectsBadPayloads(t *testing.T) {
	s := New()
	_, err := s.AppendItems([]Item{{Key: "x", Vector: []float32{1, 2}}})
	require.NoError(t, err)
	w := persistence.NewBinaryWriter()
	require.NoError(t, s.WriteTo(w))
	good := w.Bytes()

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadFeatureStore(persistence.NewSliceReader(good[:len(good)-2]))
		assert.Error(t, err)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[0] = 9
		_, err := ReadFeatureStore(persistence.NewSliceReader(bad))
		assert.ErrorIs(t, err, errSchema)
	})

	t.Run("huge count", func(t *testing.T) {
		bw := persistence.NewBinaryWriter()
		bw.WriteUint32(schemaVersion)
		bw.WriteString("json")
		bw.WriteUint32(4)
		bw.WriteUint64(1 << 40)
		_, err := ReadFeatureStore(persistence.NewSliceReader(bw.Bytes()))
		assert.ErrorIs(t, err, persistence.ErrTruncated)
	})

	t.Run("codec", func(t *testing.T) {
		bw := persistence.NewBinaryWriter()
		bw.WriteUint32(schemaVersion)
		bw.WriteString("gob")
		_, err := ReadFeatureStore(persistence.NewSliceReader(bw.Bytes()))
		assert.ErrorIs(t, err, errSchema)
	})
}
