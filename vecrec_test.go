package vecrec

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/distance"
	"github.com/hupe1980/vecrec/featurestore"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/index/hnsw"
	"github.com/hupe1980/vecrec/persistence"
	"github.com/hupe1980/vecrec/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(vecs [][]float32) []featurestore.Item {
	out := make([]featurestore.Item, len(vecs))
	for i, v := range vecs {
		out[i] = featurestore.Item{
			Key:      fmt.Sprintf("item-%d", i),
			Vector:   v,
			Metadata: featurestore.Metadata{"title": fmt.Sprintf("Title %d", i)},
		}
	}
	return out
}

func openWith(t *testing.T, vecs [][]float32, optFns ...Option) (*DB, *blobstore.MemoryStore) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	db, err := Open(context.Background(), append([]Option{WithBlobStore(store), WithLogger(nil)}, optFns...)...)
	require.NoError(t, err)
	if len(vecs) > 0 {
		_, err = db.Ingest(context.Background(), items(vecs))
		require.NoError(t, err)
	}
	return db, store
}

func TestScores(t *testing.T) {
	scores := Scores([]float32{0.1, 0.2, 0.4, 0.5})

	var got []string
	for _, s := range scores {
		got = append(got, Entry{Score: s}.ScoreString())
	}
	assert.Equal(t, []string{"80.00%", "60.00%", "20.00%", "0.00%"}, got)

	assert.Empty(t, Scores(nil))
	assert.Equal(t, []float64{100, 100}, Scores([]float32{0, 0}))
}

func TestRecommendExactMatchesBruteForce(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(4711)
	vecs := rng.UniformRangeVectors(100, 32)
	db, _ := openWith(t, vecs)

	recs, err := db.Recommend(ctx, 0, 5)
	require.NoError(t, err)
	require.NoError(t, recs.ExactErr)
	require.NoError(t, recs.ApproximateErr)

	// Brute force over the other 99.
	want := testutil.ExactTopK(testutil.NewSliceSource(vecs), vecs[0], 6, distance.L2)
	var wantIDs []uint32
	for _, r := range want {
		if r.ID != 0 {
			wantIDs = append(wantIDs, r.ID)
		}
	}
	wantIDs = wantIDs[:5]

	gotIDs := make([]uint32, len(recs.Exact))
	for i, e := range recs.Exact {
		gotIDs[i] = e.ID
	}
	assert.Equal(t, wantIDs, gotIDs)

	require.Len(t, recs.Approximate, 5)
	for _, e := range recs.Approximate {
		assert.NotEqual(t, uint32(0), e.ID)
	}

	assert.InDelta(t, 0, recs.Exact[len(recs.Exact)-1].Score, 1e-9)
	assert.Equal(t, "item-"+fmt.Sprint(recs.Exact[0].ID), recs.Exact[0].Key)
	assert.Equal(t, fmt.Sprintf("Title %d", recs.Exact[0].ID), recs.Exact[0].Metadata["title"])
}

func TestRecommendUnknownIdentity(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(1)
	db, store := openWith(t, rng.UniformRangeVectors(20, 4))

	before := db.Stats()
	blobs, err := store.List(ctx, "")
	require.NoError(t, err)

	_, err = db.Recommend(ctx, 20, 5)
	var ui *ErrUnknownIdentity
	require.True(t, errors.As(err, &ui))
	assert.Equal(t, uint32(20), ui.ID)
	assert.Equal(t, 20, ui.Count)

	assert.Equal(t, before, db.Stats())
	after, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, blobs, after)
}

func TestRecommendEmptyDB(t *testing.T) {
	db, _ := openWith(t, nil)

	_, err := db.Recommend(context.Background(), 0, 5)
	var ui *ErrUnknownIdentity
	assert.True(t, errors.As(err, &ui))
	assert.Equal(t, index.StateEmpty, db.Stats().Exact.State)
}

func TestRecommendValidation(t *testing.T) {
	db, _ := openWith(t, [][]float32{{1, 2}, {3, 4}})
	_, err := db.Recommend(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestRecommendExclude(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(2)
	db, _ := openWith(t, rng.UniformRangeVectors(50, 4))

	first, err := db.Recommend(ctx, 3, 4)
	require.NoError(t, err)
	excluded := []uint32{first.Exact[0].ID, first.Exact[1].ID}

	recs, err := db.Recommend(ctx, 3, 4, WithExclude(excluded...), RecommendEF(64))
	require.NoError(t, err)
	require.Len(t, recs.Exact, 4)
	require.Len(t, recs.Approximate, 4)
	for _, list := range [][]Entry{recs.Exact, recs.Approximate} {
		for _, e := range list {
			assert.NotContains(t, append(excluded, 3), e.ID)
		}
	}
	assert.Equal(t, first.Exact[2].ID, recs.Exact[0].ID)
}

func TestRecommendFewerItemsThanK(t *testing.T) {
	db, _ := openWith(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})

	recs, err := db.Recommend(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, recs.Exact, 2)
	assert.Len(t, recs.Approximate, 2)
}

func TestRecommendDegraded(t *testing.T) {
	rng := testutil.NewRNG(3)
	db, _ := openWith(t, rng.UniformRangeVectors(30, 4))
	db.approx = hnsw.New()

	recs, err := db.Recommend(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Len(t, recs.Exact, 3)
	assert.Empty(t, recs.Approximate)
	assert.ErrorIs(t, recs.ApproximateErr, ErrIndexNotBuilt)
	assert.NoError(t, recs.ExactErr)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	db, _ := openWith(t, nil, WithMetricsCollector(metrics))

	res, err := db.Ingest(ctx, []featurestore.Item{
		{Key: "a", Vector: []float32{1, 0}},
		{Key: "b", Vector: nil},
		{Key: "a", Vector: []float32{0, 1}},
		{Key: "c", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, res.IDs)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.Skipped)

	res, err = db.Ingest(ctx, []featurestore.Item{
		{Key: "c", Vector: []float32{5, 5}},
		{Key: "d", Vector: []float32{1, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, res.IDs)
	assert.Equal(t, 1, res.Skipped)

	s := db.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2, s.Dimension)
	assert.Equal(t, index.StateUpdated, s.Exact.State)
	assert.Equal(t, index.StateUpdated, s.Approximate.State)
	assert.Equal(t, 3, s.Approximate.Count)

	_, err = db.Ingest(ctx, []featurestore.Item{{Key: "e", Vector: []float32{1, 2, 3}}})
	var dm *ErrDimensionMismatch
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, db.Stats().Count)

	st := metrics.GetStats()
	assert.Equal(t, int64(2), st.IngestCount)
	assert.Equal(t, int64(3), st.IngestAdded)
	assert.Equal(t, int64(3), st.IngestSkipped)
	assert.Positive(t, st.PersistCount)
}

func TestIngestCapacityRebuild(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(5)
	vecs := rng.UniformRangeVectors(40, 4)

	db, _ := openWith(t, vecs[:5], WithHNSW(func(o *hnsw.Options) { o.Capacity = 10 }))
	assert.Equal(t, 10, db.Stats().Approximate.Capacity)

	more := items(vecs)[5:]
	res, err := db.Ingest(ctx, more)
	require.NoError(t, err)
	assert.Equal(t, 35, res.Added)

	s := db.Stats()
	assert.Equal(t, 40, s.Approximate.Count)
	assert.Equal(t, 40+hnsw.DefaultCapacityMargin, s.Approximate.Capacity)
	assert.Equal(t, index.StateBuilt, s.Approximate.State)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(6)
	vecs := rng.UniformRangeVectors(80, 8)
	db, store := openWith(t, vecs, WithCompression(persistence.CompressionLZ4))

	want, err := db.Recommend(ctx, 7, 5)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Close(), ErrClosed)

	_, err = db.Recommend(ctx, 7, 5)
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := Open(ctx, WithBlobStore(store), WithLogger(nil))
	require.NoError(t, err)
	got, err := reopened.Recommend(ctx, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, want.Exact, got.Exact)
	assert.Equal(t, want.Approximate, got.Approximate)
}

func TestReopenRecoversCorruptIndex(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)
	vecs := rng.UniformRangeVectors(60, 8)

	for _, name := range []string{ExactBlob, ApproximateBlob} {
		t.Run(name, func(t *testing.T) {
			db, store := openWith(t, vecs)
			want, err := db.Recommend(ctx, 2, 5)
			require.NoError(t, err)

			require.True(t, store.Corrupt(name, 50))

			reopened, err := Open(ctx, WithBlobStore(store), WithLogger(nil))
			require.NoError(t, err)
			got, err := reopened.Recommend(ctx, 2, 5)
			require.NoError(t, err)
			assert.Equal(t, want.Exact, got.Exact)
			assert.Len(t, got.Approximate, 5)

			// The rebuilt index was persisted again.
			_, err = Open(ctx, WithBlobStore(store), WithLogger(nil))
			require.NoError(t, err)
		})
	}
}

func TestReopenRebuildsOnParameterChange(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(8)
	_, store := openWith(t, rng.UniformRangeVectors(60, 8))

	db, err := Open(ctx, WithBlobStore(store), WithLogger(nil),
		WithLeafSize(4),
		WithHNSW(func(o *hnsw.Options) { o.M = 8 }))
	require.NoError(t, err)

	s := db.Stats()
	assert.Equal(t, 4, s.Exact.LeafSize)
	assert.Equal(t, 8, db.approx.Options().M)
	assert.Equal(t, index.StateBuilt, s.Approximate.State)
}

func TestReopenCorruptFeatures(t *testing.T) {
	rng := testutil.NewRNG(9)
	_, store := openWith(t, rng.UniformRangeVectors(10, 4))
	require.True(t, store.Corrupt(FeaturesBlob, 45))

	_, err := Open(context.Background(), WithBlobStore(store), WithLogger(nil))
	var cp *ErrCorruptPersistedState
	require.True(t, errors.As(err, &cp))
	assert.True(t, index.IsCorrupt(err))
}

func TestReopenCatchesUpLaggingIndex(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(10)
	vecs := rng.UniformRangeVectors(30, 4)
	db, store := openWith(t, vecs[:20])

	stale := map[string][]byte{}
	for _, name := range []string{ExactBlob, ApproximateBlob} {
		data, err := blobstore.ReadAll(ctx, store, name)
		require.NoError(t, err)
		stale[name] = data
	}

	_, err := db.Ingest(ctx, items(vecs)[20:])
	require.NoError(t, err)

	// Simulate a crash between the feature store write and the index writes.
	for name, data := range stale {
		require.NoError(t, store.Put(ctx, name, data))
	}

	reopened, err := Open(ctx, WithBlobStore(store), WithLogger(nil))
	require.NoError(t, err)
	s := reopened.Stats()
	assert.Equal(t, 30, s.Exact.Count)
	assert.Equal(t, 30, s.Approximate.Count)
	assert.Equal(t, index.StateUpdated, s.Exact.State)
	assert.Equal(t, index.StateUpdated, s.Approximate.State)
}

func TestRebuild(t *testing.T) {
	rng := testutil.NewRNG(11)
	db, _ := openWith(t, rng.UniformRangeVectors(30, 4))
	require.NoError(t, db.Rebuild(context.Background()))
	assert.Equal(t, index.StateBuilt, db.Stats().Approximate.State)

	empty, _ := openWith(t, nil)
	assert.ErrorIs(t, empty.Rebuild(context.Background()), ErrEmptyInput)
}

func TestWithoutPersistence(t *testing.T) {
	ctx := context.Background()
	db, store := openWith(t, [][]float32{{1, 2}, {2, 3}}, WithoutPersistence())
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 2, db.Stats().Count)
}

// flakyStore fails reads of one blob with a transport error.
type flakyStore struct {
	*blobstore.MemoryStore
	name string
	err  error
}

func (s *flakyStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name == s.name {
		return nil, s.err
	}
	return s.MemoryStore.Open(ctx, name)
}

func TestReopenKeepsIndexOnReadFailure(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(12)
	_, store := openWith(t, rng.UniformRangeVectors(40, 4))

	for _, name := range []string{ExactBlob, ApproximateBlob} {
		t.Run(name, func(t *testing.T) {
			before, err := blobstore.ReadAll(ctx, store, name)
			require.NoError(t, err)

			unavailable := errors.New("connection reset by peer")
			_, err = Open(ctx, WithBlobStore(&flakyStore{MemoryStore: store, name: name, err: unavailable}), WithLogger(nil))
			require.ErrorIs(t, err, unavailable)
			assert.False(t, index.IsCorrupt(err))

			after, err := blobstore.ReadAll(ctx, store, name)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestStatsResources(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(13)
	db, _ := openWith(t, rng.UniformRangeVectors(20, 4))

	written := db.Stats().Resources.IOBytes
	assert.Positive(t, written)
	assert.Zero(t, db.Stats().Resources.QueriesInFlight)

	_, err := db.Recommend(ctx, 1, 3)
	require.NoError(t, err)
	assert.Zero(t, db.Stats().Resources.QueriesInFlight)
	assert.Equal(t, written, db.Stats().Resources.IOBytes)
}
