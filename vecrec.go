package vecrec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/featurestore"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/index/hnsw"
	"github.com/hupe1980/vecrec/index/kdtree"
	"github.com/hupe1980/vecrec/persistence"
	"github.com/hupe1980/vecrec/resource"
)

// Index names used in logs, metrics and Stats.
const (
	ExactIndexName       = "exact"
	ApproximateIndexName = "approximate"
)

// DB couples a feature store with an exact and an approximate index over
// it. Recommend may be called concurrently; Ingest and Rebuild are
// serialized against each other.
type DB struct {
	opts options

	store    blobstore.BlobStore
	features *featurestore.Store
	exact    *kdtree.Tree
	approx   *hnsw.Graph

	rc      *resource.Controller
	logger  *Logger
	metrics MetricsCollector

	// ingestMu serializes appends with the index updates that follow them.
	ingestMu sync.Mutex
	closed   atomic.Bool
}

// Open loads the feature store and both indices from the configured blob
// store. A missing feature store starts empty. Index artifacts that are
// missing, corrupt or built with different parameters are rebuilt from the
// feature store; indices that lag behind it are updated.
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.store == nil {
		opts.store = blobstore.NewMemoryStore()
	}

	db := &DB{
		opts:    opts,
		store:   opts.store,
		exact:   kdtree.New(func(o *kdtree.Options) { o.LeafSize = opts.leafSize }),
		approx:  hnsw.New(opts.hnswOptions...),
		rc:      resource.NewController(opts.resourceConfig),
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}

	if err := db.loadFeatures(ctx); err != nil {
		return nil, err
	}

	if db.features.Count() == 0 {
		return db, nil
	}

	snap := db.features.Snapshot()
	if err := db.openExact(ctx, snap); err != nil {
		return nil, err
	}
	if err := db.openApproximate(ctx, snap); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) featureOptions(o *featurestore.Options) {
	o.Dimension = db.opts.dimension
	o.Codec = db.opts.codec
}

func (db *DB) loadFeatures(ctx context.Context) error {
	var fs *featurestore.Store
	err := db.load(ctx, FeaturesBlob, persistence.KindFeatureStore, func(r *persistence.SliceReader) error {
		var err error
		fs, err = featurestore.ReadFeatureStore(r)
		return err
	})
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		db.features = featurestore.New(db.featureOptions)
		return nil
	case err != nil:
		return translateError(fmt.Errorf("vecrec: load feature store: %w", err))
	}

	if db.opts.dimension != 0 && fs.Dimension() != 0 && fs.Dimension() != db.opts.dimension {
		return &ErrDimensionMismatch{Expected: db.opts.dimension, Actual: fs.Dimension()}
	}

	db.features = fs
	return nil
}

// errIncompatible marks an intact artifact built with other parameters.
var errIncompatible = errors.New("incompatible index parameters")

// recoverable reports whether a persisted index should be rebuilt from the
// feature store. Store and context failures are returned to the caller so a
// good artifact is never overwritten because it could not be read.
func recoverable(err error) bool {
	return index.IsCorrupt(err) || errors.Is(err, errIncompatible) || errors.Is(err, hnsw.ErrParameterMismatch)
}

func (db *DB) openExact(ctx context.Context, snap *featurestore.Snapshot) error {
	var tree *kdtree.Tree
	err := db.load(ctx, ExactBlob, persistence.KindKDTree, func(r *persistence.SliceReader) error {
		var err error
		tree, err = kdtree.Load(r, snap)
		return err
	})
	if err == nil && tree.LeafSize() != db.opts.leafSize {
		err = fmt.Errorf("%w: leaf size %d, configured %d", errIncompatible, tree.LeafSize(), db.opts.leafSize)
	}

	switch {
	case err == nil:
		db.exact = tree
		if tree.Count() == snap.Count() {
			return nil
		}
		return db.updateExact(ctx, snap)
	case errors.Is(err, blobstore.ErrNotFound):
	case recoverable(err):
		db.logger.LogRecovery(ctx, ExactIndexName, err)
	default:
		return fmt.Errorf("vecrec: load %s: %w", ExactBlob, err)
	}

	return db.buildExact(ctx, snap)
}

func (db *DB) openApproximate(ctx context.Context, snap *featurestore.Snapshot) error {
	expect := db.approx.Options()

	var graph *hnsw.Graph
	err := db.load(ctx, ApproximateBlob, persistence.KindHNSW, func(r *persistence.SliceReader) error {
		var err error
		graph, err = hnsw.Load(r, snap, expect)
		return err
	})

	switch {
	case err == nil:
		db.approx = graph
		if graph.Count() == snap.Count() {
			return nil
		}
		return db.updateApproximate(ctx, snap)
	case errors.Is(err, blobstore.ErrNotFound):
	case recoverable(err):
		db.logger.LogRecovery(ctx, ApproximateIndexName, err)
	default:
		return fmt.Errorf("vecrec: load %s: %w", ApproximateBlob, err)
	}

	return db.buildApproximate(ctx, snap)
}

func (db *DB) buildExact(ctx context.Context, snap *featurestore.Snapshot) error {
	start := time.Now()
	err := db.exact.Build(snap)
	dur := time.Since(start)

	db.logger.LogBuild(ctx, ExactIndexName, snap.Count(), dur, err)
	db.metrics.RecordBuild(ExactIndexName, dur, err)
	if err != nil {
		return translateError(err)
	}
	return db.save(ctx, ExactBlob, persistence.KindKDTree, db.exact.WriteTo)
}

// updateExact rebuilds the tree over the grown snapshot; the tree has no
// incremental maintenance.
func (db *DB) updateExact(ctx context.Context, snap *featurestore.Snapshot) error {
	from := db.exact.Count()
	err := db.exact.Update(snap)
	db.logger.LogUpdate(ctx, ExactIndexName, from, snap.Count(), err)
	if err != nil {
		return translateError(err)
	}
	return db.save(ctx, ExactBlob, persistence.KindKDTree, db.exact.WriteTo)
}

func (db *DB) buildApproximate(ctx context.Context, snap *featurestore.Snapshot, optFns ...func(o *hnsw.Options)) error {
	start := time.Now()
	err := db.approx.Build(snap, optFns...)
	dur := time.Since(start)

	db.logger.LogBuild(ctx, ApproximateIndexName, snap.Count(), dur, err)
	db.metrics.RecordBuild(ApproximateIndexName, dur, err)
	if err != nil {
		return translateError(err)
	}
	return db.save(ctx, ApproximateBlob, persistence.KindHNSW, db.approx.WriteTo)
}

// updateApproximate inserts the new identities of snap. An exhausted
// reservation triggers a rebuild with a fresh one.
func (db *DB) updateApproximate(ctx context.Context, snap *featurestore.Snapshot) error {
	from := db.approx.Count()
	err := db.approx.Update(snap)
	db.logger.LogUpdate(ctx, ApproximateIndexName, from, snap.Count(), err)

	var ce *index.ErrCapacityExceeded
	if errors.As(err, &ce) {
		db.logger.WarnContext(ctx, "approximate index reservation exhausted, rebuilding",
			"capacity", ce.Capacity,
			"required", ce.Required,
		)
		return db.buildApproximate(ctx, snap, func(o *hnsw.Options) { o.Capacity = 0 })
	}
	if err != nil {
		return translateError(err)
	}

	return db.save(ctx, ApproximateBlob, persistence.KindHNSW, db.approx.WriteTo)
}

func (db *DB) load(ctx context.Context, name string, kind persistence.Kind, read func(r *persistence.SliceReader) error) error {
	return persistence.Load(ctx, db.store, name, kind, read, persistence.WithPacer(db.rc))
}

func (db *DB) save(ctx context.Context, name string, kind persistence.Kind, write func(w *persistence.BinaryWriter) error) error {
	if !db.opts.persist {
		return nil
	}

	n, err := persistence.Save(ctx, db.store, name, kind, db.opts.compression, write, persistence.WithPacer(db.rc))

	db.logger.LogPersist(ctx, name, n, err)
	db.metrics.RecordPersist(n, err)
	if err != nil {
		return fmt.Errorf("vecrec: persist %s: %w", name, err)
	}
	return nil
}

// Recommend returns the k items nearest to the stored item id from both
// indices. Both lists exclude id itself and the identities passed with
// WithExclude. Each index is queried even when the other fails; the
// returned error is non-nil only if id is unknown, k is invalid, or both
// queries fail.
func (db *DB) Recommend(ctx context.Context, id uint32, k int, optFns ...func(o *RecommendOptions)) (*Recommendations, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	opts := RecommendOptions{EF: db.opts.efSearch}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := db.rc.AcquireQuery(ctx); err != nil {
		return nil, err
	}
	defer db.rc.ReleaseQuery()

	start := time.Now()

	query, err := db.features.Get(id)
	if err != nil {
		return nil, translateError(err)
	}

	exclude := roaring.New()
	exclude.Add(id)
	exclude.AddMany(opts.Exclude)

	// Every excluded identity may occupy a slot ahead of the k wanted ones.
	fetch := k + int(exclude.GetCardinality())

	// Neither query cancels the other.
	searchers := [2]index.Searcher{db.exact, db.approx.Searcher(opts.EF)}
	var (
		results [2][]index.SearchResult
		errs    [2]error
	)
	var g errgroup.Group
	for i, s := range searchers {
		g.Go(func() error {
			results[i], errs[i] = s.Search(query, fetch)
			return nil
		})
	}
	_ = g.Wait()

	recs := &Recommendations{
		ExactErr:       translateError(errs[0]),
		ApproximateErr: translateError(errs[1]),
	}
	if recs.ExactErr == nil {
		recs.Exact = db.attach(entries(results[0], exclude, k))
	}
	if recs.ApproximateErr == nil {
		recs.Approximate = db.attach(entries(results[1], exclude, k))
	}

	db.logger.LogRecommend(ctx, id, k, recs.ExactErr, recs.ApproximateErr)
	db.metrics.RecordRecommend(k, time.Since(start), recs.ExactErr, recs.ApproximateErr)

	if recs.ExactErr != nil && recs.ApproximateErr != nil {
		return recs, errors.Join(recs.ExactErr, recs.ApproximateErr)
	}
	return recs, nil
}

func (db *DB) attach(es []Entry) []Entry {
	for i := range es {
		if key, err := db.features.Key(es[i].ID); err == nil {
			es[i].Key = key
		}
		if md, err := db.features.Metadata(es[i].ID); err == nil {
			es[i].Metadata = md
		}
	}
	return es
}

// IngestResult reports the outcome of Ingest.
type IngestResult struct {
	// IDs are the identities assigned to the added items, in input order.
	IDs []uint32

	Added int

	// Skipped counts items without a vector and items whose key is already
	// stored or repeated within the batch.
	Skipped int
}

// Ingest appends new items to the feature store, updates both indices and
// persists all three artifacts. Items without a vector or with a known key
// are skipped and counted. A dimension mismatch rejects the whole batch.
func (db *DB) Ingest(ctx context.Context, items []featurestore.Item) (IngestResult, error) {
	if db.closed.Load() {
		return IngestResult{}, ErrClosed
	}

	db.ingestMu.Lock()
	defer db.ingestMu.Unlock()

	start := time.Now()

	var res IngestResult
	seen := make(map[string]struct{}, len(items))
	accepted := make([]featurestore.Item, 0, len(items))
	for _, it := range items {
		if len(it.Vector) == 0 {
			res.Skipped++
			continue
		}
		if it.Key != "" {
			if _, dup := seen[it.Key]; dup || db.features.Contains(it.Key) {
				res.Skipped++
				continue
			}
			seen[it.Key] = struct{}{}
		}
		accepted = append(accepted, it)
	}

	if len(accepted) > 0 {
		ids, err := db.features.AppendItems(accepted)
		if err != nil {
			return res, translateError(err)
		}
		res.IDs = ids
		res.Added = len(ids)

		if err := db.save(ctx, FeaturesBlob, persistence.KindFeatureStore, db.features.WriteTo); err != nil {
			return res, err
		}
		if err := db.refresh(ctx, db.features.Snapshot()); err != nil {
			return res, err
		}
	}

	db.logger.LogIngest(ctx, res.Added, res.Skipped)
	db.metrics.RecordIngest(res.Added, res.Skipped, time.Since(start))

	return res, nil
}

// refresh brings both indices up to snap, building those never built.
func (db *DB) refresh(ctx context.Context, snap *featurestore.Snapshot) error {
	var err error
	if db.exact.State().Queryable() {
		err = db.updateExact(ctx, snap)
	} else {
		err = db.buildExact(ctx, snap)
	}
	if err != nil {
		return err
	}

	if db.approx.State().Queryable() {
		return db.updateApproximate(ctx, snap)
	}
	return db.buildApproximate(ctx, snap)
}

// Rebuild builds both indices from scratch over the current feature store.
func (db *DB) Rebuild(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}

	db.ingestMu.Lock()
	defer db.ingestMu.Unlock()

	snap := db.features.Snapshot()
	if snap.Count() == 0 {
		return ErrEmptyInput
	}
	if err := db.buildExact(ctx, snap); err != nil {
		return err
	}
	return db.buildApproximate(ctx, snap)
}

// Features exposes the underlying feature store for lookups. Appending to it
// directly bypasses the indices; use Ingest.
func (db *DB) Features() *featurestore.Store { return db.features }

// ExactStats describes the exact index.
type ExactStats struct {
	State    index.State
	Count    int
	Depth    int
	Leaves   int
	LeafSize int
}

// ApproximateStats describes the approximate index.
type ApproximateStats struct {
	State index.State
	hnsw.Stats
}

// ResourceStats reports the resource controller's counters.
type ResourceStats struct {
	// QueriesInFlight is the number of Recommend calls holding a query slot.
	QueriesInFlight int64

	// IOBytes is the total number of artifact bytes loaded and persisted.
	IOBytes int64
}

// Stats summarizes the DB.
type Stats struct {
	Count       int
	Dimension   int
	Exact       ExactStats
	Approximate ApproximateStats
	Resources   ResourceStats
}

// Stats returns counts, dimension and index shapes.
func (db *DB) Stats() Stats {
	return Stats{
		Count:     db.features.Count(),
		Dimension: db.features.Dimension(),
		Exact: ExactStats{
			State:    db.exact.State(),
			Count:    db.exact.Count(),
			Depth:    db.exact.Depth(),
			Leaves:   db.exact.Leaves(),
			LeafSize: db.exact.LeafSize(),
		},
		Approximate: ApproximateStats{
			State: db.approx.State(),
			Stats: db.approx.Stats(),
		},
		Resources: ResourceStats{
			QueriesInFlight: db.rc.QueriesInFlight(),
			IOBytes:         db.rc.IOBytes(),
		},
	}
}

// Close marks the DB closed. Every mutation is persisted when it happens, so
// there is nothing to flush.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	db.ingestMu.Lock()
	defer db.ingestMu.Unlock()
	return nil
}
