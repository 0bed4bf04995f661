package vecrec

import (
	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/codec"
	"github.com/hupe1980/vecrec/index/hnsw"
	"github.com/hupe1980/vecrec/index/kdtree"
	"github.com/hupe1980/vecrec/persistence"
	"github.com/hupe1980/vecrec/resource"
)

// Blob names of the persisted artifacts.
const (
	FeaturesBlob    = "features.vrec"
	ExactBlob       = "exact.vrec"
	ApproximateBlob = "approximate.vrec"
)

type options struct {
	store            blobstore.BlobStore
	persist          bool
	codec            codec.Codec
	compression      persistence.Compression
	dimension        int
	leafSize         int
	hnswOptions      []func(o *hnsw.Options)
	efSearch         int
	resourceConfig   resource.Config
	metricsCollector MetricsCollector
	logger           *Logger
}

func defaultOptions() options {
	return options{
		persist:          true,
		codec:            codec.Default,
		compression:      persistence.CompressionZSTD,
		leafSize:         kdtree.DefaultOptions.LeafSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NewLogger(nil),
	}
}

// Option configures Open.
type Option func(*options)

// WithBlobStore configures where the feature store and both indices are
// persisted. Without it the DB keeps its artifacts in an in-memory store.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLocalDir persists artifacts as files under dir.
func WithLocalDir(dir string) Option {
	return WithBlobStore(blobstore.NewLocalStore(dir))
}

// WithoutPersistence disables writing artifacts after builds and ingests.
// Existing artifacts are still loaded on Open.
func WithoutPersistence() Option {
	return func(o *options) {
		o.persist = false
	}
}

// WithCodec configures the codec used for metadata records of a new feature
// store. A loaded store keeps the codec it was written with.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the compression of persisted artifacts.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithDimension fixes the vector dimension of a new feature store. Without
// it the first ingested item sets the dimension.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithLeafSize configures the exact index leaf threshold.
func WithLeafSize(n int) Option {
	return func(o *options) {
		o.leafSize = n
	}
}

// WithHNSW configures the approximate index.
//
// Example:
//
//	db, _ := vecrec.Open(ctx, vecrec.WithHNSW(func(o *hnsw.Options) {
//	    o.M = 32
//	    o.EFConstruction = 400
//	}))
func WithHNSW(optFns ...func(o *hnsw.Options)) Option {
	return func(o *options) {
		o.hnswOptions = append(o.hnswOptions, optFns...)
	}
}

// WithEFSearch configures the default beam width of approximate queries.
// Per-query overrides are possible with RecommendEF.
func WithEFSearch(ef int) Option {
	return func(o *options) {
		o.efSearch = ef
	}
}

// WithResourceConfig bounds concurrent queries and persistence throughput.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceConfig = cfg
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecrec.BasicMetricsCollector{}
//	db, _ := vecrec.Open(ctx, vecrec.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// RecommendOptions configures a single Recommend call.
type RecommendOptions struct {
	// Exclude lists identities removed from both result lists in addition
	// to the query identity.
	Exclude []uint32

	// EF overrides the approximate beam width. 0 uses the DB default.
	EF int
}

// WithExclude removes ids from both recommendation lists.
func WithExclude(ids ...uint32) func(o *RecommendOptions) {
	return func(o *RecommendOptions) {
		o.Exclude = append(o.Exclude, ids...)
	}
}

// RecommendEF overrides the approximate beam width for one query.
func RecommendEF(ef int) func(o *RecommendOptions) {
	return func(o *RecommendOptions) {
		o.EF = ef
	}
}
