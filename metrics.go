package vecrec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordRecommend is called after each recommendation query. exactErr and
	// approxErr are the per-index failures, nil on success.
	RecordRecommend(k int, duration time.Duration, exactErr, approxErr error)

	// RecordIngest is called after each ingestion batch.
	RecordIngest(added, skipped int, duration time.Duration)

	// RecordBuild is called after each full index build.
	RecordBuild(index string, duration time.Duration, err error)

	// RecordPersist is called after each artifact write.
	RecordPersist(bytes int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRecommend(int, time.Duration, error, error) {}
func (NoopMetricsCollector) RecordIngest(int, int, time.Duration)             {}
func (NoopMetricsCollector) RecordBuild(string, time.Duration, error)         {}
func (NoopMetricsCollector) RecordPersist(int, error)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RecommendCount      atomic.Int64
	RecommendTotalNanos atomic.Int64
	ExactErrors         atomic.Int64
	ApproximateErrors   atomic.Int64
	IngestCount         atomic.Int64
	IngestAdded         atomic.Int64
	IngestSkipped       atomic.Int64
	BuildCount          atomic.Int64
	BuildErrors         atomic.Int64
	PersistCount        atomic.Int64
	PersistBytes        atomic.Int64
	PersistErrors       atomic.Int64
}

// RecordRecommend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecommend(k int, duration time.Duration, exactErr, approxErr error) {
	b.RecommendCount.Add(1)
	b.RecommendTotalNanos.Add(duration.Nanoseconds())
	if exactErr != nil {
		b.ExactErrors.Add(1)
	}
	if approxErr != nil {
		b.ApproximateErrors.Add(1)
	}
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(added, skipped int, duration time.Duration) {
	b.IngestCount.Add(1)
	b.IngestAdded.Add(int64(added))
	b.IngestSkipped.Add(int64(skipped))
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(index string, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordPersist implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPersist(bytes int, err error) {
	b.PersistCount.Add(1)
	b.PersistBytes.Add(int64(bytes))
	if err != nil {
		b.PersistErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RecommendCount:    b.RecommendCount.Load(),
		RecommendAvgNanos: b.getAvgRecommendNanos(),
		ExactErrors:       b.ExactErrors.Load(),
		ApproximateErrors: b.ApproximateErrors.Load(),
		IngestCount:       b.IngestCount.Load(),
		IngestAdded:       b.IngestAdded.Load(),
		IngestSkipped:     b.IngestSkipped.Load(),
		BuildCount:        b.BuildCount.Load(),
		BuildErrors:       b.BuildErrors.Load(),
		PersistCount:      b.PersistCount.Load(),
		PersistBytes:      b.PersistBytes.Load(),
		PersistErrors:     b.PersistErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgRecommendNanos() int64 {
	count := b.RecommendCount.Load()
	if count == 0 {
		return 0
	}
	return b.RecommendTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RecommendCount    int64
	RecommendAvgNanos int64
	ExactErrors       int64
	ApproximateErrors int64
	IngestCount       int64
	IngestAdded       int64
	IngestSkipped     int64
	BuildCount        int64
	BuildErrors       int64
	PersistCount      int64
	PersistBytes      int64
	PersistErrors     int64
}
