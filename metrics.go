package kvgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordCall is called after each store-level call. op names the
	// operation (e.g. "add", "find"), duration is the total time taken,
	// err is nil if successful.
	RecordCall(op string, duration time.Duration, err error)

	// RecordCommit is called after each commit attempt.
	RecordCommit(duration time.Duration, err error)

	// RecordRetry is called on each transaction retry after a commit
	// conflict. attempt starts at 1.
	RecordRetry(attempt int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCall(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)       {}
func (NoopMetricsCollector) RecordRetry(int)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CallCount        atomic.Int64
	CallErrors       atomic.Int64
	CallTotalNanos   atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64
	RetryCount       atomic.Int64
}

// RecordCall implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCall(op string, duration time.Duration, err error) {
	b.CallCount.Add(1)
	b.CallTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CallErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordRetry implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetry(int) {
	b.RetryCount.Add(1)
}
