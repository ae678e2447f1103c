package metrics

import (
	"context"
	"time"
)

// Recorder is the narrow metrics surface the catalog store and commit
// pipeline depend on, so both can be exercised against a no-op fake in
// tests without a live registry.
type Recorder interface {
	RecordDBQuery(ctx context.Context, operation string, duration time.Duration, success bool)
	WrapDBQuery(ctx context.Context, operation string, fn func() error) error
	RecordCommitAttempt(ctx context.Context, outcome string)
}

type recorder struct {
	collector *Collector
}

func NewRecorder(collector *Collector) Recorder {
	return &recorder{collector: collector}
}

func (r *recorder) RecordDBQuery(ctx context.Context, operation string, duration time.Duration, success bool) {
	r.collector.RecordDBQuery(operation, duration, success)
}

func (r *recorder) WrapDBQuery(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	r.collector.RecordDBQuery(operation, duration, err == nil)
	return err
}

func (r *recorder) RecordCommitAttempt(ctx context.Context, outcome string) {
	r.collector.RecordCommitAttempt(outcome)
}
