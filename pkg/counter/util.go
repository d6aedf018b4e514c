package counter

import (
	"context"

	"github.com/cuemby/tally/pkg/metrics"
	"github.com/cuemby/tally/pkg/store"
)

// failingFn returns a store function that rejects immediately with err,
// without issuing any backing-store command. Used to fold argument
// validation into the same call shape as a real operation.
func failingFn[T any](err error) func(context.Context, store.Cmdable) (T, error) {
	return func(context.Context, store.Cmdable) (T, error) {
		var zero T
		return zero, err
	}
}

func failingBoolFn(err error) func(context.Context, store.Cmdable) (bool, error) {
	return failingFn[bool](err)
}

// wrapUnconditional adapts an unconditional mutation (no idempotency
// marker) to the same (bool, error) shape the marker-guarded variants
// return, so callers can treat "was the reset applied" uniformly.
func wrapUnconditional(fn func(context.Context, store.Cmdable) (struct{}, error)) func(context.Context, store.Cmdable) (bool, error) {
	return func(ctx context.Context, cmd store.Cmdable) (bool, error) {
		_, err := fn(ctx, cmd)
		return err == nil, err
	}
}

// recordIdempotentHit increments the idempotent-hits counter when a
// marker-guarded mutation found the marker already present and skipped
// its write. usedMarker is false for unconditional operations, which
// have no marker to hit.
func recordIdempotentHit(consistency Consistency, usedMarker bool, res store.IncrResult) {
	if usedMarker && !res.Applied {
		metrics.CounterIdempotentHitsTotal.WithLabelValues(string(consistency)).Inc()
	}
}
