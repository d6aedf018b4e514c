package counter

import (
	"context"
	"time"

	"github.com/cuemby/tally/pkg/keys"
	"github.com/cuemby/tally/pkg/metrics"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/token"
)

// BestEffort is the single-key atomic-increment strategy (C5). One
// value implements both Counter and AsyncCounter; the counter factory
// hands out whichever interface view the caller asked for.
type BestEffort struct {
	manager   *store.Manager
	markerTTL time.Duration
}

// NewBestEffort builds a best-effort strategy over m. markerTTL bounds
// how long an idempotency marker survives before the backing store
// reclaims it.
func NewBestEffort(m *store.Manager, markerTTL time.Duration) *BestEffort {
	return &BestEffort{manager: m, markerTTL: markerTTL}
}

func (b *BestEffort) Add(ctx context.Context, namespace, name string, delta int64, tok token.Token) error {
	defer b.observe("add", time.Now())
	_, err := store.Execute(ctx, b.manager, b.applyFn(namespace, name, delta, tok))
	return err
}

func (b *BestEffort) AddAndGet(ctx context.Context, namespace, name string, delta int64, tok token.Token) (Result, error) {
	defer b.observe("add_and_get", time.Now())
	res, err := store.Execute(ctx, b.manager, b.applyFn(namespace, name, delta, tok))
	if err != nil {
		return Result{}, err
	}
	return Result{Value: res.Value, Timestamp: time.Now().UTC(), Consistency: ConsistencyBestEffort, Token: tok}, nil
}

func (b *BestEffort) Get(ctx context.Context, namespace, name string) (Result, error) {
	defer b.observe("get", time.Now())
	if err := validateArgs(namespace, name); err != nil {
		return Result{}, err
	}
	v, err := store.Execute(ctx, b.manager, store.GetIntFn(keys.Counter(namespace, name)))
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Timestamp: time.Now().UTC(), Consistency: ConsistencyBestEffort}, nil
}

func (b *BestEffort) Clear(ctx context.Context, namespace, name string, tok token.Token) error {
	defer b.observe("clear", time.Now())
	_, err := store.Execute(ctx, b.manager, b.clearFn(namespace, name, tok))
	return err
}

func (b *BestEffort) AddAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[struct{}] {
	defer b.observe("add", time.Now())
	fut := store.ExecuteAsync(ctx, b.manager, b.applyFn(namespace, name, delta, tok))
	return store.Discard(fut)
}

func (b *BestEffort) AddAndGetAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[Result] {
	defer b.observe("add_and_get", time.Now())
	fut := store.ExecuteAsync(ctx, b.manager, b.applyFn(namespace, name, delta, tok))
	return store.Map(fut, func(res store.IncrResult) Result {
		return Result{Value: res.Value, Timestamp: time.Now().UTC(), Consistency: ConsistencyBestEffort, Token: tok}
	})
}

func (b *BestEffort) GetAsync(ctx context.Context, namespace, name string) *store.Future[Result] {
	defer b.observe("get", time.Now())
	if err := validateArgs(namespace, name); err != nil {
		return store.FailedFuture[Result](err)
	}
	fut := store.ExecuteAsync(ctx, b.manager, store.GetIntFn(keys.Counter(namespace, name)))
	return store.Map(fut, func(v int64) Result {
		return Result{Value: v, Timestamp: time.Now().UTC(), Consistency: ConsistencyBestEffort}
	})
}

func (b *BestEffort) ClearAsync(ctx context.Context, namespace, name string, tok token.Token) *store.Future[struct{}] {
	defer b.observe("clear", time.Now())
	fut := store.ExecuteAsync(ctx, b.manager, b.clearFn(namespace, name, tok))
	return store.Discard(fut)
}

func (b *BestEffort) applyFn(namespace, name string, delta int64, tok token.Token) func(context.Context, store.Cmdable) (store.IncrResult, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingFn[store.IncrResult](err)
	}
	counterKey := keys.Counter(namespace, name)
	mk, usedMarker := markerKey(namespace, name, tok)
	var fn func(context.Context, store.Cmdable) (store.IncrResult, error)
	if usedMarker {
		fn = store.IncrWithMarkerFn(counterKey, mk, delta, b.markerTTL)
	} else {
		fn = store.IncrByFn(counterKey, delta)
	}
	return func(ctx context.Context, cmd store.Cmdable) (store.IncrResult, error) {
		res, err := fn(ctx, cmd)
		if err != nil {
			return store.IncrResult{}, err
		}
		recordIdempotentHit(ConsistencyBestEffort, usedMarker, res)
		return res, nil
	}
}

func (b *BestEffort) clearFn(namespace, name string, tok token.Token) func(context.Context, store.Cmdable) (bool, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingBoolFn(err)
	}
	counterKey := keys.Counter(namespace, name)
	if mk, ok := markerKey(namespace, name, tok); ok {
		return store.ResetWithMarkerFn(counterKey, mk, b.markerTTL)
	}
	return wrapUnconditional(store.ResetFn(counterKey))
}

func (b *BestEffort) observe(op string, start time.Time) {
	metrics.CounterOperationsTotal.WithLabelValues(string(ConsistencyBestEffort), op).Inc()
	metrics.CounterOperationDuration.WithLabelValues(string(ConsistencyBestEffort), op).Observe(time.Since(start).Seconds())
}
