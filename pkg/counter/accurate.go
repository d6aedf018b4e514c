package counter

import (
	"context"
	"time"

	"github.com/cuemby/tally/pkg/keys"
	"github.com/cuemby/tally/pkg/metrics"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/token"
)

// Accurate is the snapshot-plus-reconciliation strategy (C7). Every
// read or write triggers reconciliation, folding the per-node delta
// hash into the snapshot and deleting only the fields it summed, so a
// concurrent writer's increment is never silently lost.
type Accurate struct {
	manager   *store.Manager
	nodeID    string
	markerTTL time.Duration
}

// NewAccurate builds an accurate strategy. nodeID identifies this
// instance's field in the delta hash.
func NewAccurate(m *store.Manager, nodeID string, markerTTL time.Duration) *Accurate {
	return &Accurate{manager: m, nodeID: nodeID, markerTTL: markerTTL}
}

func (a *Accurate) Add(ctx context.Context, namespace, name string, delta int64, tok token.Token) error {
	defer a.observe("add", time.Now())
	if _, err := store.Execute(ctx, a.manager, a.applyFn(namespace, name, delta, tok)); err != nil {
		return err
	}
	_, err := a.reconcile(ctx, namespace, name)
	return err
}

func (a *Accurate) AddAndGet(ctx context.Context, namespace, name string, delta int64, tok token.Token) (Result, error) {
	defer a.observe("add_and_get", time.Now())
	if err := validateArgs(namespace, name); err != nil {
		return Result{}, err
	}
	if _, err := store.Execute(ctx, a.manager, a.applyFn(namespace, name, delta, tok)); err != nil {
		return Result{}, err
	}
	v, err := a.reconcile(ctx, namespace, name)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Timestamp: time.Now().UTC(), Consistency: ConsistencyAccurate, Token: tok}, nil
}

func (a *Accurate) Get(ctx context.Context, namespace, name string) (Result, error) {
	defer a.observe("get", time.Now())
	v, err := a.reconcile(ctx, namespace, name)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Timestamp: time.Now().UTC(), Consistency: ConsistencyAccurate}, nil
}

func (a *Accurate) Clear(ctx context.Context, namespace, name string, tok token.Token) error {
	defer a.observe("clear", time.Now())
	_, err := store.Execute(ctx, a.manager, a.clearFn(namespace, name, tok))
	return err
}

func (a *Accurate) AddAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[struct{}] {
	defer a.observe("add", time.Now())
	return store.Go(func() (struct{}, error) { return struct{}{}, a.Add(ctx, namespace, name, delta, tok) })
}

func (a *Accurate) AddAndGetAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[Result] {
	defer a.observe("add_and_get", time.Now())
	return store.Go(func() (Result, error) { return a.AddAndGet(ctx, namespace, name, delta, tok) })
}

func (a *Accurate) GetAsync(ctx context.Context, namespace, name string) *store.Future[Result] {
	defer a.observe("get", time.Now())
	return store.Go(func() (Result, error) { return a.Get(ctx, namespace, name) })
}

func (a *Accurate) ClearAsync(ctx context.Context, namespace, name string, tok token.Token) *store.Future[struct{}] {
	defer a.observe("clear", time.Now())
	return store.Discard(store.ExecuteAsync(ctx, a.manager, a.clearFn(namespace, name, tok)))
}

// reconcile folds the delta hash into the snapshot via a single atomic
// script and returns the post-reconciliation snapshot value.
func (a *Accurate) reconcile(ctx context.Context, namespace, name string) (int64, error) {
	if err := validateArgs(namespace, name); err != nil {
		return 0, err
	}
	metrics.ReconciliationsTotal.Inc()
	deltasKey := keys.DeltaHash(namespace, name)
	snapshotKey := keys.Snapshot(namespace, name)
	tsKey := keys.SnapshotTimestamp(namespace, name)
	fn := store.ReconcileFn(deltasKey, snapshotKey, tsKey, time.Now().UnixMilli())
	res, err := store.Execute(ctx, a.manager, fn)
	if err != nil {
		return 0, err
	}
	// ReconciliationFoldedTotal is a monotonic counter; a net-negative
	// fold (more decrements than increments since the last reconcile)
	// has nothing non-negative to add.
	if res.Folded > 0 {
		metrics.ReconciliationFoldedTotal.Add(float64(res.Folded))
	}
	return res.Snapshot, nil
}

func (a *Accurate) applyFn(namespace, name string, delta int64, tok token.Token) func(context.Context, store.Cmdable) (store.IncrResult, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingFn[store.IncrResult](err)
	}
	deltasKey := keys.DeltaHash(namespace, name)
	mk, usedMarker := markerKey(namespace, name, tok)
	var fn func(context.Context, store.Cmdable) (store.IncrResult, error)
	if usedMarker {
		fn = store.HIncrWithMarkerFn(deltasKey, mk, a.nodeID, delta, a.markerTTL)
	} else {
		fn = store.HIncrByFn(deltasKey, a.nodeID, delta)
	}
	return func(ctx context.Context, cmd store.Cmdable) (store.IncrResult, error) {
		res, err := fn(ctx, cmd)
		if err != nil {
			return store.IncrResult{}, err
		}
		recordIdempotentHit(ConsistencyAccurate, usedMarker, res)
		return res, nil
	}
}

func (a *Accurate) clearFn(namespace, name string, tok token.Token) func(context.Context, store.Cmdable) (bool, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingBoolFn(err)
	}
	snapshotKey, deltasKey := keys.Snapshot(namespace, name), keys.DeltaHash(namespace, name)
	if mk, ok := markerKey(namespace, name, tok); ok {
		return store.ResetHashWithMarkerFn(snapshotKey, deltasKey, mk, a.markerTTL)
	}
	return wrapUnconditional(store.ResetHashFn(snapshotKey, deltasKey))
}

func (a *Accurate) observe(op string, start time.Time) {
	metrics.CounterOperationsTotal.WithLabelValues(string(ConsistencyAccurate), op).Inc()
	metrics.CounterOperationDuration.WithLabelValues(string(ConsistencyAccurate), op).Observe(time.Since(start).Seconds())
}
