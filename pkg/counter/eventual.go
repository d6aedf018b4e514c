package counter

import (
	"context"
	"time"

	"github.com/cuemby/tally/pkg/keys"
	"github.com/cuemby/tally/pkg/metrics"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/token"
)

// scanPageSize is the SCAN page limit used by the flat variant's
// pattern-scan reads, per the design's "~200" guidance for
// non-blocking pattern scans.
const scanPageSize = 200

// EventualHash is the eventually-consistent strategy's preferred
// layout (C6): a single hash key holds one field per writing node.
// Reads are O(1) round trips. nodeID identifies this process's field.
type EventualHash struct {
	manager   *store.Manager
	nodeID    string
	markerTTL time.Duration
}

// NewEventualHash builds a hash-variant eventually-consistent strategy.
// nodeID must be non-empty; it is the hash field this instance writes.
func NewEventualHash(m *store.Manager, nodeID string, markerTTL time.Duration) *EventualHash {
	return &EventualHash{manager: m, nodeID: nodeID, markerTTL: markerTTL}
}

func (e *EventualHash) Add(ctx context.Context, namespace, name string, delta int64, tok token.Token) error {
	defer e.observe("add", time.Now())
	_, err := store.Execute(ctx, e.manager, e.applyFn(namespace, name, delta, tok))
	return err
}

// AddAndGet is add followed by get: the returned value may include
// concurrent writers' contributions, per the design's documented quirk.
func (e *EventualHash) AddAndGet(ctx context.Context, namespace, name string, delta int64, tok token.Token) (Result, error) {
	defer e.observe("add_and_get", time.Now())
	if _, err := store.Execute(ctx, e.manager, e.applyFn(namespace, name, delta, tok)); err != nil {
		return Result{}, err
	}
	return e.Get(ctx, namespace, name)
}

func (e *EventualHash) Get(ctx context.Context, namespace, name string) (Result, error) {
	defer e.observe("get", time.Now())
	if err := validateArgs(namespace, name); err != nil {
		return Result{}, err
	}
	total, err := store.Execute(ctx, e.manager, store.GetIntFn(keys.Total(namespace, name)))
	if err != nil {
		return Result{}, err
	}
	deltas, err := store.Execute(ctx, e.manager, store.HGetAllIntFn(keys.DeltaHash(namespace, name)))
	if err != nil {
		return Result{}, err
	}
	sum := total
	for _, v := range deltas {
		sum += v
	}
	return Result{Value: sum, Timestamp: time.Now().UTC(), Consistency: ConsistencyEventual}, nil
}

func (e *EventualHash) Clear(ctx context.Context, namespace, name string, tok token.Token) error {
	defer e.observe("clear", time.Now())
	_, err := store.Execute(ctx, e.manager, e.clearFn(namespace, name, tok))
	return err
}

func (e *EventualHash) AddAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[struct{}] {
	defer e.observe("add", time.Now())
	return store.Discard(store.ExecuteAsync(ctx, e.manager, e.applyFn(namespace, name, delta, tok)))
}

func (e *EventualHash) AddAndGetAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[Result] {
	defer e.observe("add_and_get", time.Now())
	return store.Go(func() (Result, error) { return e.AddAndGet(ctx, namespace, name, delta, tok) })
}

func (e *EventualHash) GetAsync(ctx context.Context, namespace, name string) *store.Future[Result] {
	defer e.observe("get", time.Now())
	return store.Go(func() (Result, error) { return e.Get(ctx, namespace, name) })
}

func (e *EventualHash) ClearAsync(ctx context.Context, namespace, name string, tok token.Token) *store.Future[struct{}] {
	defer e.observe("clear", time.Now())
	return store.Discard(store.ExecuteAsync(ctx, e.manager, e.clearFn(namespace, name, tok)))
}

func (e *EventualHash) applyFn(namespace, name string, delta int64, tok token.Token) func(context.Context, store.Cmdable) (store.IncrResult, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingFn[store.IncrResult](err)
	}
	hashKey := keys.DeltaHash(namespace, name)
	mk, usedMarker := markerKey(namespace, name, tok)
	var fn func(context.Context, store.Cmdable) (store.IncrResult, error)
	if usedMarker {
		fn = store.HIncrWithMarkerFn(hashKey, mk, e.nodeID, delta, e.markerTTL)
	} else {
		fn = store.HIncrByFn(hashKey, e.nodeID, delta)
	}
	return func(ctx context.Context, cmd store.Cmdable) (store.IncrResult, error) {
		res, err := fn(ctx, cmd)
		if err != nil {
			return store.IncrResult{}, err
		}
		recordIdempotentHit(ConsistencyEventual, usedMarker, res)
		return res, nil
	}
}

func (e *EventualHash) clearFn(namespace, name string, tok token.Token) func(context.Context, store.Cmdable) (bool, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingBoolFn(err)
	}
	totalKey, hashKey := keys.Total(namespace, name), keys.DeltaHash(namespace, name)
	if mk, ok := markerKey(namespace, name, tok); ok {
		return store.ResetHashWithMarkerFn(totalKey, hashKey, mk, e.markerTTL)
	}
	return wrapUnconditional(store.ResetHashFn(totalKey, hashKey))
}

func (e *EventualHash) observe(op string, start time.Time) {
	metrics.CounterOperationsTotal.WithLabelValues(string(ConsistencyEventual), op).Inc()
	metrics.CounterOperationDuration.WithLabelValues(string(ConsistencyEventual), op).Observe(time.Since(start).Seconds())
}

// EventualFlat is the eventually-consistent strategy's legacy layout
// (C6): each node writes its own key rather than a hash field. Reads
// require a cursor-based pattern scan, so this variant should be
// preferred only when a target deployment cannot use hash fields.
type EventualFlat struct {
	manager   *store.Manager
	nodeID    string
	markerTTL time.Duration
}

// NewEventualFlat builds a flat-variant eventually-consistent strategy.
func NewEventualFlat(m *store.Manager, nodeID string, markerTTL time.Duration) *EventualFlat {
	return &EventualFlat{manager: m, nodeID: nodeID, markerTTL: markerTTL}
}

func (e *EventualFlat) Add(ctx context.Context, namespace, name string, delta int64, tok token.Token) error {
	defer e.observe("add", time.Now())
	_, err := store.Execute(ctx, e.manager, e.applyFn(namespace, name, delta, tok))
	return err
}

func (e *EventualFlat) AddAndGet(ctx context.Context, namespace, name string, delta int64, tok token.Token) (Result, error) {
	defer e.observe("add_and_get", time.Now())
	if _, err := store.Execute(ctx, e.manager, e.applyFn(namespace, name, delta, tok)); err != nil {
		return Result{}, err
	}
	return e.Get(ctx, namespace, name)
}

func (e *EventualFlat) Get(ctx context.Context, namespace, name string) (Result, error) {
	defer e.observe("get", time.Now())
	if err := validateArgs(namespace, name); err != nil {
		return Result{}, err
	}
	total, err := store.Execute(ctx, e.manager, store.GetIntFn(keys.Total(namespace, name)))
	if err != nil {
		return Result{}, err
	}
	sum, err := e.sumDeltaKeys(ctx, namespace, name)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: total + sum, Timestamp: time.Now().UTC(), Consistency: ConsistencyEventual}, nil
}

// sumDeltaKeys cursor-iterates the flat delta key-space for one
// counter, summing every matching key's value.
func (e *EventualFlat) sumDeltaKeys(ctx context.Context, namespace, name string) (int64, error) {
	pattern := keys.FlatDeltaPattern(namespace, name)
	var (
		cursor uint64
		sum    int64
	)
	for {
		page, err := store.Execute(ctx, e.manager, store.ScanPageFn(cursor, pattern, scanPageSize))
		if err != nil {
			return 0, err
		}
		for _, k := range page.Keys {
			v, err := store.Execute(ctx, e.manager, store.GetIntFn(k))
			if err != nil {
				return 0, err
			}
			sum += v
		}
		if page.Cursor == 0 {
			return sum, nil
		}
		cursor = page.Cursor
	}
}

func (e *EventualFlat) Clear(ctx context.Context, namespace, name string, tok token.Token) error {
	defer e.observe("clear", time.Now())
	if err := validateArgs(namespace, name); err != nil {
		return err
	}
	totalKey := keys.Total(namespace, name)
	applied := true
	var err error
	if mk, ok := markerKey(namespace, name, tok); ok {
		applied, err = store.Execute(ctx, e.manager, store.ResetWithMarkerFn(totalKey, mk, e.markerTTL))
	} else {
		_, err = store.Execute(ctx, e.manager, store.ResetFn(totalKey))
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	return e.deleteDeltaKeys(ctx, namespace, name)
}

// deleteDeltaKeys scans and deletes every flat delta key for a counter.
// This is not atomic with the total reset above: a writer racing the
// scan may leave a stray key behind until the next clear or rollup.
func (e *EventualFlat) deleteDeltaKeys(ctx context.Context, namespace, name string) error {
	pattern := keys.FlatDeltaPattern(namespace, name)
	var cursor uint64
	for {
		page, err := store.Execute(ctx, e.manager, store.ScanPageFn(cursor, pattern, scanPageSize))
		if err != nil {
			return err
		}
		if len(page.Keys) > 0 {
			if _, err := store.Execute(ctx, e.manager, store.DelFn(page.Keys...)); err != nil {
				return err
			}
		}
		if page.Cursor == 0 {
			return nil
		}
		cursor = page.Cursor
	}
}

func (e *EventualFlat) AddAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[struct{}] {
	defer e.observe("add", time.Now())
	return store.Discard(store.ExecuteAsync(ctx, e.manager, e.applyFn(namespace, name, delta, tok)))
}

func (e *EventualFlat) AddAndGetAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[Result] {
	defer e.observe("add_and_get", time.Now())
	return store.Go(func() (Result, error) { return e.AddAndGet(ctx, namespace, name, delta, tok) })
}

func (e *EventualFlat) GetAsync(ctx context.Context, namespace, name string) *store.Future[Result] {
	defer e.observe("get", time.Now())
	return store.Go(func() (Result, error) { return e.Get(ctx, namespace, name) })
}

func (e *EventualFlat) ClearAsync(ctx context.Context, namespace, name string, tok token.Token) *store.Future[struct{}] {
	defer e.observe("clear", time.Now())
	return store.Go(func() (struct{}, error) { return struct{}{}, e.Clear(ctx, namespace, name, tok) })
}

func (e *EventualFlat) applyFn(namespace, name string, delta int64, tok token.Token) func(context.Context, store.Cmdable) (store.IncrResult, error) {
	if err := validateArgs(namespace, name); err != nil {
		return failingFn[store.IncrResult](err)
	}
	flatKey := keys.FlatDelta(namespace, name, e.nodeID)
	mk, usedMarker := markerKey(namespace, name, tok)
	var fn func(context.Context, store.Cmdable) (store.IncrResult, error)
	if usedMarker {
		fn = store.IncrWithMarkerFn(flatKey, mk, delta, e.markerTTL)
	} else {
		fn = store.IncrByFn(flatKey, delta)
	}
	return func(ctx context.Context, cmd store.Cmdable) (store.IncrResult, error) {
		res, err := fn(ctx, cmd)
		if err != nil {
			return store.IncrResult{}, err
		}
		recordIdempotentHit(ConsistencyEventual, usedMarker, res)
		return res, nil
	}
}

func (e *EventualFlat) observe(op string, start time.Time) {
	metrics.CounterOperationsTotal.WithLabelValues(string(ConsistencyEventual), op).Inc()
	metrics.CounterOperationDuration.WithLabelValues(string(ConsistencyEventual), op).Observe(time.Since(start).Seconds())
}
