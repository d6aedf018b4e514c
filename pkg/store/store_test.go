package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/tallyerr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*store.Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := store.DefaultConfig()
	cfg.SentinelAddrs = []string{"unused:26379"}
	cfg.MasterName = "test-primary"
	cfg.RetryWait = time.Millisecond

	m := store.NewManagerForTest(cfg, client)
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func TestIncrWithMarkerFn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := store.Execute(ctx, m, store.IncrWithMarkerFn("counter:orders:count", "idempotency:orders:count:tok-1", 5, time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Value)
	require.True(t, res.Applied)

	// Replaying the same marker must be a no-op.
	res, err = store.Execute(ctx, m, store.IncrWithMarkerFn("counter:orders:count", "idempotency:orders:count:tok-1", 5, time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Value)
	require.False(t, res.Applied, "replayed marker must report no-op")
}

func TestHIncrWithMarkerFn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := store.Execute(ctx, m, store.HIncrWithMarkerFn("counter:orders:count:deltas", "idempotency:orders:count:tok-1", "node-a", 3, time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Value)
	require.True(t, res.Applied)

	res, err = store.Execute(ctx, m, store.HIncrWithMarkerFn("counter:orders:count:deltas", "idempotency:orders:count:tok-1", "node-a", 3, time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Value, "replayed marker must not apply the delta twice")
	require.False(t, res.Applied)
}

func TestResetWithMarkerFn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := store.Execute(ctx, m, store.IncrByFn("counter:orders:count", 9))
	require.NoError(t, err)

	applied, err := store.Execute(ctx, m, store.ResetWithMarkerFn("counter:orders:count", "idempotency:orders:count:tok-2", time.Hour))
	require.NoError(t, err)
	require.True(t, applied)

	v, err := store.Execute(ctx, m, store.GetIntFn("counter:orders:count"))
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	applied, err = store.Execute(ctx, m, store.ResetWithMarkerFn("counter:orders:count", "idempotency:orders:count:tok-2", time.Hour))
	require.NoError(t, err)
	require.False(t, applied, "replayed marker must report no-op")
}

func TestReconcileFnDeletesOnlySummedFields(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := store.Execute(ctx, m, store.HIncrByFn("counter:orders:count:deltas", "node-a", 4))
	require.NoError(t, err)
	_, err = store.Execute(ctx, m, store.HIncrByFn("counter:orders:count:deltas", "node-b", 6))
	require.NoError(t, err)

	res, err := store.Execute(ctx, m, store.ReconcileFn("counter:orders:count:deltas", "counter:orders:count:snapshot", "counter:orders:count:snapshot:lastSnapshotTs", time.Now().UnixMilli()))
	require.NoError(t, err)
	require.Equal(t, int64(10), res.Snapshot)
	require.Equal(t, int64(10), res.Folded)

	remaining, err := store.Execute(ctx, m, store.HGetAllIntFn("counter:orders:count:deltas"))
	require.NoError(t, err)
	require.Empty(t, remaining)

	snap, err := store.Execute(ctx, m, store.GetIntFn("counter:orders:count:snapshot"))
	require.NoError(t, err)
	require.Equal(t, int64(10), snap)

	// A concurrent writer landing after the fold above must survive the
	// next reconciliation rather than being silently dropped.
	_, err = store.Execute(ctx, m, store.HIncrByFn("counter:orders:count:deltas", "node-a", 2))
	require.NoError(t, err)
	res, err = store.Execute(ctx, m, store.ReconcileFn("counter:orders:count:deltas", "counter:orders:count:snapshot", "counter:orders:count:snapshot:lastSnapshotTs", time.Now().UnixMilli()))
	require.NoError(t, err)
	require.Equal(t, int64(12), res.Snapshot)
	require.Equal(t, int64(2), res.Folded)
}

func TestFoldHashFnDeletesWholeHash(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := store.Execute(ctx, m, store.HIncrByFn("counter:orders:count:deltas", "node-a", 1))
	require.NoError(t, err)
	_, err = store.Execute(ctx, m, store.HIncrByFn("counter:orders:count:deltas", "node-b", 2))
	require.NoError(t, err)

	v, err := store.Execute(ctx, m, store.FoldHashFn("counter:orders:count:deltas", "counter:orders:count:total"))
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	remaining, err := store.Execute(ctx, m, store.HGetAllIntFn("counter:orders:count:deltas"))
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestScanPageFn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for _, node := range []string{"node-a", "node-b", "node-c"} {
		_, err := store.Execute(ctx, m, store.IncrByFn("counter:orders:count:deltas:"+node, 1))
		require.NoError(t, err)
	}

	var cursor uint64
	var found []string
	for {
		page, err := store.Execute(ctx, m, store.ScanPageFn(cursor, "counter:orders:count:deltas:*", 200))
		require.NoError(t, err)
		found = append(found, page.Keys...)
		if page.Cursor == 0 {
			break
		}
		cursor = page.Cursor
	}
	require.Len(t, found, 3)
}

func TestExecuteAsyncResolves(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	fut := store.ExecuteAsync(ctx, m, store.IncrByFn("counter:orders:count", 7))
	res, err := fut.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), res.Value)
}

func TestHealthCheckDebouncesTransientFailures(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := store.DefaultConfig()
	cfg.SentinelAddrs = []string{"unused:26379"}
	cfg.MasterName = "test-primary"
	cfg.HealthCheckRetries = 2

	m := store.NewManagerForTest(cfg, client)
	defer m.Close()

	ctx := context.Background()
	require.True(t, m.HealthCheck(ctx).Healthy)

	mr.Close() // primary becomes unreachable

	require.True(t, m.HealthCheck(ctx).Healthy, "a single failed probe must not flip to unhealthy")
	require.False(t, m.HealthCheck(ctx).Healthy, "a second consecutive failure must flip to unhealthy")
}

func TestExecuteSurfacesCircuitOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // server is gone before any command runs

	cfg := store.DefaultConfig()
	cfg.SentinelAddrs = []string{"unused:26379"}
	cfg.MasterName = "test-primary"
	cfg.RetryAttempts = 1
	cfg.RetryWait = time.Millisecond
	cfg.BreakerMinRequests = 1

	m := store.NewManagerForTest(cfg, client)
	defer m.Close()

	ctx := context.Background()
	_, err = store.Execute(ctx, m, store.GetIntFn("counter:orders:count"))
	require.Error(t, err)

	// One request, one failure: the breaker is now open, so the next
	// call is rejected as backing-store-unavailable without reaching
	// the store.
	_, err = store.Execute(ctx, m, store.GetIntFn("counter:orders:count"))
	kind, ok := tallyerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, tallyerr.BackingStoreUnavailable, kind)
}
