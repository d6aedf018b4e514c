package counter_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/tally/pkg/counter"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/token"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *store.Manager {
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
	return m
}

func TestBestEffortAddAndGet(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewBestEffort(m, time.Hour)
	ctx := context.Background()

	result, err := c.AddAndGet(ctx, "orders", "count", 5, token.Token{})
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Value)
	require.Equal(t, counter.ConsistencyBestEffort, result.Consistency)

	result, err = c.AddAndGet(ctx, "orders", "count", 3, token.Token{})
	require.NoError(t, err)
	require.Equal(t, int64(8), result.Value)
}

func TestBestEffortIdempotentRetry(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewBestEffort(m, time.Hour)
	ctx := context.Background()
	tok := token.MustNew()

	require.NoError(t, c.Add(ctx, "orders", "count", 10, tok))
	require.NoError(t, c.Add(ctx, "orders", "count", 10, tok))

	result, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(10), result.Value, "replaying the same token must not double-apply the delta")
}

func TestBestEffortClear(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewBestEffort(m, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "orders", "count", 4, token.Token{}))
	require.NoError(t, c.Clear(ctx, "orders", "count", token.Token{}))

	result, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Value)
}

func TestBestEffortRejectsInvalidArgs(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewBestEffort(m, time.Hour)
	ctx := context.Background()

	_, err := c.Get(ctx, "", "count")
	require.Error(t, err)
}

func TestBestEffortAsync(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewBestEffort(m, time.Hour)
	ctx := context.Background()

	fut := c.AddAndGetAsync(ctx, "orders", "count", 6, token.Token{})
	result, err := fut.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), result.Value)
}

func TestEventualHashConvergesAcrossNodes(t *testing.T) {
	m := newTestManager(t)
	nodeA := counter.NewEventualHash(m, "node-a", time.Hour)
	nodeB := counter.NewEventualHash(m, "node-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 5, token.Token{}))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 7, token.Token{}))

	result, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(12), result.Value, "both nodes' contributions must be visible in a read")
}

func TestEventualHashAddAndGetIncludesConcurrentWriters(t *testing.T) {
	m := newTestManager(t)
	nodeA := counter.NewEventualHash(m, "node-a", time.Hour)
	nodeB := counter.NewEventualHash(m, "node-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, nodeB.Add(ctx, "orders", "count", 100, token.Token{}))

	result, err := nodeA.AddAndGet(ctx, "orders", "count", 1, token.Token{})
	require.NoError(t, err)
	require.Equal(t, int64(101), result.Value, "addAndGet is add-then-get, so it observes other nodes too")
}

func TestEventualHashClear(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewEventualHash(m, "node-a", time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "orders", "count", 9, token.Token{}))
	require.NoError(t, c.Clear(ctx, "orders", "count", token.Token{}))

	result, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Value)
}

func TestEventualFlatConvergesAcrossNodes(t *testing.T) {
	m := newTestManager(t)
	nodeA := counter.NewEventualFlat(m, "node-a", time.Hour)
	nodeB := counter.NewEventualFlat(m, "node-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 2, token.Token{}))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 3, token.Token{}))

	result, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Value)
}

func TestEventualFlatClearRemovesDeltaKeys(t *testing.T) {
	m := newTestManager(t)
	nodeA := counter.NewEventualFlat(m, "node-a", time.Hour)
	nodeB := counter.NewEventualFlat(m, "node-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 2, token.Token{}))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 3, token.Token{}))
	require.NoError(t, nodeA.Clear(ctx, "orders", "count", token.Token{}))

	result, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Value)
}

func TestAccurateReconcilesOnRead(t *testing.T) {
	m := newTestManager(t)
	nodeA := counter.NewAccurate(m, "node-a", time.Hour)
	nodeB := counter.NewAccurate(m, "node-b", time.Hour)
	ctx := context.Background()

	require.NoError(t, nodeA.Add(ctx, "orders", "count", 4, token.Token{}))
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 6, token.Token{}))

	result, err := nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(10), result.Value)
}

func TestAccurateIdempotentAdd(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewAccurate(m, "node-a", time.Hour)
	ctx := context.Background()
	tok := token.MustNew()

	require.NoError(t, c.Add(ctx, "orders", "count", 10, tok))
	require.NoError(t, c.Add(ctx, "orders", "count", 10, tok))

	result, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(10), result.Value)
}

func TestAccurateConcurrentWriterSurvivesReconciliation(t *testing.T) {
	m := newTestManager(t)
	nodeA := counter.NewAccurate(m, "node-a", time.Hour)
	nodeB := counter.NewAccurate(m, "node-b", time.Hour)
	ctx := context.Background()

	result, err := nodeA.AddAndGet(ctx, "orders", "count", 5, token.Token{})
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Value)

	// nodeB's delta lands logically "during" the reconciliation triggered
	// by nodeA's AddAndGet above; the per-field HDEL must not drop it.
	require.NoError(t, nodeB.Add(ctx, "orders", "count", 2, token.Token{}))

	result, err = nodeA.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(7), result.Value)
}

func TestAccurateClear(t *testing.T) {
	m := newTestManager(t)
	c := counter.NewAccurate(m, "node-a", time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "orders", "count", 8, token.Token{}))
	require.NoError(t, c.Clear(ctx, "orders", "count", token.Token{}))

	result, err := c.Get(ctx, "orders", "count")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Value)
}

func TestFactoryNewRequiresNodeIDForEventualAndAccurate(t *testing.T) {
	m := newTestManager(t)

	_, err := counter.New(counter.ConsistencyEventual, m, counter.FactoryConfig{})
	require.Error(t, err)

	_, err = counter.New(counter.ConsistencyAccurate, m, counter.FactoryConfig{})
	require.Error(t, err)

	_, err = counter.New(counter.ConsistencyBestEffort, m, counter.FactoryConfig{})
	require.NoError(t, err)
}

func TestFactoryNewRejectsUnknownConsistency(t *testing.T) {
	m := newTestManager(t)
	_, err := counter.New(counter.Consistency("bogus"), m, counter.FactoryConfig{NodeID: "node-a"})
	require.Error(t, err)
}

func TestFactoryBuildsWorkingCounter(t *testing.T) {
	m := newTestManager(t)
	c, err := counter.New(counter.ConsistencyAccurate, m, counter.FactoryConfig{NodeID: "node-a", MarkerTTL: time.Hour})
	require.NoError(t, err)

	ctx := context.Background()
	result, err := c.AddAndGet(ctx, "orders", "count", 1, token.Token{})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Value)
	require.Equal(t, counter.ConsistencyAccurate, result.Consistency)
}
