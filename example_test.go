package tally_test

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	tally "github.com/cuemby/tally"
	"github.com/cuemby/tally/pkg/counter"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/token"
	"github.com/redis/go-redis/v9"
)

// ExampleNewCounter demonstrates building an accurate counter and
// applying an idempotency-protected mutation. It points at an in-memory
// Redis server rather than a sentinel deployment so the example is
// self-contained and deterministic.
func ExampleNewCounter() {
	mr, err := miniredis.Run()
	if err != nil {
		fmt.Println("miniredis error:", err)
		return
	}
	defer mr.Close()

	cfg := store.DefaultConfig()
	cfg.SentinelAddrs = []string{"unused:26379"}
	cfg.MasterName = "tally-primary"

	manager := store.NewManagerForTest(cfg, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer manager.Close()

	c, err := tally.NewCounter(counter.ConsistencyAccurate, manager, counter.FactoryConfig{
		NodeID:    "node-a",
		MarkerTTL: 24 * time.Hour,
	})
	if err != nil {
		fmt.Println("factory error:", err)
		return
	}

	tok := token.MustNew()
	ctx := context.Background()
	result, err := c.AddAndGet(ctx, "orders", "count", 5, tok)
	if err != nil {
		fmt.Println("add failed:", err)
		return
	}
	fmt.Println(result.Consistency)
	// Output: ACCURATE
}

// ExampleNewScheduler demonstrates wiring a rollup scheduler to a
// blocking eventually-consistent counter over the same manager.
func ExampleNewScheduler() {
	cfg := store.DefaultConfig()
	cfg.SentinelAddrs = []string{"sentinel-0:26379"}
	cfg.MasterName = "tally-primary"

	manager, err := store.NewManager(cfg)
	if err != nil {
		fmt.Println("config error:", err)
		return
	}
	defer manager.Close()

	c, err := tally.NewCounter(counter.ConsistencyEventual, manager, counter.FactoryConfig{NodeID: "node-a"})
	if err != nil {
		fmt.Println("factory error:", err)
		return
	}

	scheduler := tally.NewScheduler(c, manager, "orders", time.Minute)
	scheduler.Start()
	defer scheduler.Stop()
}
