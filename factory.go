package tally

import (
	"time"

	"github.com/cuemby/tally/pkg/counter"
	"github.com/cuemby/tally/pkg/rollup"
	"github.com/cuemby/tally/pkg/store"
)

// NewCounter is the counter factory (C9): it builds the blocking
// Counter for one consistency level.
func NewCounter(consistency counter.Consistency, m *store.Manager, cfg counter.FactoryConfig) (counter.Counter, error) {
	return counter.New(consistency, m, cfg)
}

// NewAsyncCounter is the counter factory (C9): it builds the
// non-blocking AsyncCounter for one consistency level.
func NewAsyncCounter(consistency counter.Consistency, m *store.Manager, cfg counter.FactoryConfig) (counter.AsyncCounter, error) {
	return counter.NewAsync(consistency, m, cfg)
}

// NewScheduler is the blocking half of the scheduler factory (C10): it
// picks the blocking rollup implementation to match a blocking Counter
// instance. The instance argument is not used by the body; its static
// type is what ties a call site's rollup to the counter contract it is
// rolling up for. Go's static typing resolves the blocking-vs-
// non-blocking choice at the call site instead of by runtime
// inspection, since a single concrete strategy type satisfies both
// counter.Counter and counter.AsyncCounter simultaneously.
func NewScheduler(_ counter.Counter, m *store.Manager, namespace string, interval time.Duration) *rollup.Scheduler {
	return rollup.NewScheduler(m, namespace, interval, rollup.Blocking)
}

// NewAsyncScheduler is the non-blocking half of the scheduler factory
// (C10): it picks the pipelined rollup implementation to match a
// non-blocking AsyncCounter instance.
func NewAsyncScheduler(_ counter.AsyncCounter, m *store.Manager, namespace string, interval time.Duration) *rollup.Scheduler {
	return rollup.NewScheduler(m, namespace, interval, rollup.NonBlocking)
}
