// Package rollup implements the periodic namespace sweep that folds
// per-node delta hashes into their consolidated totals (C8). Besides
// the log and metrics packages, it depends only on the key builder and
// the backing-store manager, so that no counter strategy ever needs to
// import it.
package rollup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/tally/pkg/keys"
	"github.com/cuemby/tally/pkg/log"
	"github.com/cuemby/tally/pkg/metrics"
	"github.com/cuemby/tally/pkg/store"
	"github.com/rs/zerolog"
)

// scanPageSize matches the design's "~100-200" guidance for
// cursor-based pattern scans.
const scanPageSize = 200

// Mode selects how a Scheduler executes the per-key folds within one
// tick.
type Mode int

const (
	// Blocking folds each matching key sequentially on the scheduler
	// goroutine.
	Blocking Mode = iota

	// NonBlocking pipelines every matching key's fold within a page
	// and only advances the cursor once the whole page resolves.
	NonBlocking
)

// Scheduler periodically sweeps one namespace's hash-variant delta
// keys, folding each into its total and deleting the delta entity
// (C8). Per-tick failures are logged and swallowed; the next tick
// retries naturally.
type Scheduler struct {
	manager   *store.Manager
	namespace string
	interval  time.Duration
	mode      Mode
	logger    zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler builds a Scheduler over namespace, ticking every
// interval. mode chooses whether a tick's per-key folds run
// sequentially or pipelined.
func NewScheduler(m *store.Manager, namespace string, interval time.Duration, mode Mode) *Scheduler {
	return &Scheduler{
		manager:   m,
		namespace: namespace,
		interval:  interval,
		mode:      mode,
		logger:    log.WithComponent("rollup"),
	}
}

// Start begins the periodic sweep on its own goroutine. Calling Start
// on an already-started Scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)
}

// Stop cancels the next tick without interrupting one already in
// flight, and waits for the scheduler goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (s *Scheduler) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-stopCh:
			return
		}
	}
}

// Tick runs one sweep of the namespace. It is exported so a host
// application can drive rollups on its own schedule instead of calling
// Start.
func (s *Scheduler) Tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RollupCycleDuration)

	var err error
	if s.mode == NonBlocking {
		err = s.tickNonBlocking(ctx)
	} else {
		err = s.tickBlocking(ctx)
	}

	if err != nil {
		metrics.RollupCyclesTotal.WithLabelValues("failure").Inc()
		s.logger.Error().Err(err).Str("namespace", s.namespace).Msg("rollup cycle failed")
		return
	}
	metrics.RollupCyclesTotal.WithLabelValues("success").Inc()
}

func (s *Scheduler) tickBlocking(ctx context.Context) error {
	pattern := keys.DeltaHashPattern(s.namespace)
	var cursor uint64
	for {
		page, err := store.Execute(ctx, s.manager, store.ScanPageFn(cursor, pattern, scanPageSize))
		if err != nil {
			return fmt.Errorf("rollup: scan %s: %w", pattern, err)
		}
		for _, key := range page.Keys {
			if err := s.foldOne(ctx, key); err != nil {
				return err
			}
		}
		if page.Cursor == 0 {
			return nil
		}
		cursor = page.Cursor
	}
}

func (s *Scheduler) tickNonBlocking(ctx context.Context) error {
	pattern := keys.DeltaHashPattern(s.namespace)
	var cursor uint64
	for {
		page, err := store.Execute(ctx, s.manager, store.ScanPageFn(cursor, pattern, scanPageSize))
		if err != nil {
			return fmt.Errorf("rollup: scan %s: %w", pattern, err)
		}

		futures := make([]*store.Future[int64], 0, len(page.Keys))
		foldedKeys := make([]string, 0, len(page.Keys))
		for _, key := range page.Keys {
			name, ok := keys.CounterNameFromDeltaHashKey(key)
			if !ok {
				continue
			}
			totalKey := keys.Total(s.namespace, name)
			futures = append(futures, store.ExecuteAsync(ctx, s.manager, store.FoldHashFn(key, totalKey)))
			foldedKeys = append(foldedKeys, key)
		}

		for i, fut := range futures {
			if _, err := fut.Wait(ctx); err != nil {
				return fmt.Errorf("rollup: fold %s: %w", foldedKeys[i], err)
			}
			metrics.RollupCountersFoldedTotal.Inc()
		}

		if page.Cursor == 0 {
			return nil
		}
		cursor = page.Cursor
	}
}

func (s *Scheduler) foldOne(ctx context.Context, deltaKey string) error {
	name, ok := keys.CounterNameFromDeltaHashKey(deltaKey)
	if !ok {
		return nil
	}
	totalKey := keys.Total(s.namespace, name)
	if _, err := store.Execute(ctx, s.manager, store.FoldHashFn(deltaKey, totalKey)); err != nil {
		return fmt.Errorf("rollup: fold %s: %w", deltaKey, err)
	}
	metrics.RollupCountersFoldedTotal.Inc()
	return nil
}
