// Package store provides pooled, retrying, circuit-broken access to a
// sentinel-discovered Redis primary. It is the only package in this
// module that imports the Redis client directly; every counter strategy
// and the rollup scheduler route their commands through a Manager.
package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/tally/pkg/health"
	"github.com/cuemby/tally/pkg/log"
	"github.com/cuemby/tally/pkg/metrics"
	"github.com/cuemby/tally/pkg/tallyerr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Manager owns the pooled client for one sentinel-monitored primary and
// enforces the resilience policy described in its Config: a fixed
// number of retries with a fixed wait, behind a circuit breaker that
// opens on a sustained failure rate.
type Manager struct {
	cfg     Config
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger

	healthChecker *health.RedisChecker
	healthStatus  *health.Status
	healthCfg     health.Config
}

// NewManager resolves the sentinel-monitored primary and returns a
// ready Manager. It does not block on connectivity; the first Execute
// or ExecuteAsync call establishes the connection lazily, the same way
// the underlying client does.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &redis.FailoverOptions{
		MasterName:    cfg.MasterName,
		SentinelAddrs: cfg.SentinelAddrs,
		Password:      cfg.Password,
		PoolSize:      cfg.PoolMaxTotal,
		MinIdleConns:  cfg.PoolMinIdle,
		PoolTimeout:   cfg.PoolMaxWait,
		DialTimeout:   cfg.CommandTimeout,
		ReadTimeout:   cfg.CommandTimeout,
		WriteTimeout:  cfg.CommandTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return newManager(cfg, redis.NewFailoverClient(opts)), nil
}

// NewManagerForTest builds a Manager around an already-constructed
// client, skipping sentinel discovery entirely. It exists for tests
// that point the store package at an in-memory server (e.g. miniredis)
// rather than a real sentinel deployment.
func NewManagerForTest(cfg Config, client *redis.Client) *Manager {
	return newManager(cfg, client)
}

func newManager(cfg Config, client *redis.Client) *Manager {
	m := &Manager{
		cfg:       cfg,
		client:    client,
		breaker:   gobreaker.NewCircuitBreaker(breakerSettings(cfg)),
		logger:    log.WithComponent("store"),
		healthCfg: health.Config{Retries: cfg.HealthCheckRetries},
	}
	m.healthChecker = health.NewRedisChecker(cfg.MasterName, func(ctx context.Context) error {
		return m.client.Ping(ctx).Err()
	})
	m.healthChecker.Timeout = cfg.CommandTimeout
	m.healthStatus = health.NewStatus()
	return m
}

func breakerSettings(cfg Config) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        fmt.Sprintf("tally-store-%s", cfg.MasterName),
		MaxRequests: 3,
		Timeout:     cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.StoreCircuitBreakerState.Set(float64(to))
			log.WithComponent("store").Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
}

// Close drains the pool and shuts down the underlying client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// HealthCheck pings the resolved primary through a Redis-shaped health
// checker and folds the outcome into the Manager's running status,
// useful for a host application's own liveness endpoint. A single
// failed probe does not flip the reported health to unhealthy; that
// only happens after HealthCheckRetries consecutive failures, so a
// liveness endpoint polling this method does not flap on one slow or
// dropped ping.
func (m *Manager) HealthCheck(ctx context.Context) health.Result {
	result := m.healthChecker.Check(ctx)
	m.healthStatus.Update(result, m.healthCfg)
	result.Healthy = m.healthStatus.Healthy
	return result
}

// Cmdable is the synchronous command handle passed to every Execute and
// ExecuteAsync function. It is an alias for go-redis's client interface
// so that only this package needs to import the driver directly.
type Cmdable = redis.Cmdable

// Future is the deferred result of a non-blocking Execute call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// FailedFuture returns an already-resolved Future carrying err. Useful
// for rejecting a non-blocking call before it reaches the store, e.g.
// on argument validation failure.
func FailedFuture[T any](err error) *Future[T] {
	fut := &Future[T]{done: make(chan struct{})}
	fut.err = err
	close(fut.done)
	return fut
}

// Map transforms a Future's eventual value without blocking the
// caller, preserving its resolve/reject semantics.
func Map[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	out := &Future[U]{done: make(chan struct{})}
	go func() {
		defer close(out.done)
		v, err := f.Wait(context.Background())
		if err != nil {
			out.err = err
			return
		}
		out.val = fn(v)
	}()
	return out
}

// Discard drops a Future's value, keeping only its completion and
// error.
func Discard[T any](f *Future[T]) *Future[struct{}] {
	return Map(f, func(T) struct{} { return struct{}{} })
}

// Go runs fn on its own goroutine and returns a Future for its result.
// Used to compose several Execute calls (e.g. a cursor scan followed by
// a read) into a single non-blocking operation.
func Go[T any](fn func() (T, error)) *Future[T] {
	fut := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(fut.done)
		fut.val, fut.err = fn()
	}()
	return fut
}

// Wait blocks until the deferred result is available or ctx is done,
// whichever comes first. The borrowed connection is released before
// Wait can return a value, regardless of whether the caller observes
// it.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Execute is the blocking primitive: it runs fn against the pooled
// client, decorated with fixed-wait retry then circuit breaking, and
// returns fn's result or an infrastructure error.
func Execute[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, cmd redis.Cmdable) (T, error)) (T, error) {
	return execute(ctx, m, fn)
}

// ExecuteAsync is the non-blocking primitive: it launches fn on its own
// goroutine, applying the same retry+breaker composition, and returns
// immediately with a Future. The connection borrowed by fn is released
// exactly once, when the Future resolves or rejects.
func ExecuteAsync[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, cmd redis.Cmdable) (T, error)) *Future[T] {
	fut := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(fut.done)
		fut.val, fut.err = execute(ctx, m, fn)
	}()
	return fut
}

// errSlowCall marks a call that succeeded but exceeded the breaker's
// slow-call threshold. It is never returned to a caller: execute
// intercepts it, counts the call as a breaker failure (so a sustained
// run of slow calls trips the breaker same as a run of errors would),
// and still returns the call's real result.
var errSlowCall = errors.New("store: call exceeded slow-call threshold")

func execute[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, cmd redis.Cmdable) (T, error)) (T, error) {
	var zero T
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StoreCommandDuration)

	attempts := 0
	var result T
	slow := false

	op := func() error {
		attempts++
		v, err := m.breaker.Execute(func() (any, error) {
			start := time.Now()
			res, fnErr := fn(ctx, m.client)
			if fnErr != nil {
				return res, fnErr
			}
			if m.cfg.BreakerSlowCallDuration > 0 && time.Since(start) > m.cfg.BreakerSlowCallDuration {
				return res, errSlowCall
			}
			return res, nil
		})
		if err != nil {
			if errors.Is(err, errSlowCall) {
				result = v.(T)
				slow = true
				return nil
			}
			return err
		}
		result = v.(T)
		return nil
	}

	boff := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.RetryWait), uint64(maxInt(m.cfg.RetryAttempts-1, 0))),
		ctx,
	)

	err := backoff.Retry(op, boff)
	if attempts > 1 {
		metrics.StoreRetriesTotal.Add(float64(attempts - 1))
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.StoreCommandsTotal.WithLabelValues("circuit_open").Inc()
			return zero, tallyerr.NewBackingStoreUnavailable("circuit breaker open", err)
		}
		metrics.StoreCommandsTotal.WithLabelValues("failure").Inc()
		return zero, tallyerr.NewBackingStoreCommandFailure("command failed after retries", err)
	}
	if slow {
		metrics.StoreCommandsTotal.WithLabelValues("slow").Inc()
		return result, nil
	}
	metrics.StoreCommandsTotal.WithLabelValues("success").Inc()
	return result, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
