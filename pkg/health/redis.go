package health

import (
	"context"
	"fmt"
	"time"
)

// PingFunc issues a liveness probe against the backing store (typically a
// Redis PING) and returns an error if the store did not respond.
type PingFunc func(ctx context.Context) error

// RedisChecker performs a PING-based health check against a backing store.
type RedisChecker struct {
	// Name identifies the target being checked (e.g. the Sentinel master name).
	Name string

	// Timeout bounds each individual check. Defaults to 5s.
	Timeout time.Duration

	ping PingFunc
}

// NewRedisChecker creates a health checker that calls ping on each Check.
func NewRedisChecker(name string, ping PingFunc) *RedisChecker {
	return &RedisChecker{
		Name:    name,
		Timeout: 5 * time.Second,
		ping:    ping,
	}
}

// Check performs the health check.
func (r *RedisChecker) Check(ctx context.Context) Result {
	start := time.Now()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.ping(ctx); err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("ping to %s failed: %v", r.Name, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("ping to %s succeeded", r.Name),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type.
func (r *RedisChecker) Type() CheckType {
	return CheckTypeRedis
}
