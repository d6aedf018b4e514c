package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IncrResult is the outcome of a marker-guarded or unconditional
// increment: the resulting value, and whether this call actually
// applied the delta (false means an idempotency marker already
// existed and the call was a no-op).
type IncrResult struct {
	Value   int64
	Applied bool
}

// ReconcileResult is the outcome of one accurate-strategy
// reconciliation: the post-reconciliation snapshot value, and the
// amount folded into it by this call.
type ReconcileResult struct {
	Snapshot int64
	Folded   int64
}

// pairResult parses a two-element RESP array reply, the shape every
// marker-guarded script and the reconcile script return.
func pairResult(reply any) (int64, int64, error) {
	arr, ok := reply.([]any)
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("store: unexpected script reply %#v", reply)
	}
	a, err := toInt64(arr[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := toInt64(arr[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// The functions below build the fn value passed to Execute/ExecuteAsync.
// Keeping them as plain functions (rather than Manager methods) lets a
// caller choose blocking or non-blocking execution at the call site
// without the store package needing two copies of every operation.

func ttlMillis(ttl time.Duration) string {
	if ttl <= 0 {
		return "0"
	}
	return strconv.FormatInt(ttl.Milliseconds(), 10)
}

// IncrWithMarkerFn atomically increments valueKey by delta unless
// markerKey already exists, in which case it returns the current value
// unchanged and IncrResult.Applied is false. Backs the best-effort
// strategy's add/addAndGet and the eventually-consistent flat variant's
// per-node increment.
func IncrWithMarkerFn(valueKey, markerKey string, delta int64, markerTTL time.Duration) func(context.Context, redis.Cmdable) (IncrResult, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (IncrResult, error) {
		res, err := scriptIncrWithMarker.Run(ctx, cmd, []string{valueKey, markerKey}, delta, ttlMillis(markerTTL)).Result()
		if err != nil {
			return IncrResult{}, err
		}
		value, applied, err := pairResult(res)
		if err != nil {
			return IncrResult{}, err
		}
		return IncrResult{Value: value, Applied: applied == 1}, nil
	}
}

// HIncrWithMarkerFn atomically increments a hash field by delta unless
// markerKey already exists. Backs the eventually-consistent hash
// variant and the accurate strategy's add.
func HIncrWithMarkerFn(hashKey, markerKey, field string, delta int64, markerTTL time.Duration) func(context.Context, redis.Cmdable) (IncrResult, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (IncrResult, error) {
		res, err := scriptHIncrWithMarker.Run(ctx, cmd, []string{hashKey, markerKey}, field, delta, ttlMillis(markerTTL)).Result()
		if err != nil {
			return IncrResult{}, err
		}
		value, applied, err := pairResult(res)
		if err != nil {
			return IncrResult{}, err
		}
		return IncrResult{Value: value, Applied: applied == 1}, nil
	}
}

// ResetWithMarkerFn zeroes valueKey unless markerKey already exists.
// Returns true if the reset was applied.
func ResetWithMarkerFn(valueKey, markerKey string, markerTTL time.Duration) func(context.Context, redis.Cmdable) (bool, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (bool, error) {
		res, err := scriptResetWithMarker.Run(ctx, cmd, []string{valueKey, markerKey}, ttlMillis(markerTTL)).Result()
		if err != nil {
			return false, err
		}
		n, err := toInt64(res)
		return n == 1, err
	}
}

// ResetHashWithMarkerFn zeroes valueKey and deletes hashKey unless
// markerKey already exists. Returns true if the reset was applied.
func ResetHashWithMarkerFn(valueKey, hashKey, markerKey string, markerTTL time.Duration) func(context.Context, redis.Cmdable) (bool, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (bool, error) {
		res, err := scriptResetHashWithMarker.Run(ctx, cmd, []string{valueKey, hashKey, markerKey}, ttlMillis(markerTTL)).Result()
		if err != nil {
			return false, err
		}
		n, err := toInt64(res)
		return n == 1, err
	}
}

// ReconcileFn folds a non-empty delta hash into the snapshot, deleting
// only the fields it summed, and returns the post-reconciliation
// snapshot value along with the amount folded in by this call. Backs
// the accurate strategy's read/write-time reconciliation.
func ReconcileFn(deltasKey, snapshotKey, timestampKey string, nowMillis int64) func(context.Context, redis.Cmdable) (ReconcileResult, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (ReconcileResult, error) {
		res, err := scriptReconcile.Run(ctx, cmd, []string{deltasKey, snapshotKey, timestampKey}, nowMillis).Result()
		if err != nil {
			return ReconcileResult{}, err
		}
		snapshot, folded, err := pairResult(res)
		if err != nil {
			return ReconcileResult{}, err
		}
		return ReconcileResult{Snapshot: snapshot, Folded: folded}, nil
	}
}

// FoldHashFn sums a counter's delta hash, adds the sum to total, and
// deletes the hash, atomically. Backs one rollup step.
func FoldHashFn(deltasKey, totalKey string) func(context.Context, redis.Cmdable) (int64, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (int64, error) {
		res, err := scriptFoldHash.Run(ctx, cmd, []string{deltasKey, totalKey}).Result()
		if err != nil {
			return 0, err
		}
		return toInt64(res)
	}
}

// IncrByFn atomically increments valueKey by delta, unconditionally.
// Used when no idempotency token is supplied. Applied is always true.
func IncrByFn(valueKey string, delta int64) func(context.Context, redis.Cmdable) (IncrResult, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (IncrResult, error) {
		v, err := cmd.IncrBy(ctx, valueKey, delta).Result()
		if err != nil {
			return IncrResult{}, err
		}
		return IncrResult{Value: v, Applied: true}, nil
	}
}

// HIncrByFn atomically increments a hash field by delta, unconditionally.
// Applied is always true.
func HIncrByFn(hashKey, field string, delta int64) func(context.Context, redis.Cmdable) (IncrResult, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (IncrResult, error) {
		v, err := cmd.HIncrBy(ctx, hashKey, field, delta).Result()
		if err != nil {
			return IncrResult{}, err
		}
		return IncrResult{Value: v, Applied: true}, nil
	}
}

// ResetFn unconditionally zeroes valueKey.
func ResetFn(valueKey string) func(context.Context, redis.Cmdable) (struct{}, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (struct{}, error) {
		return struct{}{}, cmd.Set(ctx, valueKey, "0", 0).Err()
	}
}

// ResetHashFn unconditionally zeroes valueKey and deletes hashKey.
func ResetHashFn(valueKey, hashKey string) func(context.Context, redis.Cmdable) (struct{}, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (struct{}, error) {
		if err := cmd.Set(ctx, valueKey, "0", 0).Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, cmd.Del(ctx, hashKey).Err()
	}
}

// GetIntFn reads key as a decimal integer, treating a missing key as
// zero.
func GetIntFn(key string) func(context.Context, redis.Cmdable) (int64, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (int64, error) {
		v, err := cmd.Get(ctx, key).Result()
		if err == redis.Nil {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// HGetAllIntFn reads every field of a hash as a decimal integer,
// treating a missing hash as empty.
func HGetAllIntFn(key string) func(context.Context, redis.Cmdable) (map[string]int64, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (map[string]int64, error) {
		raw, err := cmd.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		out := make(map[string]int64, len(raw))
		for field, v := range raw {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			out[field] = n
		}
		return out, nil
	}
}

// SetFn writes key to the literal value v.
func SetFn(key, v string) func(context.Context, redis.Cmdable) (struct{}, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (struct{}, error) {
		return struct{}{}, cmd.Set(ctx, key, v, 0).Err()
	}
}

// DelFn deletes zero or more keys. Deleting zero keys is a no-op.
func DelFn(keys ...string) func(context.Context, redis.Cmdable) (struct{}, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (struct{}, error) {
		if len(keys) == 0 {
			return struct{}{}, nil
		}
		return struct{}{}, cmd.Del(ctx, keys...).Err()
	}
}

// ScanPageFn performs one cursor-based SCAN page matching pattern, page
// size count. Backs pattern sweeps (flat-variant reads, rollup).
func ScanPageFn(cursor uint64, pattern string, count int64) func(context.Context, redis.Cmdable) (ScanPage, error) {
	return func(ctx context.Context, cmd redis.Cmdable) (ScanPage, error) {
		keys, next, err := cmd.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return ScanPage{}, err
		}
		return ScanPage{Keys: keys, Cursor: next}, nil
	}
}

// ScanPage is one page of a cursor-based key-space scan. Cursor is 0
// when the scan is exhausted.
type ScanPage struct {
	Keys   []string
	Cursor uint64
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, nil
	}
}
