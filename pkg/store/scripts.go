package store

import "github.com/redis/go-redis/v9"

// These scripts give the marker-then-mutation pair, and the
// accurate-strategy reconciliation, the all-or-nothing semantics the
// design calls for in place of the two separate writes. Every script
// treats a pre-existing marker as "already applied" and returns without
// touching the mutation target, matching the idempotency contract.

// scriptIncrWithMarker applies an atomic integer increment guarded by an
// idempotency marker. KEYS[1] = value key, KEYS[2] = marker key.
// ARGV[1] = delta, ARGV[2] = marker TTL in milliseconds (0 = no expiry).
// Returns {value, applied}: the post-increment value and 1 if the
// increment was applied, or the current value and 0 if the marker
// already existed and the call was a no-op.
var scriptIncrWithMarker = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  local cur = redis.call('GET', KEYS[1])
  if cur then return {tonumber(cur), 0} else return {0, 0} end
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
else
  redis.call('SET', KEYS[2], '1')
end
return {redis.call('INCRBY', KEYS[1], ARGV[1]), 1}
`)

// scriptHIncrWithMarker applies an atomic hash-field increment guarded
// by an idempotency marker. KEYS[1] = hash key, KEYS[2] = marker key.
// ARGV[1] = field, ARGV[2] = delta, ARGV[3] = marker TTL in milliseconds.
// Returns {value, applied}: the post-increment field value and 1 if the
// increment was applied, or the field's current value and 0 if the
// marker already existed and the call was a no-op.
var scriptHIncrWithMarker = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  local cur = redis.call('HGET', KEYS[1], ARGV[1])
  if cur then return {tonumber(cur), 0} else return {0, 0} end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
else
  redis.call('SET', KEYS[2], '1')
end
return {redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2]), 1}
`)

// scriptResetWithMarker zeroes a single value key guarded by an
// idempotency marker. KEYS[1] = value key, KEYS[2] = marker key.
// ARGV[1] = marker TTL in milliseconds. Returns 1 if the reset was
// applied, 0 if the marker already existed.
var scriptResetWithMarker = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
if tonumber(ARGV[1]) > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
else
  redis.call('SET', KEYS[2], '1')
end
redis.call('SET', KEYS[1], '0')
return 1
`)

// scriptResetHashWithMarker zeroes a value key and drops an associated
// hash key guarded by an idempotency marker. KEYS[1] = value key,
// KEYS[2] = hash key, KEYS[3] = marker key. ARGV[1] = marker TTL in
// milliseconds. Returns 1 if the reset was applied, 0 if the marker
// already existed.
var scriptResetHashWithMarker = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 0
end
if tonumber(ARGV[1]) > 0 then
  redis.call('SET', KEYS[3], '1', 'PX', ARGV[1])
else
  redis.call('SET', KEYS[3], '1')
end
redis.call('SET', KEYS[1], '0')
redis.call('DEL', KEYS[2])
return 1
`)

// scriptReconcile performs the accurate strategy's reconciliation:
// it sums the delta hash, folds the sum into the snapshot, and deletes
// only the fields it summed, never the whole hash blindly. KEYS[1] =
// deltas hash, KEYS[2] = snapshot key, KEYS[3] = snapshot timestamp key.
// ARGV[1] = current epoch millis. Returns {snapshot, folded}: the
// post-reconciliation snapshot value and the amount folded in by this
// call (0 when there was nothing to reconcile).
var scriptReconcile = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
local sum = 0
local names = {}
for i = 1, #fields, 2 do
  local v = tonumber(fields[i + 1]) or 0
  sum = sum + v
  table.insert(names, fields[i])
end
if sum ~= 0 then
  local snapshot = redis.call('INCRBY', KEYS[2], sum)
  if #names > 0 then
    redis.call('HDEL', KEYS[1], unpack(names))
  end
  redis.call('SET', KEYS[3], ARGV[1])
  return {snapshot, sum}
end
local cur = redis.call('GET', KEYS[2])
if cur then return {tonumber(cur), 0} else return {0, 0} end
`)

// scriptFoldHash performs one rollup step: it sums a counter's delta
// hash, increments the counter's total by the sum, and deletes the
// hash entirely. Executed as a single script, so no writer can
// interleave between the sum and the delete. KEYS[1] = deltas hash,
// KEYS[2] = total key. Returns the folded sum.
var scriptFoldHash = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
local sum = 0
for i = 1, #fields, 2 do
  sum = sum + (tonumber(fields[i + 1]) or 0)
end
if sum ~= 0 then
  redis.call('INCRBY', KEYS[2], sum)
end
redis.call('DEL', KEYS[1])
return sum
`)
