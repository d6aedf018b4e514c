// Package keys is the single source of truth for the backing store's
// key-space layout. Every counter strategy, the rollup scheduler, and any
// operator tooling that needs to inspect the store by pattern must derive
// keys from this package so that writers, readers, and rollups agree on
// naming.
//
// No normalization or hashing is performed: namespace and counter names
// are used verbatim. Callers are responsible for disallowing the reserved
// separator ':' in either field (see Validate).
package keys

import (
	"fmt"
	"strings"
)

const sep = ":"

// Validate rejects namespace/counter names that would corrupt the
// key-space layout.
func Validate(namespace, counter string) error {
	if namespace == "" {
		return fmt.Errorf("keys: namespace must not be empty")
	}
	if counter == "" {
		return fmt.Errorf("keys: counter name must not be empty")
	}
	if strings.Contains(namespace, sep) {
		return fmt.Errorf("keys: namespace %q must not contain %q", namespace, sep)
	}
	if strings.Contains(counter, sep) {
		return fmt.Errorf("keys: counter %q must not contain %q", counter, sep)
	}
	return nil
}

// Counter returns the single-key counter entity used by the best-effort
// strategy: "counter:{ns}:{c}".
func Counter(namespace, counter string) string {
	return strings.Join([]string{"counter", namespace, counter}, sep)
}

// Total returns the consolidated total entity used by the
// eventually-consistent strategy and the rollup scheduler:
// "counter:{ns}:{c}:total".
func Total(namespace, counter string) string {
	return strings.Join([]string{"counter", namespace, counter, "total"}, sep)
}

// FlatDelta returns a single node's flat per-node delta key:
// "counter:{ns}:{c}:deltas:{n}".
func FlatDelta(namespace, counter, nodeID string) string {
	return strings.Join([]string{"counter", namespace, counter, "deltas", nodeID}, sep)
}

// FlatDeltaPattern returns the SCAN/KEYS match pattern for all nodes'
// flat delta keys of one counter: "counter:{ns}:{c}:deltas:*".
func FlatDeltaPattern(namespace, counter string) string {
	return strings.Join([]string{"counter", namespace, counter, "deltas", "*"}, sep)
}

// DeltaHash returns the hash-variant delta accumulator key (field =
// nodeId): "counter:{ns}:{c}:deltas".
func DeltaHash(namespace, counter string) string {
	return strings.Join([]string{"counter", namespace, counter, "deltas"}, sep)
}

// DeltaHashPattern returns the SCAN match pattern used by the rollup
// scheduler to sweep every counter's delta hash in a namespace:
// "counter:{namespace}:*:deltas".
func DeltaHashPattern(namespace string) string {
	return strings.Join([]string{"counter", namespace, "*", "deltas"}, sep)
}

// Snapshot returns the accurate strategy's consolidated value key:
// "counter:{ns}:{c}:snapshot".
func Snapshot(namespace, counter string) string {
	return strings.Join([]string{"counter", namespace, counter, "snapshot"}, sep)
}

// SnapshotTimestamp returns the last-reconciliation timestamp key:
// "counter:{ns}:{c}:snapshot:lastSnapshotTs".
func SnapshotTimestamp(namespace, counter string) string {
	return strings.Join([]string{"counter", namespace, counter, "snapshot", "lastSnapshotTs"}, sep)
}

// Idempotency returns the presence-only marker key for one mutation:
// "idempotency:{ns}:{c}:{tokenId}".
func Idempotency(namespace, counter, tokenID string) string {
	return strings.Join([]string{"idempotency", namespace, counter, tokenID}, sep)
}

// CounterNameFromDeltaHashKey recovers the counter name from a delta hash
// key matched by DeltaHashPattern, by splitting on ':' and taking the
// third segment ("counter", namespace, <counter>, "deltas").
func CounterNameFromDeltaHashKey(key string) (string, bool) {
	parts := strings.Split(key, sep)
	if len(parts) != 4 || parts[0] != "counter" || parts[3] != "deltas" {
		return "", false
	}
	return parts[2], true
}
