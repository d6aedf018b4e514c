package keys_test

import (
	"testing"

	"github.com/cuemby/tally/pkg/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		namespace string
		counter   string
		wantErr   bool
	}{
		{"ok", "orders", "count", false},
		{"empty namespace", "", "count", true},
		{"empty counter", "orders", "", true},
		{"namespace with separator", "ord:ers", "count", true},
		{"counter with separator", "orders", "co:unt", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := keys.Validate(tc.namespace, tc.counter)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "counter:orders:count", keys.Counter("orders", "count"))
	assert.Equal(t, "counter:orders:count:total", keys.Total("orders", "count"))
	assert.Equal(t, "counter:orders:count:deltas:node-a", keys.FlatDelta("orders", "count", "node-a"))
	assert.Equal(t, "counter:orders:count:deltas:*", keys.FlatDeltaPattern("orders", "count"))
	assert.Equal(t, "counter:orders:count:deltas", keys.DeltaHash("orders", "count"))
	assert.Equal(t, "counter:orders:*:deltas", keys.DeltaHashPattern("orders"))
	assert.Equal(t, "counter:orders:count:snapshot", keys.Snapshot("orders", "count"))
	assert.Equal(t, "counter:orders:count:snapshot:lastSnapshotTs", keys.SnapshotTimestamp("orders", "count"))
	assert.Equal(t, "idempotency:orders:count:tok-1", keys.Idempotency("orders", "count", "tok-1"))
}

func TestCounterNameFromDeltaHashKey(t *testing.T) {
	name, ok := keys.CounterNameFromDeltaHashKey("counter:orders:count:deltas")
	require.True(t, ok)
	assert.Equal(t, "count", name)

	_, ok = keys.CounterNameFromDeltaHashKey("counter:orders:count:deltas:node-a")
	assert.False(t, ok, "flat delta keys have one extra segment and must not match")

	_, ok = keys.CounterNameFromDeltaHashKey("counter:orders:count:total")
	assert.False(t, ok)

	_, ok = keys.CounterNameFromDeltaHashKey("not-a-counter-key")
	assert.False(t, ok)
}
