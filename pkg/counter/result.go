package counter

import (
	"time"

	"github.com/cuemby/tally/pkg/token"
)

// Consistency tags a Result with the strategy that produced it.
type Consistency string

const (
	ConsistencyBestEffort Consistency = "BEST_EFFORT"
	ConsistencyEventual   Consistency = "EVENTUALLY_CONSISTENT"
	ConsistencyAccurate   Consistency = "ACCURATE"
)

// Result is an immutable observed value produced by a read or a
// read-returning mutation (C11). It is never mutated after construction.
type Result struct {
	Value       int64
	Timestamp   time.Time
	Consistency Consistency
	Token       token.Token
}
