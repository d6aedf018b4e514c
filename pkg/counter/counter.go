// Package counter implements the three interchangeable counter
// consistency strategies (best-effort, eventually-consistent, accurate)
// behind a shared blocking and non-blocking contract.
package counter

import (
	"context"

	"github.com/cuemby/tally/pkg/keys"
	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/tallyerr"
	"github.com/cuemby/tally/pkg/token"
)

// Counter is the blocking counter contract (C4). Implementations must
// treat an already-observed idempotency token as a no-op rather than an
// error.
type Counter interface {
	// Add applies delta to (namespace, name). If tok is non-zero and
	// its marker already exists, the call has no additional effect.
	Add(ctx context.Context, namespace, name string, delta int64, tok token.Token) error

	// AddAndGet applies delta and returns the strategy's view of the
	// value after application.
	AddAndGet(ctx context.Context, namespace, name string, delta int64, tok token.Token) (Result, error)

	// Get returns the current value. It never mutates state, except
	// for the accurate strategy's opportunistic reconciliation.
	Get(ctx context.Context, namespace, name string) (Result, error)

	// Clear resets the counter to zero. tok, if non-zero, makes the
	// reset idempotent.
	Clear(ctx context.Context, namespace, name string, tok token.Token) error
}

// AsyncCounter is the non-blocking counter contract (C4): every
// operation returns immediately with a deferred result that completes
// on the backing store's I/O path.
type AsyncCounter interface {
	AddAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[struct{}]
	AddAndGetAsync(ctx context.Context, namespace, name string, delta int64, tok token.Token) *store.Future[Result]
	GetAsync(ctx context.Context, namespace, name string) *store.Future[Result]
	ClearAsync(ctx context.Context, namespace, name string, tok token.Token) *store.Future[struct{}]
}

func validateArgs(namespace, name string) error {
	if err := keys.Validate(namespace, name); err != nil {
		return tallyerr.NewInvalidArgument(err.Error())
	}
	return nil
}

func markerKey(namespace, name string, tok token.Token) (string, bool) {
	if tok.IsZero() {
		return "", false
	}
	return keys.Idempotency(namespace, name, tok.String()), true
}
