// Package token implements the idempotency token used to deduplicate
// retried counter mutations: a time-ordered UUID v7 (RFC 9562) paired
// with the instant it was generated.
package token

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Strength selects the entropy source backing token generation. It is a
// diagnostic knob only; it has no effect on the wire format.
type Strength int

const (
	// Strong draws randomness from crypto/rand. This is the default.
	Strong Strength = iota

	// Fast draws randomness from math/rand/v2, trading cryptographic
	// strength for throughput in non-adversarial environments. Installing
	// it cannot fail, so there is no automatic fallback to Strong.
	Fast
)

var strengthMu sync.RWMutex

// SetStrength installs the entropy source used by New. It is safe to call
// concurrently with New, though in-flight generation may observe either
// source.
func SetStrength(s Strength) {
	strengthMu.Lock()
	defer strengthMu.Unlock()

	switch s {
	case Fast:
		uuid.SetRand(fastReader{})
	default:
		// nil restores google/uuid's internal crypto/rand-backed reader.
		uuid.SetRand(nil)
	}
}

// fastReader adapts math/rand/v2's global source to io.Reader. The global
// source never returns an error, so SetStrength(Strong) is the only
// "fallback" path a caller needs if Fast generation is ever undesirable.
type fastReader struct{}

func (fastReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rand.IntN(256))
	}
	return len(p), nil
}

// Token is an opaque, time-ordered identifier. Two tokens are equal iff
// both the identifier and the generation instant are equal.
type Token struct {
	id        uuid.UUID
	generated time.Time
}

// New generates a fresh token using the currently installed entropy
// source.
func New() (Token, error) {
	strengthMu.RLock()
	id, err := uuid.NewV7()
	strengthMu.RUnlock()
	if err != nil {
		return Token{}, fmt.Errorf("token: generate uuid v7: %w", err)
	}
	return Token{id: id, generated: timestampOf(id)}, nil
}

// MustNew generates a fresh token and panics on failure. Entropy
// exhaustion on a well-formed host is not a condition callers are
// expected to recover from.
func MustNew() Token {
	t, err := New()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse decodes a token from its serialized UUID string form, rejecting
// anything that is not a well-formed UUID.
func Parse(s string) (Token, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Token{}, fmt.Errorf("token: parse %q: %w", s, err)
	}
	return Token{id: id, generated: timestampOf(id)}, nil
}

// String returns the canonical UUID string form. This is the token's
// external wire representation.
func (t Token) String() string {
	return t.id.String()
}

// Time returns the millisecond-precision instant encoded in the token.
func (t Token) Time() time.Time {
	return t.generated
}

// IsZero reports whether t is the zero Token (no token present).
func (t Token) IsZero() bool {
	return t.id == uuid.Nil
}

// Equal reports whether two tokens refer to the same identifier.
func (t Token) Equal(other Token) bool {
	return t.id == other.id
}

// timestampOf extracts the 48-bit millisecond timestamp embedded in a
// UUID v7's first 6 bytes.
func timestampOf(id uuid.UUID) time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms).UTC()
}
