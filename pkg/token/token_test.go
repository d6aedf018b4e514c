package token_test

import (
	"testing"
	"time"

	"github.com/cuemby/tally/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	first, err := token.New()
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := token.New()
	require.NoError(t, err)

	assert.False(t, first.Equal(second))
	assert.False(t, second.Time().Before(first.Time()))
}

func TestParseRoundTrip(t *testing.T) {
	tok := token.MustNew()
	parsed, err := token.Parse(tok.String())
	require.NoError(t, err)

	assert.True(t, tok.Equal(parsed))
	assert.Equal(t, tok.Time(), parsed.Time())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := token.Parse("not-a-uuid")
	assert.Error(t, err)
}

func TestIsZero(t *testing.T) {
	var zero token.Token
	assert.True(t, zero.IsZero())
	assert.False(t, token.MustNew().IsZero())
}

func TestSetStrengthFast(t *testing.T) {
	token.SetStrength(token.Fast)
	defer token.SetStrength(token.Strong)

	tok, err := token.New()
	require.NoError(t, err)
	assert.False(t, tok.IsZero())
}
