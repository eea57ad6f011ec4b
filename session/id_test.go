package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDShapeAndPrefix(t *testing.T) {
	id, err := NewID(QuotePrefix)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, QuotePrefix))
	suffix := strings.TrimPrefix(id, QuotePrefix)
	assert.Len(t, suffix, idLength)
	for _, r := range suffix {
		assert.Contains(t, idAlphabet, string(r))
	}
}

func TestNewIDIsRandom(t *testing.T) {
	a, err := NewID(ChartPrefix)
	require.NoError(t, err)
	b, err := NewID(ChartPrefix)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
