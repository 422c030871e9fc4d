package uuid

import (
	"testing"

	googleuuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsVersion7(t *testing.T) {
	t.Parallel()

	id, err := New().NewID()
	require.NoError(t, err)
	parsed, err := googleuuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, googleuuid.Version(7), parsed.Version())
}

func TestNewIDSortsBySubmission(t *testing.T) {
	t.Parallel()

	gen := New()
	prev, err := gen.NewID()
	require.NoError(t, err)
	for range 50 {
		next, err := gen.NewID()
		require.NoError(t, err)
		assert.Less(t, prev, next)
		prev = next
	}
}
