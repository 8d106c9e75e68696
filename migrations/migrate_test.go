package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryComponentHasMigrations(t *testing.T) {
	for _, c := range Components {
		names, err := files(c)
		require.NoError(t, err, c)
		assert.NotEmpty(t, names, c)
	}
}

func TestFilesSortedAndPrefixed(t *testing.T) {
	names, err := files("common")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "common/001_outbox.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestUnknownComponent(t *testing.T) {
	_, err := files("nope")
	assert.Error(t, err)
}
