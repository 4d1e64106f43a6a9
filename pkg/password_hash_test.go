package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("bridge-secret")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.True(t, CheckSecretHash("bridge-secret", hash))
	assert.False(t, CheckSecretHash("other-secret", hash))
	assert.False(t, CheckSecretHash("bridge-secret", "not-a-hash"))
}
