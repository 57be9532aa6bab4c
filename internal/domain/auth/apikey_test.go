package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	a := Hash([]byte("pepper"), "key")
	b := Hash([]byte("pepper"), "key")
	c := Hash([]byte("other"), "key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
	assert.Empty(t, User(context.Background()))

	k := &APIKeyInfo{ID: "1", Name: "caja-1", Scopes: []string{ScopeCaja}}
	ctx := WithKey(context.Background(), k)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, k, got)
	assert.Equal(t, "caja-1", User(ctx))
	assert.True(t, got.Allows(ScopeCaja))
	assert.False(t, got.Allows(ScopeInventory))
}
