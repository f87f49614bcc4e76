package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/pkg/adapters/memory"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/persistence/middleware"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, middleware.KeySize)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func stateWithUtterance(text string) *domain.State {
	s := domain.NewState("s1", 26)
	s.Visited = []string{"A"}
	s.Scores["A"] = 9
	s.TotalScore = 9
	s.LastUtterance = text
	return s
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	original := stateWithUtterance("my phone is 555 0100 2000")
	require.NoError(t, secure.Save(ctx, "s1", original))
	assert.Equal(t, "my phone is 555 0100 2000", original.LastUtterance, "caller state must not change")

	stored, err := underlying.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.LastUtterance, "sealed:v1:"))
	assert.NotContains(t, stored.LastUtterance, "555")
	assert.Equal(t, []string{"A"}, stored.Visited)

	loaded, err := secure.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, original.LastUtterance, loaded.LastUtterance)
	assert.Equal(t, 9.0, loaded.TotalScore)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, oldStore.Save(ctx, "s1", stateWithUtterance("encrypted with the old key")))

	t.Run("Without Fallback", func(t *testing.T) {
		store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
		_, err := store.Load(ctx, "s1")
		assert.Error(t, err)
	})

	t.Run("With Fallback", func(t *testing.T) {
		store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    newKey,
			FallbackKeys: [][]byte{oldKey},
		})(underlying)
		loaded, err := store.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "encrypted with the old key", loaded.LastUtterance)
	})
}

func TestEncryptionMiddleware_FailsOnPlaintext(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "s1", stateWithUtterance("plain")))
	require.NoError(t, underlying.Save(ctx, "s2", stateWithUtterance("")))

	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := store.Load(ctx, "s1")
	assert.Error(t, err)

	loaded, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, loaded.LastUtterance)
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = middleware.ParseKey("not base64!")
	assert.Error(t, err)
	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
