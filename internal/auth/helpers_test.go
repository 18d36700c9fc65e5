package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	t.Run("returns error when no claims in context", func(t *testing.T) {
		ctx := context.Background()
		claims, err := RequireAuth(ctx)
		assert.Nil(t, claims)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unauthenticated")
	})

	t.Run("returns claims when present in context", func(t *testing.T) {
		ctx := context.Background()
		expectedClaims := &UserClaims{UID: "user-123", Email: "test@example.com"}
		ctx = withUserClaims(ctx, expectedClaims)

		claims, err := RequireAuth(ctx)
		require.NoError(t, err)
		assert.Equal(t, expectedClaims.UID, claims.UID)
		assert.Equal(t, expectedClaims.Email, claims.Email)
	})
}

func TestRequireUserAccess(t *testing.T) {
	t.Run("returns error when no claims in context", func(t *testing.T) {
		ctx := context.Background()
		claims, err := RequireUserAccess(ctx, "user-123")
		assert.Nil(t, claims)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unauthenticated")
	})

	t.Run("returns error when user ID does not match", func(t *testing.T) {
		ctx := context.Background()
		ctx = withUserClaims(ctx, &UserClaims{UID: "user-123"})

		claims, err := RequireUserAccess(ctx, "user-456")
		assert.Nil(t, claims)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot access another user's resources")
	})

	t.Run("returns claims when user ID matches", func(t *testing.T) {
		ctx := context.Background()
		ctx = withUserClaims(ctx, &UserClaims{UID: "user-123"})

		claims, err := RequireUserAccess(ctx, "user-123")
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UID)
	})

	t.Run("returns claims when user ID is empty", func(t *testing.T) {
		ctx := context.Background()
		ctx = withUserClaims(ctx, &UserClaims{UID: "user-123"})

		claims, err := RequireUserAccess(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UID)
	})
}
