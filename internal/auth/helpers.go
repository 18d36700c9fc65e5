package auth

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
)

// RequireAuth extracts user claims from context or returns an unauthenticated error
func RequireAuth(ctx context.Context) (*UserClaims, error) {
	claims, ok := GetUserClaims(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("user not authenticated"))
	}
	return claims, nil
}

// RequireUserAccess verifies the authenticated user matches the requested
// owner id. An empty id means the caller's own data.
func RequireUserAccess(ctx context.Context, requestedUserID string) (*UserClaims, error) {
	claims, err := RequireAuth(ctx)
	if err != nil {
		return nil, err
	}

	if requestedUserID != "" && requestedUserID != claims.UID {
		return nil, connect.NewError(connect.CodePermissionDenied,
			fmt.Errorf("cannot access another user's resources"))
	}

	return claims, nil
}
