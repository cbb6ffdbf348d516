package state

import (
	"context"
)

const (
	CurrentUserId = "CurrentUserId"
	CurrentUserIP = "CurrentIP"
)

// CurrentUser returns the tenant id set by the auth middleware.
func CurrentUser(ctx context.Context) string {
	value := ctx.Value(CurrentUserId)
	if value == nil {
		return ""
	}

	userID, ok := value.(string)
	if !ok {
		return ""
	}

	return userID
}

func SetCurrentUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CurrentUserId, userID)
}
