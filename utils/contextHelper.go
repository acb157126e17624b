package utils

import (
	"context"

	"github.com/trend4media/billing_backend/appctx"
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.Value[string](ctx, appctx.Token)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.Value[string](ctx, appctx.Username)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.Value[int](ctx, appctx.UserId)
}

func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	return appctx.Value[string](ctx, appctx.UserRole)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.Value[string](ctx, appctx.CorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.With(ctx, appctx.Token, token)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.With(ctx, appctx.Username, username)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.With(ctx, appctx.UserId, userId)
}

func SetUserRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.With(ctx, appctx.UserRole, role)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.With(ctx, appctx.CorrelationId, correlationId)
}
