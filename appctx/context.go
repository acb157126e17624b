// Package appctx holds request-scoped context keys shared by config and utils,
// which cannot import each other.
package appctx

import "context"

type ContextKey string

func (c ContextKey) String() string { return string(c) }

const (
	Token         ContextKey = "Token"
	Username      ContextKey = "Username"
	UserId        ContextKey = "UserId"
	UserRole      ContextKey = "UserRole"
	CorrelationId ContextKey = "CorrelationId"
)

// Value returns the typed value stored under key.
func Value[T any](ctx context.Context, key ContextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

func With(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
