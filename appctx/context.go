package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyToken         = ContextKey("Token")
	ContextKeyUserId        = ContextKey("UserId")
	ContextKeyUserName      = ContextKey("UserName")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeyAccessScope holds the request's access scope, computed once by the auth middleware.
	ContextKeyAccessScope = ContextKey("AccessScope")

	// ContextKeySkipLocationScope disables scope filtering for the request.
	// Internal workers only.
	ContextKeySkipLocationScope = ContextKey("SkipLocationScope")
)

// Scope is the query filter view of an access scope.
// Zero means "no restriction" for either filter; a negative value matches nothing.
type Scope interface {
	ScopeLocationId() int
	ScopeCustomerUserId() int
}

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func GetInt(ctx context.Context, key ContextKey) (int, bool) {
	v, ok := ctx.Value(key).(int)
	return v, ok
}

func GetScope(ctx context.Context) (Scope, bool) {
	v, ok := ctx.Value(ContextKeyAccessScope).(Scope)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
