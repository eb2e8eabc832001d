// Package contextkeys defines every request-scoped context key used by the
// tracker, together with typed setters and getters for the string-valued
// ones.
//
// Keys live here rather than next to their owners so that packages which
// must not import each other (auth and rbac, observability and service)
// can still share request state:
//
//	ctx = contextkeys.WithUserID(ctx, caller.String())
//	user := contextkeys.GetUserID(ctx) // "" when unauthenticated
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, ticket events, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the acting user's id as a string
	// Set by: middleware.AuthMiddleware, service calls acting for a caller
	// Used by: Logger, rate limiter key selection, row-level security session
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// ResolverCacheKey contains the request-scoped accessible-project memo
	// Set by: rbac.RequestScope (pkg/rbac/middleware.go)
	// Used by: rbac.SQLResolver
	// Type: *rbac.requestCache
	ResolverCacheKey Key = "resolver_cache"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
