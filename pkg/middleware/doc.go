// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: Bearer token authentication
//
//	router.Use(middleware.NewAuthMiddleware(tokenManager, false).Handler)
//	// Validates the token and stores *auth.AuthContext and the user id in the request context
//
// RequireMethodScope: read scope for GET/HEAD, write scope for everything else
//
//	router.Use(middleware.RequireMethodScope)
//
// RateLimitMiddleware: In-memory token buckets, one instance
//
//	router.Use(middleware.NewRateLimitMiddleware(metrics).Handler)
//
// DistributedRateLimitMiddleware: Redis-backed counters shared across instances
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient, metrics).Handler)
//
// # Rate Limiting
//
// Anonymous (by client IP): 100 req/min, 10 burst
// Authenticated (by user id): 1000 req/min, 50 burst
//
// Authentication only establishes who the caller is. Whether the caller may
// see or change a project, ticket or comment is decided by pkg/rbac.
package middleware
