// Package auth is the identity adapter: it turns a bearer token into the
// authenticated user every tracker operation is performed as.
//
// # API Tokens
//
// Tokens have the form trk_<base64url(32 random bytes)>. Only the SHA256
// hash is stored; the plaintext is shown once at creation.
//
//	apiToken, plaintext, err := manager.CreateToken(ctx, userID, "ci", []auth.Scope{auth.ScopeRead}, nil)
//
// # Scopes
//
//	ScopeRead  - GET endpoints
//	ScopeWrite - mutating endpoints
//	ScopeAll   - everything
//
// Scopes only narrow what a token may attempt. Whether the user may read or
// change a given project, ticket or comment is decided by pkg/rbac.
//
// # Caching
//
// TokenManager caches successful validations in an expirable LRU keyed by
// token hash. Revocation evicts the local entry immediately.
package auth
