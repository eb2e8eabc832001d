package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

// Scope represents API token scopes
type Scope string

const (
	ScopeRead  Scope = "read"  // GET endpoints
	ScopeWrite Scope = "write" // Mutating endpoints
	ScopeAll   Scope = "*"     // Everything
)

// ParseScopes parses a comma-separated scope list, ignoring blanks
func ParseScopes(s string) []Scope {
	var scopes []Scope
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			scopes = append(scopes, Scope(part))
		}
	}
	return scopes
}

// JoinScopes renders scopes in the stored comma-separated form
func JoinScopes(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// APIToken represents an API token
type APIToken struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	Scopes      []Scope    `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IsUsable reports whether the token is neither revoked nor expired at now
func (t *APIToken) IsUsable(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return false
	}
	return true
}

// AuthContext holds authenticated user information
type AuthContext struct {
	User   *tracker.User
	Token  *APIToken
	Scopes []Scope
}

// UserID returns the authenticated user's id, or uuid.Nil
func (ac *AuthContext) UserID() uuid.UUID {
	if ac == nil || ac.User == nil {
		return uuid.Nil
	}
	return ac.User.ID
}

// HasScope checks if the context has a specific scope
func (ac *AuthContext) HasScope(scope Scope) bool {
	for _, s := range ac.Scopes {
		if s == ScopeAll || s == scope {
			return true
		}
	}
	return false
}
