package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

func TestAuthContext_HasScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []Scope
		check  Scope
		want   bool
	}{
		{"exact match", []Scope{ScopeRead}, ScopeRead, true},
		{"missing", []Scope{ScopeRead}, ScopeWrite, false},
		{"wildcard", []Scope{ScopeAll}, ScopeWrite, true},
		{"none", nil, ScopeRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := &AuthContext{Scopes: tt.scopes}
			assert.Equal(t, tt.want, ac.HasScope(tt.check))
		})
	}
}

func TestAuthContext_UserID(t *testing.T) {
	var nilCtx *AuthContext
	assert.Equal(t, uuid.Nil, nilCtx.UserID())
	assert.Equal(t, uuid.Nil, (&AuthContext{}).UserID())

	id := uuid.New()
	assert.Equal(t, id, (&AuthContext{User: &tracker.User{ID: id}}).UserID())
}

func TestScopesRoundTrip(t *testing.T) {
	assert.Equal(t, []Scope{ScopeRead, ScopeWrite}, ParseScopes(" read, ,write "))
	assert.Equal(t, "read,*", JoinScopes([]Scope{ScopeRead, ScopeAll}))
	assert.Nil(t, ParseScopes(""))
}

func TestAPIToken_IsUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&APIToken{}).IsUsable(now))
	assert.True(t, (&APIToken{ExpiresAt: &future}).IsUsable(now))
	assert.False(t, (&APIToken{ExpiresAt: &past}).IsUsable(now))
	assert.False(t, (&APIToken{RevokedAt: &past}).IsUsable(now))
}
