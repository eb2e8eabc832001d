package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/auth"
	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

type fakeValidator struct {
	tokens map[string]*auth.AuthContext
	err    error
}

func (f *fakeValidator) ValidateToken(_ context.Context, token string) (*auth.AuthContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ac, ok := f.tokens[token]; ok {
		return ac, nil
	}
	return nil, auth.ErrInvalidToken
}

func newAuthContext(scopes ...auth.Scope) *auth.AuthContext {
	return &auth.AuthContext{
		User:   &tracker.User{ID: uuid.New(), Handle: "alice"},
		Scopes: scopes,
	}
}

func setAuthContextForTest(r *http.Request, authCtx *auth.AuthContext) *http.Request {
	return r.WithContext(contextkeys.WithAuth(r.Context(), authCtx))
}

func TestAuthMiddleware_Handler(t *testing.T) {
	alice := newAuthContext(auth.ScopeAll)
	validator := &fakeValidator{tokens: map[string]*auth.AuthContext{"trk_good": alice}}

	tests := []struct {
		name       string
		optional   bool
		header     string
		wantStatus int
		wantBody   string
		wantCalled bool
	}{
		{"missing header required", false, "", http.StatusUnauthorized, `{"error":"missing authorization header"}`, false},
		{"missing header optional", true, "", http.StatusOK, "", true},
		{"wrong scheme", false, "Basic abc", http.StatusUnauthorized, `{"error":"invalid authorization header format"}`, false},
		{"no token", false, "Bearer", http.StatusUnauthorized, `{"error":"invalid authorization header format"}`, false},
		{"unknown token", false, "Bearer trk_bad", http.StatusUnauthorized, `{"error":"invalid or expired token"}`, false},
		{"valid token", false, "Bearer trk_good", http.StatusOK, "", true},
		{"lowercase scheme", false, "bearer trk_good", http.StatusOK, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewAuthMiddleware(validator, tt.optional).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if tt.header != "" {
					assert.Same(t, alice, GetAuthContext(r))
					assert.Equal(t, alice.UserID().String(), contextkeys.GetUserID(r.Context()))
				} else {
					assert.Nil(t, GetAuthContext(r))
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_ValidatorFailure(t *testing.T) {
	validator := &fakeValidator{err: errors.New("connection refused")}
	handler := NewAuthMiddleware(validator, false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer trk_good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireScope(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireScope(auth.ScopeWrite)(ok)

	req := httptest.NewRequest(http.MethodPost, "/projects", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, setAuthContextForTest(req, newAuthContext(auth.ScopeRead)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, setAuthContextForTest(req, newAuthContext(auth.ScopeWrite)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireMethodScope(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireMethodScope(ok)
	readOnly := newAuthContext(auth.ScopeRead)

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
		{http.MethodPost, http.StatusForbidden},
		{http.MethodPatch, http.StatusForbidden},
		{http.MethodDelete, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := setAuthContextForTest(httptest.NewRequest(tt.method, "/tickets/x", nil), readOnly)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthFromContext(t *testing.T) {
	assert.Nil(t, AuthFromContext(context.Background()))
	assert.Nil(t, AuthFromContext(contextkeys.WithAuth(context.Background(), "not an auth context")))

	ac := newAuthContext(auth.ScopeRead)
	got := AuthFromContext(contextkeys.WithAuth(context.Background(), ac))
	require.NotNil(t, got)
	assert.Equal(t, ac.UserID(), got.UserID())
}
