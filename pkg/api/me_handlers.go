package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tracker/pkg/auth"
	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

// MeHandlers serves the caller's own identity and API tokens
type MeHandlers struct {
	tokens *auth.TokenManager
}

// NewMeHandlers creates handlers for /me routes
func NewMeHandlers(tokens *auth.TokenManager) *MeHandlers {
	return &MeHandlers{tokens: tokens}
}

// RegisterRoutes registers /me routes
func (h *MeHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
	router.HandleFunc("/me/tokens", h.ListTokens).Methods(http.MethodGet)
	router.HandleFunc("/me/tokens", h.CreateToken).Methods(http.MethodPost)
	router.HandleFunc("/me/tokens/{id}", h.RevokeToken).Methods(http.MethodDelete)
}

type meResponse struct {
	User   *tracker.User `json:"user"`
	Scopes []auth.Scope  `json:"scopes"`
}

// GetMe returns the authenticated user
func (h *MeHandlers) GetMe(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	authCtx := middleware.GetAuthContext(r)
	httputil.WriteSuccess(w, meResponse{User: authCtx.User, Scopes: authCtx.Scopes})
}

// ListTokens lists the caller's API tokens
func (h *MeHandlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	tokens, err := h.tokens.ListUserTokens(r.Context(), user)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []*auth.APIToken{}
	}
	httputil.WriteSuccess(w, tokens)
}

type createTokenRequest struct {
	Name      string       `json:"name"`
	Scopes    []auth.Scope `json:"scopes,omitempty"`
	ExpiresIn string       `json:"expires_in,omitempty"`
}

type createTokenResponse struct {
	*auth.APIToken
	Token string `json:"token"`
}

// CreateToken issues a new API token. The plaintext is only returned here.
func (h *MeHandlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, r, req.Name, "name") {
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			httputil.WriteServiceError(w, r, tracker.NewValidationError("expires_in", "invalid duration %q", req.ExpiresIn))
			return
		}
		t := time.Now().UTC().Add(d)
		expiresAt = &t
	}

	// A token can never carry more than the token that created it
	authCtx := middleware.GetAuthContext(r)
	for _, s := range req.Scopes {
		if !authCtx.HasScope(s) {
			httputil.WriteForbidden(w, "cannot grant scope "+string(s))
			return
		}
	}
	if len(req.Scopes) == 0 {
		req.Scopes = authCtx.Scopes
	}

	apiToken, plaintext, err := h.tokens.CreateToken(r.Context(), user, req.Name, req.Scopes, expiresAt)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, createTokenResponse{APIToken: apiToken, Token: plaintext})
}

// RevokeToken revokes one of the caller's tokens
func (h *MeHandlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	if err := h.tokens.RevokeToken(r.Context(), id, user); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
