package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid JSON", `{"title": "Card declined"}`, ""},
		{"invalid JSON", `{invalid}`, "body: invalid JSON"},
		{"server-owned field", `{"title": "x", "reporter_id": "x"}`, "unknown field"},
		{"empty body", ``, "body: request body is empty"},
		{"trailing object", `{"title": "a"}{"title": "b"}`, "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Title string `json:"title"`
			}

			err := ParseJSON(req, &dest)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Card declined", dest.Title)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tracker.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{bad`))
	w := httptest.NewRecorder()
	var dest map[string]string

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
	assert.Contains(t, w.Body.String(), `"field":"body"`)
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestParsePathUUID(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		vars    map[string]string
		want    uuid.UUID
		wantErr string
	}{
		{"valid", map[string]string{"id": id.String()}, id, ""},
		{"missing", map[string]string{}, uuid.Nil, "id: missing path parameter"},
		{"malformed", map[string]string{"id": "42"}, uuid.Nil, `id: invalid id "42"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)
			got, err := ParsePathUUID(req, "id")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathUUIDOrError(t *testing.T) {
	req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "nope"})
	w := httptest.NewRecorder()

	_, ok := ParsePathUUIDOrError(w, req, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"id: invalid id \"nope\"","details":{"field":"id"}}`, w.Body.String())
}

func TestParsePathString(t *testing.T) {
	req := withVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"token": "abc"})

	val, err := ParsePathString(req, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", val)

	_, err = ParsePathString(req, "missing")
	assert.ErrorIs(t, err, tracker.ErrValidation)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, req, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=done&blank=%20", nil)
	assert.Equal(t, "done", ParseQueryString(req, "status", ""))
	assert.Equal(t, "all", ParseQueryString(req, "blank", "all"))
	assert.Equal(t, "all", ParseQueryString(req, "missing", "all"))
}

func TestRequireNonEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/me/tokens", nil)

	w := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(w, r, "laptop", "name"))

	w = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(w, r, "   ", "name"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"name: name is required","details":{"field":"name"}}`, w.Body.String())
}
