package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

// ErrBodyTooLarge is returned by ParseJSON when the body exceeds the limit
// set by MaxBytesMiddleware.
var ErrBodyTooLarge = errors.New("request body too large")

// ParseJSON decodes a single JSON object from the request body into dest.
// Unknown fields are rejected so that clients cannot smuggle server-owned
// attributes such as owner_id or reporter_id.
func ParseJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return tracker.NewValidationError("body", "request body is empty")
		default:
			return tracker.NewValidationError("body", "invalid JSON: %v", err)
		}
	}
	if decoder.More() {
		return tracker.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes the error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBodyTooLarge):
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		WriteServiceError(w, r, err)
	}
	return false
}

// ParsePathUUID extracts and parses a UUID path parameter
func ParsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return uuid.Nil, tracker.NewValidationError(key, "missing path parameter")
	}
	val, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, tracker.NewValidationError(key, "invalid id %q", str)
	}
	return val, nil
}

// ParsePathUUIDOrError extracts a UUID path parameter and writes error on failure
func ParsePathUUIDOrError(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	val, err := ParsePathUUID(r, key)
	if err != nil {
		WriteServiceError(w, r, err)
		return uuid.Nil, false
	}
	return val, true
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", tracker.NewValidationError(key, "missing path parameter")
	}
	return str, nil
}

// ParsePathStringOrError extracts a string path parameter and writes error on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteServiceError(w, r, err)
		return "", false
	}
	return val, true
}

// ParseQueryString extracts a trimmed query parameter, or defaultVal when
// it is absent or blank.
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// RequireNonEmpty writes a validation error for a blank field
func RequireNonEmpty(w http.ResponseWriter, r *http.Request, value, field string) bool {
	if strings.TrimSpace(value) == "" {
		WriteServiceError(w, r, tracker.NewValidationError(field, "%s is required", field))
		return false
	}
	return true
}
