package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes data with 200 OK
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes data with 201 Created
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes an empty 204 reply
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes {"error": message} with status
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteUnauthorized writes a 401
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteServiceError maps a tracker error to its HTTP status.
//
// Not found is always reported with the same fixed body, so a hidden
// entity and a missing one are indistinguishable. Anything that is not one
// of the tracker error kinds is logged and reported as a 500 without its
// message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *tracker.ValidationError
	switch {
	case errors.As(err, &validationErr):
		resp := ErrorResponse{Error: validationErr.Error()}
		if validationErr.Field != "" {
			resp.Details = map[string]string{"field": validationErr.Field}
		}
		WriteJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, tracker.ErrValidation):
		WriteErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrNotFound):
		WriteErrorMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, tracker.ErrAccessDenied):
		WriteErrorMessage(w, http.StatusForbidden, "access denied")
	case errors.Is(err, tracker.ErrConflict):
		WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
		WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
