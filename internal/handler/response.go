// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var (
		validation *appErrors.ValidationError
		transition *appErrors.InvalidTransitionError
		inactive   *appErrors.TemplateInactiveError
		empty      *appErrors.EmptyAudienceError
		duplicate  *appErrors.DuplicateDeliveryError
		noFailures *appErrors.NoFailuresError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition),
		errors.As(err, &inactive),
		errors.As(err, &empty),
		errors.As(err, &duplicate),
		errors.As(err, &noFailures):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes {"error": "..."} with the mapped status. Internal errors
// are logged and hidden from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error()}

	var validation *appErrors.ValidationError
	if errors.As(err, &validation) {
		body.Fields = validation.Fields
	}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal server error"
	}
	WriteJSON(w, status, body)
}

// BadRequest reports malformed input that never reached a service.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
