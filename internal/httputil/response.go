// Package httputil holds the JSON response helpers shared by handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
)

// WriteJSONError writes {"error": msg} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes data with 200 OK.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// validationBody is the 400 payload for input errors.
type validationBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// WriteError maps an error from the service layer to a status code.
// Validation errors keep their message and field; storage failures are
// logged and reported generically.
func WriteError(w http.ResponseWriter, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteJSON(w, http.StatusBadRequest, validationBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, apperr.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		WriteJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrCatalogUnavailable):
		log.Printf("[http] catalog unavailable: %v", err)
		w.Header().Set("Retry-After", "5")
		WriteJSONError(w, http.StatusServiceUnavailable, "sector catalog unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		WriteJSONError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		// client went away; 499 is not standard, so log only
		log.Printf("[http] request canceled: %v", err)
		WriteJSONError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		log.Printf("[http] internal error: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
