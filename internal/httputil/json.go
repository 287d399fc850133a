package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "allyboard/internal/errors"
	"allyboard/internal/tracing"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as the standard error body with a status derived
// from its error code.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteJSON(w, apperrors.HTTPStatusCode(err), apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}

// DecodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return apperrors.NewValidationError("content_type", ct, "content type must be application/json")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return apperrors.NewValidationError("body", "", "request body is empty")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, fmt.Sprintf("invalid JSON body: %v", err)).
			WithUserMessage("Request body is not valid JSON")
	}
	if dec.More() {
		return apperrors.NewValidationError("body", "", "request body must contain a single JSON object")
	}
	return nil
}
