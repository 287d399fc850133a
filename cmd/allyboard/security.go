package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "allyboard/internal/errors"
	"allyboard/internal/httputil"
	"allyboard/internal/service"

	"github.com/sirupsen/logrus"
)

// APIKeyHeader carries the shared API key. A bearer token is accepted too.
const APIKeyHeader = "X-API-Key"

// requireAPIKey rejects requests without the configured key. An empty key
// disables the check.
func requireAPIKey(apiKey string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					provided = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.WithFields(logrus.Fields{
					service.LogFieldRemoteIP: httputil.GetClientIP(r),
					service.LogFieldURL:      r.URL.Path,
				}).Warn("Rejected request with missing or invalid API key")
				httputil.WriteError(w, r, apperrors.NewAuthError("missing or invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
