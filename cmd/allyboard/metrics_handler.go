package main

import (
	"encoding/json"
	"net/http"

	"allyboard/internal/metrics"
	"allyboard/internal/service"
	"allyboard/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics returns current application metrics plus the gateway breaker state
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestInfo := tracing.GetRequestInfo(r.Context())

		body := map[string]interface{}{
			"metrics": metrics.GetAllMetrics(),
		}
		if s.services != nil && s.services.Breaker != nil {
			stats := s.services.Breaker.GetStats()
			body["gateway_breaker"] = map[string]interface{}{
				"state":    s.services.Breaker.GetState().String(),
				"failures": stats.Failures,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(body); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestInfo.RequestID,
				service.LogFieldTraceID:   requestInfo.TraceID,
			}).WithError(err).Error("Failed to encode metrics response")

			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
