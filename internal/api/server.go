// Package api is the HTTP front door. It maps the three boundary operations
// onto routes and translates pipeline outcomes into stable JSON envelopes;
// no business logic lives here.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/monitoring"
	"github.com/sells-group/claimcheck/internal/pipeline"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	pipeline  *pipeline.Pipeline
	collector *monitoring.Collector
}

// NewServer creates a Server.
func NewServer(p *pipeline.Pipeline, collector *monitoring.Collector) *Server {
	return &Server{pipeline: p, collector: collector}
}

// Router builds the chi router for the claim API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/v1/claims", func(r chi.Router) {
		r.Post("/validate", s.handleValidate)
		r.Get("/{claimID}", s.handleGet)
		r.Put("/{claimID}/override", s.handleOverride)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), 10000)
	if err != nil {
		zap.L().Error("api: metrics collection failed", zap.Error(err))
		writeError(w, claimerr.Wrap(claimerr.CodeInternal, err, "metrics unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// errorEnvelope is the stable error shape for all failure responses.
type errorEnvelope struct {
	Error     errorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

type errorBody struct {
	Code     claimerr.Code  `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Feedback string         `json:"feedback,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError maps an error chain to its external code and envelope. Internal
// detail never leaks: unexpected faults surface with a generic message.
func writeError(w http.ResponseWriter, err error) {
	code := claimerr.CodeOf(err)

	body := errorBody{Code: code}
	if ce, ok := claimerr.AsError(err); ok && claimerr.Expected(code) {
		body.Message = ce.Message
		body.Details = ce.Details
		body.Feedback = ce.Feedback
	} else {
		body.Message = genericMessage(code)
		zap.L().Error("api: request failed", zap.String("code", string(code)), zap.Error(err))
	}

	writeJSON(w, claimerr.HTTPStatus(code), errorEnvelope{
		Error:     body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func genericMessage(code claimerr.Code) string {
	switch code {
	case claimerr.CodeInference:
		return "Model processing failed"
	case claimerr.CodeStorage:
		return "Storage operation failed"
	default:
		return "An unexpected error occurred"
	}
}
