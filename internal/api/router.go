package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the HTTP route tree.
//
// Public routes: health check and login. Everything else requires a
// bearer token, including the WebSocket ticket endpoint (the WebSocket
// upgrade itself authenticates via single-use ticket because browsers
// cannot set Authorization headers on WebSocket connections).
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/api/auth/ws-ticket", s.handleWSTicket)

		r.Get("/api/sequences", s.handleListSequences)

		r.Route("/api/runs", func(r chi.Router) {
			r.Post("/", s.handleStartRun)
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Post("/{id}/interrupt", s.handleInterruptRun)
			r.Post("/{id}/cancel", s.handleCancelRun)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports service liveness. It is unauthenticated so
// load balancers and monitoring probes can reach it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
