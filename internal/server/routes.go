package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	r.Post("/chat", s.chat)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)

		r.Route("/{key}", func(r chi.Router) {
			r.Post("/compact", s.compactSession)
			r.Get("/history", s.getHistory)
			r.Delete("/history", s.clearHistory)
		})
	})

	r.Route("/attachment", func(r chi.Router) {
		r.Get("/", s.getAttachment)
		r.Post("/", s.setAttachment)
		r.Delete("/", s.clearAttachment)
	})

	r.Get("/models", s.listModels)
	r.Get("/tools", s.listTools)
	r.Get("/mcp", s.mcpStatus)

	// Event streaming (SSE)
	r.Get("/event", s.events)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
}
