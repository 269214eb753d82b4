package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api/mailer", func(r chi.Router) {
		r.Post("/send", h.SendEmail)
		r.Post("/campaigns/{campaignID}/send", h.SendCampaign)

		r.Get("/connection/test", h.TestConnection)
		r.Post("/provider/switch", h.SwitchProvider)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/status", h.QueueStatus)
			r.Post("/pause", h.QueuePause)
			r.Post("/resume", h.QueueResume)
			r.Post("/clear", h.QueueClear)
			r.Post("/retry-failed", h.QueueRetryFailed)
		})
	})

	return r
}
