package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jpark8215/internal-chatbot/internal/api"
	"github.com/jpark8215/internal-chatbot/internal/api/handlers"
	"github.com/jpark8215/internal-chatbot/internal/api/middleware"
)

type RouterConfig struct {
	Ops     *handlers.OpsHandler
	Metrics http.Handler
	Debug   bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 64 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Debug))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	if cfg.Ops == nil {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	} else {
		r.Get("/health", cfg.Ops.Health)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/cache", cfg.Ops.CacheStats)
			r.Get("/sources", cfg.Ops.SourceStats)
			r.Get("/sync", cfg.Ops.SyncStatus)
		})

		r.Post("/feedback", cfg.Ops.RecordFeedback)
	}

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	return r
}
