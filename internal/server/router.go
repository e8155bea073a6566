package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vantagesec/socqa/internal/api"
	"github.com/vantagesec/socqa/internal/api/handlers"
	"github.com/vantagesec/socqa/internal/api/middleware"
)

type RouterConfig struct {
	StatusHandler *handlers.StatusHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", cfg.StatusHandler.Get)

	return r
}
