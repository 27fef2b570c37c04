package handlers

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	watchhttp "github.com/example/movieon/services/watch/internal/http"
	"github.com/example/movieon/services/watch/internal/session"
	"github.com/example/movieon/services/watch/internal/worker"
)

// Deps are the collaborators of the watch routes.
type Deps struct {
	Sessions  *session.Manager
	Publisher *worker.EventPublisher
	Limiter   *watchhttp.RateLimiter
	Logger    *zap.Logger
}

// Mount registers the /v1 routes. The caller installs profile.Middleware.
func Mount(r chi.Router, d Deps) {
	m := d.Sessions

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", OpenSession(m, d.Logger))
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", GetSession(m))
			r.Delete("/", CloseSession(m, d.Logger))
			r.Group(func(r chi.Router) {
				if d.Limiter != nil {
					r.Use(d.Limiter.Middleware)
				}
				r.Post("/events", SessionEvents(m))
				r.Get("/commands", SessionCommands(m))
			})
			r.Post("/decision", SessionDecision(m))
			r.Post("/unload", SessionUnload(m))
			r.Post("/reload", SessionReload(m))
		})
	})

	r.Get("/v1/progress", ListProgress(m))
	r.Get("/v1/progress/{movie_id}", GetProgress(m))
	r.Put("/v1/progress/{movie_id}", SaveProgress(m, d.Publisher))
	r.Delete("/v1/progress/{movie_id}", ClearProgress(m))

	r.Get("/v1/history", ListHistory(m))
	r.Post("/v1/history", AddHistory(m))
	r.Delete("/v1/history", ClearHistory(m))
	r.Delete("/v1/history/{movie_id}", RemoveHistory(m))

	r.Get("/v1/watch-later", ListWatchLater(m))
	r.Post("/v1/watch-later", AddWatchLater(m))
	r.Delete("/v1/watch-later", ClearWatchLater(m))
	r.Get("/v1/watch-later/{movie_id}", InWatchLater(m))
	r.Delete("/v1/watch-later/{movie_id}", RemoveWatchLater(m))
}
