// internal/handlers/routes.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/middleware"
	"github.com/vicr123/entertaining-server/internal/play"
)

// Routes mounts the play socket and the query endpoints.
func Routes(logger *logrus.Logger, gw *play.Gateway, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(middleware.LogMiddleware(logger))

	r.Get("/healthz", Healthz)
	r.Get("/play", PlayWSHandler(logger, gw))

	// a subrouter so preflight OPTIONS reaches the cors handler
	r.Route("/presence", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization"},
			MaxAge:         300,
		}))
		r.Get("/{userID}", PresenceHandler(gw))
	})
	return r
}
