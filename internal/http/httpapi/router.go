// Package httpapi wires the handler container into the chi router with the
// service middleware stack.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"autostory/internal/http/handlers"
	"autostory/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
	)

	r.Get("/", app.Health)
	r.Post("/story", app.CreateStory)
	r.Post("/save_edit", app.SaveEdit)
	r.Get("/story/{id}/versions", app.ListVersions)
	r.Post("/story/export", app.Export)

	return r
}
