// Package httpapi assembles the chi router: middleware stack, API routes,
// and the optional static frontend.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cardforge/internal/http/handlers"
	"cardforge/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.CORS(app.Config.CORSAllowedOrigins),
		middleware.I18N(),
		middleware.Logger(app.Logger),
		chimw.Recoverer,
	)

	r.Get("/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).
			Post("/generate", app.Submit)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Get("/{id}", app.JobDetail)
			r.Get("/{id}/stream", app.Stream)
			r.Get("/{id}/result", app.ResultFile)
			r.Get("/{id}/card", app.CardFile)
			r.Get("/{id}/bundle", app.Bundle)
		})

		r.Post("/cards/extract", app.ExtractCard)
	})

	if app.Config.FrontendDir != "" {
		r.NotFound(handlers.Frontend(app.Config.FrontendDir).ServeHTTP)
	} else {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
		})
	}

	return r
}
