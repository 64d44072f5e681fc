package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagine/internal/http/handlers"
	"imagine/internal/middleware"
)

// DefaultSession is shared by callers that do not send X-Session-ID.
const DefaultSession = "default"

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(app.Config.CORSAllowedOrigin),
		middleware.Identify(DefaultSession),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/aspect-ratios", app.AspectRatios)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).Post("/", app.StartGeneration)
		r.Get("/", app.ListGenerations)

		r.Route("/active", func(r chi.Router) {
			r.Get("/", app.ActiveGeneration)
			r.Post("/cancel", app.CancelGeneration)
			r.Post("/reset", app.ResetGeneration)
		})

		r.Get("/{id}", app.GetGeneration)
		r.Delete("/{id}", app.DeleteGeneration)
	})

	return r
}
