package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genclient/internal/http/handlers"
	"genclient/internal/infra"
	"genclient/internal/middleware"
)

type Options struct {
	Logger          infra.Logger
	Token           string
	RateLimitPerMin int
	CORSOrigins     []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	// Result and upload files are fetched by plain URL, like a CDN.
	r.Get("/files/results/{jobID}/{file}", app.ResultFile)
	r.Handle("/files/uploads/*", app.UploadedFiles())

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.BearerToken(opts.Token),
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
		)
		r.Post("/trpc/{procedure}", app.Procedure)
		r.Post("/api/upload", app.Upload)
	})

	return r
}
