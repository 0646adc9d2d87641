package api

import (
	"mmark-score/internal/observability"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *ScoreHandler, creds Credentials) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.With(BasicAuth(creds), VerifySignature(creds.JSONSalt)).Post("/upload", h.Upload)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/scores", h.Scoreboard)
		r.Get("/scores/{uuid}", h.ScoreDetail)
		r.Post("/scores/{uuid}/name", h.ClaimScore)
		r.Get("/countries/{code}/scores", h.CountryBoard)
		r.Get("/news", h.News)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
