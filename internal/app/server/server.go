package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mmark-score/internal/api"
	"mmark-score/internal/config"
	"mmark-score/internal/geo"
	"mmark-score/internal/leaderboard"
	"mmark-score/internal/listener"
	"mmark-score/internal/scores"
	"mmark-score/internal/storage"

	"github.com/rs/zerolog/log"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	if cfg.Postgres.Migrate {
		if err := store.Migrate(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	// GeoIP
	locator, closeGeo := newLocator(cfg)
	defer closeGeo()

	// Scores
	boards := leaderboard.NewCache(cfg.CacheTTL())
	svc := scores.New(store, locator, boards, cfg.Server.GraphWidth)

	// HTTP
	h := api.NewScoreHandler(svc)
	r := api.Router(h, credentials(cfg))
	srv := newHTTPServer(cfg, r)

	// Listener (LISTEN/NOTIFY)
	go listener.ListenAndInvalidate(rootCtx, store.PgxPool(), svc, cfg.Listener.Channel, cfg.Backoff())

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func newHTTPServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// newLocator opens the configured GeoIP database. Without one, or when it
// cannot be opened, submissions are stored without a location.
func newLocator(cfg config.Config) (geo.Locator, func()) {
	if cfg.GeoIP.Database == "" {
		log.Info().Msg("geoip disabled")
		return geo.Nop{}, func() {}
	}
	rd, err := geo.Open(cfg.GeoIP.Database)
	if err != nil {
		log.Error().Err(err).Msg("geoip unavailable; continuing without it")
		return geo.Nop{}, func() {}
	}
	return rd, func() { _ = rd.Close() }
}

func credentials(cfg config.Config) api.Credentials {
	if cfg.API.Username == "" || cfg.API.JSONSalt == "" {
		log.Warn().Msg("upload credentials or signature salt not configured")
	}
	return api.Credentials{
		Username: cfg.API.Username,
		Password: cfg.API.Password,
		Realm:    cfg.API.Realm,
		JSONSalt: cfg.API.JSONSalt,
	}
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
