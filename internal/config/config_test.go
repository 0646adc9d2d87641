package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 400, cfg.Server.GraphWidth)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "score_change", cfg.Listener.Channel)
	assert.Equal(t, 5*time.Second, cfg.Backoff())
	assert.Equal(t, "MMark", cfg.API.Realm)
	assert.Empty(t, cfg.GeoIP.Database)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_SERVER_ADDR", ":9000")
	t.Setenv("APP_POSTGRES_HOST", "db")
	t.Setenv("APP_POSTGRES_DB_NAME", "mmark")
	t.Setenv("APP_POSTGRES_USER", "mmark")
	t.Setenv("APP_POSTGRES_PASSWORD", "secret")
	t.Setenv("APP_API_JSON_SALT", "pepper")
	t.Setenv("APP_LISTENER_RECONNECT_SECONDS", "2")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "pepper", cfg.API.JSONSalt)
	assert.Equal(t, 2*time.Second, cfg.Backoff())
	assert.Equal(t, "postgres://mmark:secret@db:5432/mmark?sslmode=disable", cfg.DSN())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
