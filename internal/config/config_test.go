package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "quarters", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2000, cfg.Import.MaxRows)
	assert.Equal(t, 300, cfg.Import.TimeoutSec)
	assert.Equal(t, 10, cfg.Letters.TimeoutSec)
	assert.Empty(t, cfg.Letters.WebhookURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_NAME", "quarters_test")
	t.Setenv("IMPORT_MAX_ROWS", "500")
	t.Setenv("LETTER_WEBHOOK_URL", "https://letters.example.com")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "quarters_test", cfg.Database.Database)
	assert.Equal(t, 500, cfg.Import.MaxRows)
	assert.Equal(t, "https://letters.example.com", cfg.Letters.WebhookURL)
}

func TestLoad_FileOverlayWinsOverEnv(t *testing.T) {
	t.Setenv("DB_HOST", "env-host")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: file-host
  port: 5433
import:
  max_rows: 100
`), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg := Load()
	assert.Equal(t, "file-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 100, cfg.Import.MaxRows)
	// Untouched keys keep their env/default values.
	assert.Equal(t, "postgres", cfg.Database.User)
}

func TestLoad_BadOverlayFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestGetDSN(t *testing.T) {
	c := &DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		Database: "quarters", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=quarters sslmode=disable", c.GetDSN())
}
