package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, "server:\n  api_key: secret\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "secret", cfg.Server.APIKey)
	require.Equal(t, "disk", cfg.Cache.Backend)
	require.Equal(t, "./cache/sam2-models", cfg.Cache.Disk.Dir)
	require.Equal(t, "gpu", cfg.Engine.PreferredProvider)
	require.Equal(t, "sam2.events", cfg.NATS.EventSubject)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.EqualValues(t, 42*1024*1024, cfg.Models.ExpectedEncoderSize)
	require.Equal(t, 4, cfg.Engine.NumCandidates)
}

func TestLoadPreservesExplicitValuesOverDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\ncache:\n  backend: minio\nengine:\n  preferred_provider: cpu\n  num_candidates: 3\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "minio", cfg.Cache.Backend)
	require.Equal(t, "cpu", cfg.Engine.PreferredProvider)
	require.Equal(t, 3, cfg.Engine.NumCandidates)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestEnvOverrideWinsOverFileValue(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv("SAM2_SERVER_PORT", "7070")
	t.Setenv("SAM2_PREFERRED_PROVIDER", "cpu")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "cpu", cfg.Engine.PreferredProvider)
}

func TestDatabaseDSNFormatsConnectionString(t *testing.T) {
	db := config.DatabaseConfig{Host: "db", Port: 5432, Name: "sam2", User: "u", Password: "p"}
	require.Equal(t, "postgres://u:p@db:5432/sam2?sslmode=disable", db.DSN())
}
