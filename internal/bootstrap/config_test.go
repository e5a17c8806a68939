package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/config"
)

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, http,worker"}
	assert.Equal(t, []string{"http", "worker", "reaper"}, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "", IsDev: true}))
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http", EncryptionKey: "k"}))

	prod := &config.AppConfig{Services: "http", Auth: config.AuthConfig{Mode: config.AuthModeMock}}
	err := ValidateServiceConfig(prod)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_MODE=mock")
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")

	prod.IsDev = true
	require.NoError(t, ValidateServiceConfig(prod))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "").Debug("hidden")
	NewLogger(&buf, slog.LevelInfo, "json").Info("job submitted", "job_id", "j1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job submitted", line["msg"])
	assert.Equal(t, "mediajobs", line["app"])
	assert.Equal(t, "j1", line["job_id"])

	buf.Reset()
	NewLogger(&buf, slog.LevelDebug, " TEXT ").Debug("lease renewed")
	assert.Contains(t, buf.String(), "msg=\"lease renewed\"")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVICES=worker,reaper\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("SERVICES", "")
	require.NoError(t, os.Unsetenv("SERVICES"))
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"worker", "reaper"}, GetEnabledServices(&cfg))
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	_, err = LoadConfig()
	require.Error(t, err)
}
