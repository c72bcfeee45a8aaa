package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledger/internal/config"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LEDGER_LOG_LEVEL", "")
	t.Setenv("LEDGER_METRICS_ADDR", "")
	t.Setenv("LEDGER_STORE", "")
	t.Setenv("LEDGER_SQLITE_DSN", "")
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `
log_level: debug
metrics_addr: ":9100"
`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "$", cfg.Currency, "unset fields keep defaults")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `{{{invalid yaml`)

	_, err := config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing .ledger.yaml")
}

func TestLoad_UnknownLogLevel(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `log_level: chatty`)

	_, err := config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid .ledger.yaml")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `
log_level: debug
currency: "€"
`)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LEDGER_METRICS_ADDR", "127.0.0.1:9200")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9200", cfg.MetricsAddr)
	assert.Equal(t, "€", cfg.Currency)

	t.Setenv("LEDGER_LOG_LEVEL", "error")
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel, "LEDGER_LOG_LEVEL wins over LOG_LEVEL")
}

func TestLoad_InvalidEnvLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "loud")

	_, err := config.Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_Store(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `
store: sqlite
sqlite_dsn: ledger.db
`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, "ledger.db", cfg.SQLiteDSN)

	t.Setenv("LEDGER_STORE", "memory")
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, cfg.Store)
}

func TestLoad_UnknownStore(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `store: postgres`)

	_, err := config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store "postgres"`)
}
