package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 8088
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: smarts
  password: secret
  db_name: smartsexplore
redis:
  enabled: true
  addr: redis:6379
tools:
  smartscompare_path: /opt/smarts/SMARTScompare
  matchtool_path: /opt/smarts/SMARTSmatch
  timeout: 10m
  compare_workers: 4
upload:
  allowed_extensions: ["smi"]
  max_molecules: 100
log:
  level: debug
  format: console
`

func createTempConfigFile(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "/opt/smarts/SMARTScompare", cfg.Tools.SMARTSComparePath)
	assert.Equal(t, 10*time.Minute, cfg.Tools.Timeout)
	assert.Equal(t, 4, cfg.Tools.CompareWorkers)
	assert.Equal(t, []string{"smi"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, 100, cfg.Upload.MaxMolecules)
	assert.Equal(t, "console", cfg.Log.Format)
	// defaults still apply to untouched keys
	assert.Equal(t, DefaultMol2SVG, cfg.Tools.Mol2SVGPath)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "log:\n  level: trace\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SMARTSX_SERVER_PORT", "9999")
	t.Setenv("SMARTSX_TOOLS_MATCHTOOL_PATH", "/usr/local/bin/match")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/usr/local/bin/match", cfg.Tools.MatchToolPath)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("SMARTSX_DATABASE_SQLITE_PATH", "/data/smarts.db")
	t.Setenv("SMARTSX_TOOLS_STRICT", "true")
	t.Setenv("SMARTSX_UPLOAD_MAX_MOLECULES", "500")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/data/smarts.db", cfg.Database.SQLitePath)
	assert.True(t, cfg.Tools.Strict)
	assert.Equal(t, 500, cfg.Upload.MaxMolecules)
}

func TestLoadOrEnv(t *testing.T) {
	cfg, err := LoadOrEnv("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)

	cfg, err = LoadOrEnv(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}

func TestMustLoad_Success(t *testing.T) {
	assert.NotPanics(t, func() { MustLoad(createTempConfigFile(t, validConfigYAML)) })
}

func TestMustLoad_Panic(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/nonexistent/config.yaml") })
}
