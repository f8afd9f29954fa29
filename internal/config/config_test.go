package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"backend": "filesystem",
		"data_dir": "/var/lib/curation",
		"executor_url": "http://runner:9000",
		"lease_ttl_seconds": 600
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendFilesystem, cfg.Backend)
	assert.Equal(t, 600*time.Second, cfg.LeaseTTL())
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Config{Backend: "etcd"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_PostgresRequiresDatabaseURL(t *testing.T) {
	cfg := Config{Backend: BackendPostgres}
	assert.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/curation"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_FilesystemRequiresDataDir(t *testing.T) {
	cfg := Config{Backend: BackendFilesystem}
	assert.Error(t, cfg.Validate())

	cfg.DataDir = t.TempDir()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_NegativeLeaseTTL(t *testing.T) {
	cfg := Config{LeaseTTLSeconds: -1}
	assert.Error(t, cfg.Validate())
}

func TestValidate_MissingRuleCatalogFile(t *testing.T) {
	cfg := Config{RuleCatalog: filepath.Join(t.TempDir(), "absent.json")}
	assert.Error(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{Port: 9090}
	merged := cfg.MergeWithDefaults(Config{
		Port:            8080,
		Backend:         BackendFilesystem,
		DataDir:         "/data",
		LeaseTTLSeconds: 600,
	})

	assert.Equal(t, 9090, merged.Port)
	assert.Equal(t, BackendFilesystem, merged.Backend)
	assert.Equal(t, "/data", merged.DataDir)
	assert.Equal(t, 600, merged.LeaseTTLSeconds)
}
