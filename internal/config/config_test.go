package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("TABLE_PREFIX", "")

	cfg := Load()
	assert.Equal(t, "test_", cfg.TablePrefix)
	assert.Equal(t, IndexPostgres, cfg.IndexBackend)
	assert.Equal(t, DefaultQuotaBytes, cfg.DefaultQuotaBytes)
	assert.Equal(t, DefaultTxRetryAttempts, cfg.TxRetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.ContentTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("INDEX_BACKEND", IndexBadger)
	t.Setenv("CONTENT_BACKEND", ContentMemory)
	t.Setenv("CONTENT_TIMEOUT", "2s")
	t.Setenv("DEFAULT_QUOTA_BYTES", "1024")
	t.Setenv("TX_RETRY_ATTEMPTS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "prod_", cfg.TablePrefix)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 2*time.Second, cfg.ContentTimeout)
	assert.Equal(t, int64(1024), cfg.DefaultQuotaBytes)
	assert.Equal(t, DefaultTxRetryAttempts, cfg.TxRetryAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"badger memory ok", func(c *Config) {}, false},
		{"postgres without url", func(c *Config) { c.IndexBackend = IndexPostgres }, true},
		{"unknown index", func(c *Config) { c.IndexBackend = "sqlite" }, true},
		{"unknown content", func(c *Config) { c.ContentBackend = "ftp" }, true},
		{"zero retries", func(c *Config) { c.TxRetryAttempts = 0 }, true},
		{"negative quota", func(c *Config) { c.DefaultQuotaBytes = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				IndexBackend:    IndexBadger,
				ContentBackend:  ContentMemory,
				TxRetryAttempts: 3,
				MaxTreeDepth:    8,
				ContentTimeout:  time.Second,
			}
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadQuotaPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  pro: 1000
  unlimited: 0
owners:
  alice: pro
  root: unlimited
`), 0o644))

	plans, err := LoadQuotaPlans(path, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), plans.LimitFor("alice"))
	assert.Equal(t, int64(0), plans.LimitFor("root"))
	assert.Equal(t, int64(100), plans.LimitFor("bob"))
}

func TestLoadQuotaPlans_UnknownPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owners:\n  alice: gold\n"), 0o644))

	_, err := LoadQuotaPlans(path, 100)
	assert.Error(t, err)
}

func TestLoadQuotaPlans_NoFile(t *testing.T) {
	plans, err := LoadQuotaPlans("", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), plans.LimitFor("anyone"))
}

func TestSetupLogFile_Rotation(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"server-2024-01-01T00-00-00.log", "server-2024-01-02T00-00-00.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	f, err := SetupLogFile(dir, "server", 2)
	require.NoError(t, err)
	defer f.Close()

	files, err := filepath.Glob(filepath.Join(dir, "server-*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.NotContains(t, files, filepath.Join(dir, "server-2024-01-01T00-00-00.log"))
}
