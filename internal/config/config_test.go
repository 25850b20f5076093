package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("AGRI_LLM_API_KEY", "")
}

func TestLoadDefaults(t *testing.T) {
	clearKeys(t)
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "final_merged_data.csv", cfg.Data.Merged)
	assert.Equal(t, "mean", cfg.Data.Dedup)
	assert.Equal(t, "token", cfg.Insight.MatchMode)
	assert.Equal(t, 10, cfg.Insight.Window)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.Database.Enabled)

	assert.Error(t, cfg.ValidateForServer(), "server needs an API key")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearKeys(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "agri.yaml")
	content := "server:\n  port: 9000\ndata:\n  dir: /srv/data\n  dedup: first\nllm:\n  timeout: 5s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("AGRI_INSIGHT_MATCH_MODE", "substring")
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "first", cfg.Data.Dedup)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "substring", cfg.Insight.MatchMode)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, filepath.Join("/srv/data", "final_merged_data.csv"), cfg.Data.Path(cfg.Data.Merged))
	assert.NoError(t, cfg.ValidateForServer())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearKeys(t)
	chdir(t, t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "dedup", mutate: func(c *Config) { c.Data.Dedup = "max" }},
		{name: "match mode", mutate: func(c *Config) { c.Insight.MatchMode = "fuzzy" }},
		{name: "window", mutate: func(c *Config) { c.Insight.Window = 0 }},
		{name: "retries", mutate: func(c *Config) { c.LLM.MaxRetries = 0 }},
		{name: "database name", mutate: func(c *Config) { c.Database.Enabled = true; c.Database.Database = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDataPath(t *testing.T) {
	d := DataConfig{Dir: "data"}
	assert.Equal(t, filepath.Join("data", "x.csv"), d.Path("x.csv"))
	assert.Equal(t, "/abs/x.csv", d.Path("/abs/x.csv"))
	assert.Equal(t, "", d.Path(""))
}

// chdir changes the working directory for the duration of the test,
// restoring the previous one on cleanup (equivalent of Go 1.24's t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
