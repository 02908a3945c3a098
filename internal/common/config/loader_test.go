package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadFromDir(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOG_LEVEL", "")

	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
completion:
  api_key: ${OPENAI_API_KEY}
  model: gpt-4o-mini
pipeline:
  backfill_policy: abort
logging:
  level: debug
`)
	writeConfig(t, dir, "config.test.yaml", `
pipeline:
  match_policy: strict
`)

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Completion.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, BackfillAbort, cfg.Pipeline.BackfillPolicy)
	assert.Equal(t, MatchStrict, cfg.Pipeline.MatchPolicy)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 60000, cfg.Completion.Timeout)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Completion.BaseURL)
}

func TestLoadFromDir_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "test")

	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "gpt-3.5-turbo-1106", cfg.Completion.Model)
	assert.Equal(t, BackfillKeep, cfg.Pipeline.BackfillPolicy)
	assert.Equal(t, MatchFirst, cfg.Pipeline.MatchPolicy)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_LibraryPathRelativeToConfig(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "test")
	t.Setenv("PIPELINE_LIBRARY_PATH", "")

	tests := []struct {
		name           string
		body           string
		validateOutput func(t *testing.T, dir string, cfg *Config)
	}{
		{
			name: "default library sits next to the config",
			body: "pipeline:\n  backfill_policy: keep\n",
			validateOutput: func(t *testing.T, dir string, cfg *Config) {
				assert.Equal(t, filepath.Join(dir, DefaultLibraryFile), cfg.Pipeline.LibraryPath)
			},
		},
		{
			name: "relative path is joined to the config directory",
			body: "pipeline:\n  library_path: libs/questions.json\n",
			validateOutput: func(t *testing.T, dir string, cfg *Config) {
				assert.Equal(t, filepath.Join(dir, "libs", "questions.json"), cfg.Pipeline.LibraryPath)
			},
		},
		{
			name: "absolute path is kept",
			body: "pipeline:\n  library_path: /srv/questions.json\n",
			validateOutput: func(t *testing.T, dir string, cfg *Config) {
				assert.Equal(t, "/srv/questions.json", cfg.Pipeline.LibraryPath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.yaml", tt.body)

			cfg, err := LoadFromDir(dir)
			require.NoError(t, err)
			tt.validateOutput(t, dir, cfg)

			fromFile, err := LoadFromFile(filepath.Join(dir, "config.yaml"))
			require.NoError(t, err)
			tt.validateOutput(t, dir, fromFile)
		})
	}
}

func TestLoadFromDir_MissingFileResolvesLibraryAgainstDir(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "test")
	t.Setenv("PIPELINE_LIBRARY_PATH", "")

	dir := t.TempDir()
	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultLibraryFile), cfg.Pipeline.LibraryPath)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown backfill policy",
			mutate:  func(c *Config) { c.Pipeline.BackfillPolicy = "retry" },
			wantErr: "pipeline.backfill_policy",
		},
		{
			name:    "unknown match policy",
			mutate:  func(c *Config) { c.Pipeline.MatchPolicy = "longest" },
			wantErr: "pipeline.match_policy",
		},
		{
			name:    "cache without redis",
			mutate:  func(c *Config) { c.Cache.Enabled = true },
			wantErr: "database.redis.address",
		},
		{
			name:    "postgres archive without host",
			mutate:  func(c *Config) { c.Archive.Postgres = true },
			wantErr: "database.postgres.host",
		},
		{
			name:    "elasticsearch archive without url",
			mutate:  func(c *Config) { c.Archive.Elasticsearch = true },
			wantErr: "database.elasticsearch",
		},
		{
			name: "notifications without target",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.Region = "us-east-1"
			},
			wantErr: "topic_arn",
		},
		{
			name: "notifications with topic",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.Region = "us-east-1"
				c.Notifications.TopicARN = "arn:aws:sns:us-east-1:123456789012:reviews"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateWorker(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, ValidateWorker(cfg))

	cfg.Camunda.BrokerAddress = "localhost:26500"
	assert.NoError(t, ValidateWorker(cfg))
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"review-treatment-plan": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.Equal(t, 2, GetWorkerConfig(cfg, "review-treatment-plan").MaxJobsActive)
	assert.False(t, GetWorkerConfig(cfg, "review-treatment-plan").Enabled)

	fallback := GetWorkerConfig(cfg, "unknown")
	assert.True(t, fallback.Enabled)
	assert.Equal(t, 3, fallback.MaxRetries)
}
