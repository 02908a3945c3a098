package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treatment-review/internal/common/config"
	"treatment-review/internal/common/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Completion.APIKey = "test-key"
	cfg.Pipeline.LibraryPath = "../../configs/questions_library.json"
	return cfg
}

func TestBuild(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name          string
		mutate        func(cfg *config.Config)
		expectedError bool
		validate      func(t *testing.T, a *App, res *Resources)
	}{
		{
			name: "defaults",
			validate: func(t *testing.T, a *App, res *Resources) {
				assert.Empty(t, a.sinks)
				assert.Nil(t, res.Redis)
				assert.Equal(t, "gpt-3.5-turbo-1106", a.model)
			},
		},
		{
			name: "cache and tracing",
			mutate: func(cfg *config.Config) {
				cfg.Cache.Enabled = true
				cfg.Database.Redis.Address = mr.Addr()
				cfg.Tracing.Enabled = true
				cfg.Tracing.ServiceName = "treatment-review-test"
				cfg.Tracing.SampleRatio = 1
			},
			validate: func(t *testing.T, a *App, res *Resources) {
				assert.NotNil(t, res.Redis)
				assert.NotNil(t, res.Observability)
			},
		},
		{
			name:          "missing library",
			mutate:        func(cfg *config.Config) { cfg.Pipeline.LibraryPath = "does-not-exist.json" },
			expectedError: true,
		},
		{
			name:          "unknown backfill policy",
			mutate:        func(cfg *config.Config) { cfg.Pipeline.BackfillPolicy = "sometimes" },
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			a, res, err := Build(context.Background(), cfg, logger.NewTestLogger(t))
			if tt.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer res.Close()
			require.NotNil(t, a)
			if tt.validate != nil {
				tt.validate(t, a, res)
			}
		})
	}
}
