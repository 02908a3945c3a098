// internal/workers/clinical-review/review-treatment-plan/config.go
package reviewtreatmentplan

import (
	"time"

	"treatment-review/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// OutputDir, when set, receives <runId>.json for jobs without an outputPath.
	OutputDir string
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Config{Timeout: timeout}
}
