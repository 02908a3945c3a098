// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"treatment-review/internal/common/validation"
)

// Load reads configs/config.yaml (searching the usual locations) and the
// environment overlay config.<APP_ENVIRONMENT>.yaml.
func Load() (*Config, error) {
	return load("./configs", "../../configs", ".")
}

// LoadFromDir is Load restricted to a single config directory.
func LoadFromDir(dir string) (*Config, error) {
	return load(dir)
}

func load(paths ...string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// COMPLETION_API_KEY overrides completion.api_key and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	baseDir := "."
	if len(paths) > 0 {
		baseDir = paths[0]
	}
	if used := v.ConfigFileUsed(); used != "" {
		baseDir = filepath.Dir(used)
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return finish(v, baseDir)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v, filepath.Dir(path))
}

// finish resolves a relative pipeline.library_path against baseDir, the
// directory the configuration was loaded from.
func finish(v *viper.Viper, baseDir string) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	overrideFromEnv(&cfg)
	if !filepath.IsAbs(cfg.Pipeline.LibraryPath) {
		cfg.Pipeline.LibraryPath = filepath.Join(baseDir, cfg.Pipeline.LibraryPath)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up to the module root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideFromEnv applies the well-known variables that do not follow the
// section_key naming.
func overrideFromEnv(cfg *Config) {
	if val := os.Getenv("OPENAI_API_KEY"); val != "" && cfg.Completion.APIKey == "" {
		cfg.Completion.APIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.Completion.BaseURL = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		cfg.Completion.Model = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("ZEEBE_ADDRESS"); val != "" {
		cfg.Camunda.BrokerAddress = val
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// ApplyDefaults sets default values for optional configuration fields
func ApplyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "treatment-review"
	}

	// Completion defaults
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-3.5-turbo-1106"
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 60000
	}
	if cfg.Completion.MaxRetries == 0 {
		cfg.Completion.MaxRetries = 3
	}
	if cfg.Completion.RetryBaseDelay == 0 {
		cfg.Completion.RetryBaseDelay = 100
	}

	// Pipeline defaults
	if cfg.Pipeline.BackfillPolicy == "" {
		cfg.Pipeline.BackfillPolicy = BackfillKeep
	}
	if cfg.Pipeline.MatchPolicy == "" {
		cfg.Pipeline.MatchPolicy = MatchFirst
	}
	if cfg.Pipeline.LibraryPath == "" {
		cfg.Pipeline.LibraryPath = DefaultLibraryFile
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 86400
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "treatment-review:completion:"
	}

	if cfg.Archive.Index == "" {
		cfg.Archive.Index = "treatment-reviews"
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 300000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 8080
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 300000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// Validate checks the settings every entry point needs. Sinks are only
// checked when enabled.
func Validate(cfg *Config) error {
	if cfg.Completion.Model == "" {
		return fmt.Errorf("completion.model is required")
	}
	if cfg.Completion.Timeout < 0 || cfg.Completion.MaxRetries < 0 {
		return fmt.Errorf("completion.timeout and completion.max_retries must not be negative")
	}

	switch cfg.Pipeline.BackfillPolicy {
	case BackfillKeep, BackfillAbort:
	default:
		return fmt.Errorf("pipeline.backfill_policy must be %q or %q, got %q", BackfillKeep, BackfillAbort, cfg.Pipeline.BackfillPolicy)
	}
	switch cfg.Pipeline.MatchPolicy {
	case MatchFirst, MatchStrict:
	default:
		return fmt.Errorf("pipeline.match_policy must be %q or %q, got %q", MatchFirst, MatchStrict, cfg.Pipeline.MatchPolicy)
	}

	if cfg.Cache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when cache is enabled")
	}
	if cfg.Archive.Postgres {
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.host and database are required when archive.postgres is enabled")
		}
	}
	if cfg.Archive.Elasticsearch && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when archive.elasticsearch is enabled")
	}
	if cfg.Notifications.Enabled {
		if cfg.Notifications.Region == "" {
			return fmt.Errorf("notifications.region is required when notifications are enabled")
		}
		if cfg.Notifications.TopicARN == "" && (cfg.Notifications.FromEmail == "" || len(cfg.Notifications.Recipients) == 0) {
			return fmt.Errorf("notifications need topic_arn or from_email with recipients")
		}
		for _, r := range cfg.Notifications.Recipients {
			if !validation.ValidateEmail(r) {
				return fmt.Errorf("notifications.recipients: invalid email %q", r)
			}
		}
	}

	return nil
}

// ValidateWorker adds the checks only the Zeebe worker needs.
func ValidateWorker(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	return nil
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       300000,
		MaxRetries:    3,
	}
}
