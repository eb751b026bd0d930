package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// environment overlay is optional
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return build(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

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
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
			v.Set(key, expanded)
		}
	}
}

// overrideEmptyConfig fills secrets from their conventional env names when the
// yaml left them blank.
func overrideEmptyConfig(cfg *Config) {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&cfg.Knowledge.APIKey, "UNLEASH_API_KEY")
	fill(&cfg.Knowledge.BaseURL, "UNLEASH_BASE_URL")
	fill(&cfg.Knowledge.AssistantID, "UNLEASH_ASSISTANT_ID")
	fill(&cfg.Knowledge.AppID, "UNLEASH_INTERCOM_APP_ID")
	fill(&cfg.Calendar.Token, "GOOGLE_CALENDAR_TOKEN")
	fill(&cfg.Calendar.CalendarID, "GOOGLE_CALENDAR_ID")
	fill(&cfg.Calendar.Timezone, "GOOGLE_CALENDAR_TIMEZONE")
	fill(&cfg.Database.Postgres.User, "DB_USER")
	fill(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	fill(&cfg.AWS.Region, "AWS_REGION")
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "trialist-agent"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 20
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 40
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Resilience.FailureThreshold == 0 {
		cfg.Resilience.FailureThreshold = 3
	}
	if cfg.Resilience.RecoveryTimeout == 0 {
		cfg.Resilience.RecoveryTimeout = 30000
	}
	if cfg.Resilience.MaxRetries == nil {
		retries := DefaultMaxRetries
		cfg.Resilience.MaxRetries = &retries
	}
	if cfg.Resilience.BaseDelay == 0 {
		cfg.Resilience.BaseDelay = 1000
	}
	if cfg.Resilience.MaxDelay == 0 {
		cfg.Resilience.MaxDelay = 10000
	}

	if cfg.Knowledge.Backend == "" {
		cfg.Knowledge.Backend = "http"
	}
	if cfg.Knowledge.BaseURL == "" {
		cfg.Knowledge.BaseURL = "https://e-api.unleash.so"
	}
	if cfg.Knowledge.AppID == "" {
		cfg.Knowledge.AppID = "intercom"
	}
	if cfg.Knowledge.Index == "" {
		cfg.Knowledge.Index = "help-articles"
	}
	if cfg.Knowledge.Timeout == 0 {
		cfg.Knowledge.Timeout = 10000
	}
	if cfg.Knowledge.RateLimit == 0 {
		cfg.Knowledge.RateLimit = 5
	}
	if cfg.Knowledge.RateBurst == 0 {
		cfg.Knowledge.RateBurst = 5
	}

	if cfg.Calendar.BaseURL == "" {
		cfg.Calendar.BaseURL = "https://www.googleapis.com/calendar/v3"
	}
	if cfg.Calendar.Timezone == "" {
		cfg.Calendar.Timezone = "America/Toronto"
	}
	if cfg.Calendar.DurationMinutes == 0 {
		cfg.Calendar.DurationMinutes = 30
	}
	if cfg.Calendar.Timeout == 0 {
		cfg.Calendar.Timeout = 10000
	}

	if cfg.Scheduling.DefaultHour == 0 {
		cfg.Scheduling.DefaultHour = 10
	}

	if len(cfg.Analytics.Sinks) == 0 {
		cfg.Analytics.Sinks = []string{"log"}
	}
	if cfg.Analytics.Queue == "" {
		cfg.Analytics.Queue = "analytics"
	}
	if cfg.Analytics.KafkaTopic == "" {
		cfg.Analytics.KafkaTopic = "trialist.sessions"
	}
	if cfg.Analytics.Timeout == 0 {
		cfg.Analytics.Timeout = 10000
	}
	if cfg.Analytics.HotLeadTeam == 0 {
		cfg.Analytics.HotLeadTeam = 5
	}
	if cfg.Analytics.HotLeadVolume == 0 {
		cfg.Analytics.HotLeadVolume = 100
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Session.CheckpointTTL == 0 {
		cfg.Session.CheckpointTTL = 2 * 60 * 60 * 1000
	}
}

var knownSinks = map[string]bool{"log": true, "sns": true, "kafka": true, "postgres": true}

func validateConfig(cfg *Config) error {
	switch cfg.Knowledge.Backend {
	case "http", "elasticsearch":
	default:
		return fmt.Errorf("knowledge.backend must be http or elasticsearch, got %q", cfg.Knowledge.Backend)
	}
	if cfg.Knowledge.Backend == "elasticsearch" && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required for the elasticsearch knowledge backend")
	}
	if cfg.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("resilience.failure_threshold must be positive")
	}
	if cfg.Resilience.Retries() < 0 {
		return fmt.Errorf("resilience.max_retries must not be negative")
	}
	if cfg.Resilience.MaxDelay < cfg.Resilience.BaseDelay {
		return fmt.Errorf("resilience.max_delay must be >= base_delay")
	}
	if cfg.Scheduling.DefaultHour < 0 || cfg.Scheduling.DefaultHour > 23 {
		return fmt.Errorf("scheduling.default_hour must be between 0 and 23")
	}

	for _, sink := range cfg.Analytics.Sinks {
		if !knownSinks[sink] {
			return fmt.Errorf("unknown analytics sink %q", sink)
		}
		switch {
		case sink == "sns" && cfg.Analytics.TopicARN == "":
			return fmt.Errorf("analytics.topic_arn is required for the sns sink")
		case sink == "kafka" && len(cfg.Analytics.KafkaBrokers) == 0:
			return fmt.Errorf("analytics.kafka_brokers is required for the kafka sink")
		case sink == "postgres" && !cfg.Database.Postgres.Enabled():
			return fmt.Errorf("database.postgres.host is required for the postgres sink")
		}
	}
	if cfg.Analytics.UseQueue && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when analytics.use_queue is set")
	}
	return nil
}
