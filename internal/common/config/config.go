package config

import (
	"fmt"
	"time"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Database   DatabaseConfig   `mapstructure:"database"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Session    SessionConfig    `mapstructure:"session"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	ToolCatalog string `mapstructure:"tool_catalog"` // optional override of the built-in catalog
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds

	// per-client request budget, requests per second
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ResilienceConfig drives the per-session circuit breakers and the retry
// policy wrapped around every collaborator call.
type ResilienceConfig struct {
	FailureThreshold int   `mapstructure:"failure_threshold"`
	RecoveryTimeout  int   `mapstructure:"recovery_timeout"` // milliseconds
	MaxRetries       *int  `mapstructure:"max_retries"` // nil means the default; 0 disables retries
	BaseDelay        int   `mapstructure:"base_delay"` // milliseconds
	MaxDelay         int   `mapstructure:"max_delay"`  // milliseconds
	DisableJitter    bool  `mapstructure:"disable_jitter"`
	PhraseSeed       int64 `mapstructure:"phrase_seed"`

	// per-service overrides, keyed by breaker name
	Services map[string]ServiceBreakerConfig `mapstructure:"services"`
}

type ServiceBreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	RecoveryTimeout  int `mapstructure:"recovery_timeout"` // milliseconds
}

type KnowledgeConfig struct {
	Backend     string  `mapstructure:"backend"` // http | elasticsearch
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	AppID       string  `mapstructure:"app_id"`
	AssistantID string  `mapstructure:"assistant_id"`
	Index       string  `mapstructure:"index"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	RateLimit   float64 `mapstructure:"rate_limit"`
	RateBurst   int     `mapstructure:"rate_burst"`
}

type CalendarConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Token           string `mapstructure:"token"`
	CalendarID      string `mapstructure:"calendar_id"`
	Timezone        string `mapstructure:"timezone"`
	DurationMinutes int    `mapstructure:"duration_minutes"`
	Timeout         int    `mapstructure:"timeout"` // milliseconds
}

type SchedulingConfig struct {
	DefaultHour   int    `mapstructure:"default_hour"`
	DefaultMinute int    `mapstructure:"default_minute"`
	SalesEmail    string `mapstructure:"sales_email"`
	FollowUp      bool   `mapstructure:"follow_up"`
}

type AnalyticsConfig struct {
	Sinks         []string `mapstructure:"sinks"` // log, sns, kafka, postgres
	UseQueue      bool     `mapstructure:"use_queue"`
	Queue         string   `mapstructure:"queue"`
	TopicARN      string   `mapstructure:"topic_arn"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
	Timeout       int      `mapstructure:"timeout"` // milliseconds
	HotLeadTeam   int      `mapstructure:"hot_lead_team_size"`
	HotLeadVolume int      `mapstructure:"hot_lead_volume"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
	SES    struct {
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
}

type SessionConfig struct {
	CheckpointTTL int `mapstructure:"checkpoint_ttl"` // milliseconds
}

// GetDuration converts a millisecond setting into a time.Duration.
func GetDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DefaultMaxRetries applies when max_retries is not set.
const DefaultMaxRetries = 3

// Retries is the configured retry count, or DefaultMaxRetries when unset.
func (r ResilienceConfig) Retries() int {
	if r.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *r.MaxRetries
}

func (r ResilienceConfig) BreakerFor(service string) (threshold int, recovery time.Duration) {
	threshold, recovery = r.FailureThreshold, GetDuration(r.RecoveryTimeout)
	if svc, ok := r.Services[service]; ok {
		if svc.FailureThreshold > 0 {
			threshold = svc.FailureThreshold
		}
		if svc.RecoveryTimeout > 0 {
			recovery = GetDuration(svc.RecoveryTimeout)
		}
	}
	return threshold, recovery
}
