package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "trialist-agent", cfg.App.Name)
	assert.Equal(t, 3, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 30000, cfg.Resilience.RecoveryTimeout)
	assert.Equal(t, 3, cfg.Resilience.Retries())
	assert.False(t, cfg.Resilience.DisableJitter)
	assert.Equal(t, "America/Toronto", cfg.Calendar.Timezone)
	assert.Equal(t, 30, cfg.Calendar.DurationMinutes)
	assert.Equal(t, 10, cfg.Scheduling.DefaultHour)
	assert.Equal(t, []string{"log"}, cfg.Analytics.Sinks)
	assert.Equal(t, "intercom", cfg.Knowledge.AppID)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_UNLEASH_KEY", "secret-key")
	path := writeConfig(t, `
knowledge:
  api_key: ${TEST_UNLEASH_KEY}
resilience:
  services:
    calendar:
      recovery_timeout: 60000
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Knowledge.APIKey)

	threshold, recovery := cfg.Resilience.BreakerFor("calendar")
	assert.Equal(t, 3, threshold)
	assert.Equal(t, 60*time.Second, recovery)

	_, recovery = cfg.Resilience.BreakerFor("knowledge")
	assert.Equal(t, 30*time.Second, recovery)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "knowledge:\n  backend: solr\n"},
		{"elasticsearch without addresses", "knowledge:\n  backend: elasticsearch\n"},
		{"unknown sink", "analytics:\n  sinks: [s3]\n"},
		{"sns without topic", "analytics:\n  sinks: [sns]\n"},
		{"kafka without brokers", "analytics:\n  sinks: [kafka]\n"},
		{"postgres without host", "analytics:\n  sinks: [postgres]\n"},
		{"queue without redis", "analytics:\n  use_queue: true\n"},
		{"delays inverted", "resilience:\n  base_delay: 5000\n  max_delay: 100\n"},
		{"negative retries", "resilience:\n  max_retries: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_ZeroRetriesIsKept(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, "resilience:\n  max_retries: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Resilience.MaxRetries)
	assert.Equal(t, 0, cfg.Resilience.Retries())

	assert.Equal(t, DefaultMaxRetries, ResilienceConfig{}.Retries())
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
