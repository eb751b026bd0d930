// internal/workers/conversation/transition-state/config.go
package transitionstate

type Config struct {
	DefaultReason string
}

func LoadConfig() *Config {
	return &Config{DefaultReason: "dialogue"}
}
