// internal/workers/knowledge/search-knowledge/config.go
package searchknowledge

import "time"

type Config struct {
	Timeout  time.Duration
	Fallback string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:  15 * time.Second,
		Fallback: "I can still walk you through it from what I know.",
	}
}
