// internal/workers/conversation/record-signals/config.go
package recordsignals

type Config struct {
	MaxNotes int
}

func LoadConfig() *Config {
	return &Config{MaxNotes: 50}
}
