// internal/workers/qualification/check-qualification/config.go
package checkqualification

type Config struct {
	HotLeadTeam   int
	HotLeadVolume int
}

func LoadConfig() *Config {
	return &Config{HotLeadTeam: 5, HotLeadVolume: 100}
}
