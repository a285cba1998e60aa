package config

import "time"

// Presence definition presence_service YAML structure
type Presence struct {
	Port string `mapstructure:"port"`

	// IdleTimeout client inactivity before status flips to away
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// LivenessTimeout server prunes a connection with no inbound traffic for this long
	LivenessTimeout time.Duration `mapstructure:"liveness_timeout"`
	// AuthGrace time a connection may stay unauthenticated before it is dropped
	AuthGrace time.Duration `mapstructure:"auth_grace"`
	// NotifyQueueCap bounded offline notification queue per user, oldest dropped beyond cap
	NotifyQueueCap int `mapstructure:"notify_queue_cap"`
	// HistoryPageSize messages returned per channel:history page
	HistoryPageSize int64 `mapstructure:"history_page_size"`
	// PresenceTTL lifetime of the redis presence mirror entries
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`

	Mongo DatabaseConfig `mapstructure:"mongo"`
	Redis RedisConfig    `mapstructure:"redis"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// ApplyDefaults fill zero-valued tunables with the documented defaults
func (p *Presence) ApplyDefaults() {
	if p.IdleTimeout == 0 {
		p.IdleTimeout = 5 * time.Minute
	}
	if p.LivenessTimeout == 0 {
		p.LivenessTimeout = 90 * time.Second
	}
	if p.AuthGrace == 0 {
		p.AuthGrace = 10 * time.Second
	}
	if p.NotifyQueueCap == 0 {
		p.NotifyQueueCap = 100
	}
	if p.HistoryPageSize == 0 {
		p.HistoryPageSize = 50
	}
	if p.PresenceTTL == 0 {
		p.PresenceTTL = 2 * time.Minute
	}
}
