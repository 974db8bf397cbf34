// Package config provides configuration management for servicectl.
package config

import "time"

// Config is the root configuration structure (ServiceCtl.json).
type Config struct {
	// ServiceName is the service the run command registers as.
	ServiceName string `json:"ServiceName"`
	// IgnoreUnsupportedPlatform turns registration into a no-op where no
	// service control manager is available.
	IgnoreUnsupportedPlatform bool            `json:"IgnoreUnsupportedPlatform"`
	HeartbeatInterval         time.Duration   `json:"HeartbeatInterval"`
	StopGracePeriod           time.Duration   `json:"StopGracePeriod"`
	StateWaitTimeout          time.Duration   `json:"StateWaitTimeout"`
	Heartbeat                 HeartbeatConfig `json:"Heartbeat"`
}

// HeartbeatConfig contains settings for publishing liveness beats.
type HeartbeatConfig struct {
	Redis      RedisConfig `json:"Redis"`
	SOCKSProxy SOCKSConfig `json:"SocksProxy"`
}

// RedisConfig contains Redis connection settings for the heartbeat key.
type RedisConfig struct {
	Address   string        `json:"Address"`
	Password  string        `json:"Password"`
	DB        int           `json:"DB"`
	KeyPrefix string        `json:"KeyPrefix"`
	TTL       time.Duration `json:"TTL"`
}

// Enabled reports whether heartbeats should be published to Redis.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// SOCKSConfig contains SOCKS5 proxy settings.
type SOCKSConfig struct {
	Host string `json:"Host"`
	Port int    `json:"Port"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: 30 * time.Second,
		StopGracePeriod:   10 * time.Second,
		StateWaitTimeout:  60 * time.Second,
		Heartbeat: HeartbeatConfig{
			Redis: RedisConfig{
				KeyPrefix: "servicectl:heartbeat:",
				TTL:       90 * time.Second,
			},
		},
	}
}

// Merge applies non-zero values from other to this config.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.ServiceName != "" {
		c.ServiceName = other.ServiceName
	}
	c.IgnoreUnsupportedPlatform = other.IgnoreUnsupportedPlatform
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.StopGracePeriod != 0 {
		c.StopGracePeriod = other.StopGracePeriod
	}
	if other.StateWaitTimeout != 0 {
		c.StateWaitTimeout = other.StateWaitTimeout
	}

	// Merge Redis config
	r := other.Heartbeat.Redis
	if r.Address != "" {
		c.Heartbeat.Redis.Address = r.Address
	}
	if r.Password != "" {
		c.Heartbeat.Redis.Password = r.Password
	}
	if r.DB != 0 {
		c.Heartbeat.Redis.DB = r.DB
	}
	if r.KeyPrefix != "" {
		c.Heartbeat.Redis.KeyPrefix = r.KeyPrefix
	}
	if r.TTL != 0 {
		c.Heartbeat.Redis.TTL = r.TTL
	}

	// Merge SOCKS proxy config
	if other.Heartbeat.SOCKSProxy.Host != "" {
		c.Heartbeat.SOCKSProxy.Host = other.Heartbeat.SOCKSProxy.Host
	}
	if other.Heartbeat.SOCKSProxy.Port != 0 {
		c.Heartbeat.SOCKSProxy.Port = other.Heartbeat.SOCKSProxy.Port
	}
}
