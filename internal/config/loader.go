package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"servicectl/internal/logger"
)

// rawConfig is used for JSON unmarshaling with duration strings.
type rawConfig struct {
	ServiceName               string             `json:"ServiceName"`
	IgnoreUnsupportedPlatform bool               `json:"IgnoreUnsupportedPlatform"`
	HeartbeatInterval         string             `json:"HeartbeatInterval"`
	StopGracePeriod           string             `json:"StopGracePeriod"`
	StateWaitTimeout          string             `json:"StateWaitTimeout"`
	Heartbeat                 rawHeartbeatConfig `json:"Heartbeat"`
}

type rawHeartbeatConfig struct {
	Redis      rawRedisConfig `json:"Redis"`
	SOCKSProxy SOCKSConfig    `json:"SocksProxy"`
}

type rawRedisConfig struct {
	Address   string `json:"Address"`
	Password  string `json:"Password"`
	DB        int    `json:"DB"`
	KeyPrefix string `json:"KeyPrefix"`
	TTL       string `json:"TTL"`
}

type rawLoggingConfig struct {
	Level      string `json:"Level"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays"`
	Compress   bool   `json:"Compress"`
	Console    bool   `json:"Console"`
	Fixed      bool   `json:"Fixed"`
}

// Load reads configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from JSON bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg := DefaultConfig()
	parsed, err := convertRawConfig(&raw)
	if err != nil {
		return nil, err
	}

	cfg.Merge(parsed)
	return cfg, nil
}

func convertRawConfig(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		ServiceName:               raw.ServiceName,
		IgnoreUnsupportedPlatform: raw.IgnoreUnsupportedPlatform,
		Heartbeat: HeartbeatConfig{
			Redis: RedisConfig{
				Address:   raw.Heartbeat.Redis.Address,
				Password:  raw.Heartbeat.Redis.Password,
				DB:        raw.Heartbeat.Redis.DB,
				KeyPrefix: raw.Heartbeat.Redis.KeyPrefix,
			},
			SOCKSProxy: raw.Heartbeat.SOCKSProxy,
		},
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"HeartbeatInterval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
		{"StopGracePeriod", raw.StopGracePeriod, &cfg.StopGracePeriod},
		{"StateWaitTimeout", raw.StateWaitTimeout, &cfg.StateWaitTimeout},
		{"Heartbeat.Redis.TTL", raw.Heartbeat.Redis.TTL, &cfg.Heartbeat.Redis.TTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s duration: %w", d.name, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s duration: must not be negative", d.name)
		}
		*d.dst = v
	}

	return cfg, nil
}

func convertRawLogging(raw *rawLoggingConfig) logger.Config {
	return logger.Config{
		Level:      raw.Level,
		FilePath:   raw.FilePath,
		MaxSizeMB:  raw.MaxSizeMB,
		MaxBackups: raw.MaxBackups,
		MaxAgeDays: raw.MaxAgeDays,
		Compress:   raw.Compress,
		Console:    raw.Console,
		Fixed:      raw.Fixed,
	}
}

// LoadLogging reads logging configuration from the specified file path.
func LoadLogging(path string) (*logger.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logging config file: %w", err)
	}
	return ParseLogging(data)
}

// ParseLogging parses logging configuration from JSON bytes.
func ParseLogging(data []byte) (*logger.Config, error) {
	var raw rawLoggingConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse logging config JSON: %w", err)
	}

	def := logger.DefaultConfig()
	parsed := convertRawLogging(&raw)

	// Merge: apply non-zero parsed values over defaults
	if parsed.Level != "" {
		def.Level = parsed.Level
	}
	if parsed.FilePath != "" {
		def.FilePath = parsed.FilePath
	}
	if parsed.MaxSizeMB != 0 {
		def.MaxSizeMB = parsed.MaxSizeMB
	}
	if parsed.MaxBackups != 0 {
		def.MaxBackups = parsed.MaxBackups
	}
	if parsed.MaxAgeDays != 0 {
		def.MaxAgeDays = parsed.MaxAgeDays
	}
	def.Compress = parsed.Compress
	def.Console = parsed.Console
	def.Fixed = parsed.Fixed

	return &def, nil
}

// LoadSplit loads configuration from ServiceCtl.json and Logging.json.
// A missing ServiceCtl.json falls back to defaults; management commands
// work without one.
func LoadSplit(configPath, loggingPath string) (*Config, *logger.Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		loaded, err := Load(configPath)
		switch {
		case err == nil:
			cfg = loaded
		case !errors.Is(err, fs.ErrNotExist):
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	lc := logger.DefaultConfig()
	if loggingPath != "" {
		loaded, err := LoadLogging(loggingPath)
		switch {
		case err == nil:
			lc = *loaded
		case !errors.Is(err, fs.ErrNotExist):
			return nil, nil, fmt.Errorf("failed to load logging config: %w", err)
		}
	}

	return cfg, &lc, nil
}
