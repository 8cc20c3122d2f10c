package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

type (
	Config struct {
		Logging  LoggingConfig            `yaml:"logging" json:"logging"`
		Cache    CacheConfig              `yaml:"cache" json:"cache"`
		Metrics  MetricsConfig            `yaml:"metrics" json:"metrics"`
		Channels map[string]ChannelConfig `yaml:"channels" json:"channels"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level" json:"level"`   // debug, info, warn, error
		Format     string `yaml:"format" json:"format"` // json, text
		Output     string `yaml:"output" json:"output"` // stdout, file, both
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"` // days
	}

	CacheConfig struct {
		// TTLMs is the default lifetime of info caches; channels may
		// override it with cache_expire_ms.
		TTLMs int `yaml:"ttl_ms" json:"ttl_ms"`
		// PurgeSchedule is a cron spec, e.g. "@every 5m".
		PurgeSchedule string `yaml:"purge_schedule" json:"purge_schedule"`
	}

	MetricsConfig struct {
		Enabled *bool  `yaml:"enabled" json:"enabled"`
		Bind    string `yaml:"bind" json:"bind"`
		Path    string `yaml:"path" json:"path"`
	}

	ChannelConfig struct {
		ID      string                 `yaml:"-" json:"-"`
		Type    string                 `yaml:"type" json:"type"` // telegram, vk
		Enabled bool                   `yaml:"enabled" json:"enabled"`
		Config  map[string]interface{} `yaml:"config" json:"config"`
	}
)

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// UpdateByName replaces one top-level section.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch normalized := strings.ToLower(strings.TrimSpace(name)); normalized {
	case "":
		return fmt.Errorf("name is required")
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "cache":
		typed, ok := value.(*CacheConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'cache' requires *CacheConfig")
		}
		c.Cache = *typed
	case "metrics":
		typed, ok := value.(*MetricsConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'metrics' requires *MetricsConfig")
		}
		c.Metrics = *typed
	case "channels":
		typed, ok := value.(*map[string]ChannelConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'channels' requires *map[string]ChannelConfig")
		}
		next := make(map[string]ChannelConfig, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Channels = next
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}
	return nil
}

// Clone deep-copies c through JSON. Channel config values come back as
// JSON types (float64 numbers), which gconv accepts.
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}
	for id, ch := range cloned.Channels {
		ch.ID = id
		cloned.Channels[id] = ch
	}
	return &cloned, nil
}

// Hash is stable across map ordering.
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
