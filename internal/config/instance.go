package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var defaultManager = &InstanceManager{}

// InstanceManager holds the loaded configuration. Readers get clones.
type InstanceManager struct {
	path   string
	cfg    *Config
	hash   string
	loaded bool

	mu sync.RWMutex
}

func (ins *InstanceManager) Get() (*Config, error) {
	ins.mu.RLock()
	defer ins.mu.RUnlock()

	if !ins.loaded || ins.cfg == nil {
		return nil, fmt.Errorf("config is not loaded")
	}
	return ins.cfg.Clone()
}

func (ins *InstanceManager) Load(path string) (*Config, error) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	ins.path = path
	ins.cfg = cfg
	ins.hash = cfg.Hash()
	ins.loaded = true
	return cfg.Clone()
}

func (ins *InstanceManager) Hash() (string, error) {
	ins.mu.RLock()
	defer ins.mu.RUnlock()

	if !ins.loaded {
		return "", fmt.Errorf("config is not loaded")
	}
	return ins.hash, nil
}

// Apply validates and swaps in one changed section.
func (ins *InstanceManager) Apply(name string, value any) error {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	if !ins.loaded || ins.cfg == nil {
		return fmt.Errorf("config is not loaded")
	}
	draft, err := ins.cfg.Clone()
	if err != nil {
		return err
	}
	if err := draft.UpdateByName(name, value); err != nil {
		return err
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	ins.cfg = draft
	ins.hash = draft.Hash()
	return nil
}

func loadConfigFile(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// WriteFile writes cfg as YAML through a temp file and rename. An existing
// file is kept as path.bak.
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	raw, err := marshalConfigYAML(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", prev, 0o600); err != nil {
			return fmt.Errorf("write config backup: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read previous config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	// channel configs carry tokens
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

func marshalConfigYAML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		_ = encoder.Close()
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(buf.String(), "\n") + "\n"), nil
}

// Sample is the configuration written by "bridgekit init".
func Sample() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Cache:   CacheConfig{TTLMs: 60_000, PurgeSchedule: defaultPurgeSchedule},
		Metrics: MetricsConfig{Bind: defaultMetricsBind, Path: defaultMetricsPath},
		Channels: map[string]ChannelConfig{
			"telegram": {
				Type:   "telegram",
				Config: map[string]interface{}{"token": "<bot token>"},
			},
			"vk": {
				Type:   "vk",
				Config: map[string]interface{}{"token": "<community token>", "group_id": 0},
			},
		},
	}
}

func Load(path string) (*Config, error) {
	return defaultManager.Load(path)
}

func Get() (*Config, error) {
	return defaultManager.Get()
}

func Apply(name string, value any) error {
	return defaultManager.Apply(name, value)
}

func Hash() (string, error) {
	return defaultManager.Hash()
}
