package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	defaultPurgeSchedule = "@every 5m"
	defaultMetricsBind   = "127.0.0.1:9464"
	defaultMetricsPath   = "/metrics"
)

// scheduleParser accepts standard 5-field specs and descriptors like @every.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate fills defaults and normalizes channel ids.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if c.Cache.TTLMs < 0 {
		return errors.New("cache.ttl_ms cannot be negative")
	}
	c.Cache.PurgeSchedule = strings.TrimSpace(c.Cache.PurgeSchedule)
	if c.Cache.PurgeSchedule == "" {
		c.Cache.PurgeSchedule = defaultPurgeSchedule
	}
	if _, err := scheduleParser.Parse(c.Cache.PurgeSchedule); err != nil {
		return fmt.Errorf("invalid cache.purge_schedule %q: %w", c.Cache.PurgeSchedule, err)
	}

	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}

	normalized := make(map[string]ChannelConfig, len(c.Channels))
	for key, one := range c.Channels {
		id := strings.TrimSpace(key)
		if id == "" {
			return errors.New("channel id cannot be empty")
		}
		if _, dup := normalized[id]; dup {
			return fmt.Errorf("duplicate channel id %q", id)
		}
		one.ID = id
		if err := one.Validate(); err != nil {
			return fmt.Errorf("channels[%s] validation failed: %w", id, err)
		}
		normalized[id] = one
	}
	c.Channels = normalized
	return nil
}

func (c *ChannelConfig) Validate() error {
	if c == nil {
		return errors.New("channel config cannot be nil")
	}
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		return errors.New("type is required")
	}
	if c.Config == nil {
		c.Config = map[string]interface{}{}
	}
	return nil
}

// ParseSchedule parses a validated purge schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}
