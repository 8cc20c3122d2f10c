package telegram

import (
	"errors"
	"time"

	"github.com/bytedance/gg/gconv"
)

const (
	defaultPollTimeout = 30 * time.Second
	defaultBatchWindow = 300 * time.Millisecond
	defaultBatchSize   = 100
)

type Config struct {
	Token string
	// ServerURL overrides the Bot API endpoint, e.g. a local bot API server.
	ServerURL   string
	PollTimeout time.Duration
	// BatchWindow is how long the batcher waits for more updates before
	// handing a batch over.
	BatchWindow  time.Duration
	MaxBatchSize int
	// MediaBatchSize caps one sendMediaGroup call.
	MediaBatchSize int
	CacheTTL       time.Duration
	Debug          bool
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("telegram bot token cannot be empty")
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = defaultBatchWindow
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultBatchSize
	}
	if c.MediaBatchSize <= 0 || c.MediaBatchSize > 10 {
		c.MediaBatchSize = 10
	}
	return nil
}

func ParseConfig(configMap map[string]interface{}) (*Config, error) {
	config := &Config{
		Token:     gconv.To[string](configMap["token"]),
		ServerURL: gconv.To[string](configMap["server_url"]),
		Debug:     gconv.To[bool](configMap["debug"]),
	}
	if config.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	if pollTimeout := gconv.To[int](configMap["poll_timeout"]); pollTimeout > 0 {
		config.PollTimeout = time.Duration(pollTimeout) * time.Second
	}
	if window := gconv.To[int](configMap["batch_window_ms"]); window > 0 {
		config.BatchWindow = time.Duration(window) * time.Millisecond
	}
	config.MaxBatchSize = gconv.To[int](configMap["max_batch_size"])
	config.MediaBatchSize = gconv.To[int](configMap["media_batch_size"])
	if ttl := gconv.To[int](configMap["cache_expire_ms"]); ttl > 0 {
		config.CacheTTL = time.Duration(ttl) * time.Millisecond
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
