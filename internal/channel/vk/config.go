package vk

import (
	"errors"
	"strings"
	"time"

	"github.com/SevereCloud/vksdk/v3/api"
	"github.com/bytedance/gg/gconv"
)

type Config struct {
	Token string
	// GroupID is the community whose long poll stream is read.
	GroupID    int64
	APIVersion string
	BaseURL    string
	// Wait is the long poll hang time in seconds.
	Wait     int
	CacheTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("vk token cannot be empty")
	}
	if c.GroupID <= 0 {
		return errors.New("vk group_id must be a positive community id")
	}
	if c.APIVersion == "" {
		c.APIVersion = api.Version
	}
	if c.BaseURL == "" {
		c.BaseURL = api.MethodURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/") + "/"
	if c.Wait <= 0 || c.Wait > 90 {
		c.Wait = 25
	}
	return nil
}

func ParseConfig(configMap map[string]interface{}) (*Config, error) {
	config := &Config{
		Token:      gconv.To[string](configMap["token"]),
		GroupID:    gconv.To[int64](configMap["group_id"]),
		APIVersion: gconv.To[string](configMap["api_version"]),
		BaseURL:    gconv.To[string](configMap["base_url"]),
		Wait:       gconv.To[int](configMap["wait"]),
	}
	if ttl := gconv.To[int](configMap["cache_expire_ms"]); ttl > 0 {
		config.CacheTTL = time.Duration(ttl) * time.Millisecond
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
