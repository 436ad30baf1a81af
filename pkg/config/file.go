package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML layout of a configuration file. Unset fields leave
// the defaults in place.
type FileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		MaxRequestBytes int64  `yaml:"max_request_bytes"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Verify struct {
		MaxCost      uint64   `yaml:"max_cost"`
		AllowedTypes []string `yaml:"allowed_types"`
	} `yaml:"verify"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	RateLimit struct {
		RPS       float64 `yaml:"rps"`
		Burst     int     `yaml:"burst"`
		RedisAddr string  `yaml:"redis_addr"`
	} `yaml:"rate_limit"`

	Telemetry struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"telemetry"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &fc, nil
}

func (f *FileConfig) apply(c *Config) {
	if f.Server.Port != "" {
		c.Port = f.Server.Port
	}
	if f.Server.MaxRequestBytes > 0 {
		c.MaxRequestBytes = f.Server.MaxRequestBytes
	}
	if f.Logging.Level != "" {
		c.LogLevel = f.Logging.Level
	}
	if f.Logging.Format != "" {
		c.LogFormat = f.Logging.Format
	}
	if f.Verify.MaxCost > 0 {
		c.MaxCost = f.Verify.MaxCost
	}
	if len(f.Verify.AllowedTypes) > 0 {
		c.AllowedTypes = f.Verify.AllowedTypes
	}
	if f.Store.Path != "" {
		c.StorePath = f.Store.Path
	}
	if f.RateLimit.RPS > 0 {
		c.RateRPS = f.RateLimit.RPS
	}
	if f.RateLimit.Burst > 0 {
		c.RateBurst = f.RateLimit.Burst
	}
	if f.RateLimit.RedisAddr != "" {
		c.RedisAddr = f.RateLimit.RedisAddr
	}
	if f.Telemetry.Enabled {
		c.OTelEnabled = true
	}
	if f.Telemetry.Endpoint != "" {
		c.OTelEndpoint = f.Telemetry.Endpoint
	}
}
