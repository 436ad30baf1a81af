package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds server and CLI configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // "text" or "json"

	// Verification limits applied to untrusted fulfillments.
	MaxCost      uint64
	AllowedTypes []string

	// StorePath is the SQLite file backing the condition store. Empty
	// disables the store.
	StorePath string

	RateRPS   float64
	RateBurst int
	RedisAddr string

	MaxRequestBytes int64

	OTelEnabled  bool
	OTelEndpoint string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:            "8080",
		LogLevel:        "INFO",
		LogFormat:       "text",
		MaxCost:         0,
		RateRPS:         50,
		RateBurst:       100,
		MaxRequestBytes: 1 << 20,
		OTelEndpoint:    "localhost:4317",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CC_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CC_CONFIG"); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		file.apply(cfg)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("CC_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTelEndpoint = v
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.OTelEnabled = v == "true"
	}
	if v := os.Getenv("CC_ALLOWED_TYPES"); v != "" {
		c.AllowedTypes = splitList(v)
	}

	if v := os.Getenv("CC_MAX_COST"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CC_MAX_COST: %w", err)
		}
		c.MaxCost = n
	}
	if v := os.Getenv("CC_RATE_RPS"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: CC_RATE_RPS: %w", err)
		}
		c.RateRPS = n
	}
	if v := os.Getenv("CC_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CC_RATE_BURST: %w", err)
		}
		c.RateBurst = n
	}
	if v := os.Getenv("CC_MAX_REQUEST_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CC_MAX_REQUEST_BYTES: %w", err)
		}
		c.MaxRequestBytes = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
