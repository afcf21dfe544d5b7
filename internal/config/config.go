// Package config loads application configuration from environment variables
// and an optional YAML file.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SecretKeySize is the decoded length required for ALGOPILOT_SECRET_KEY.
const SecretKeySize = 32

// Config holds the application configuration.
type Config struct {
	ListenAddr      string
	DBPath          string
	SecretKey       []byte
	JWTSecret       []byte
	JWTTTL          time.Duration
	BrokerBaseURL   string
	APITimeout      time.Duration
	IPLookupTimeout time.Duration
	LogLevel        slog.Level
	LogFormat       string

	// From the YAML file. A nil HostPolicy keeps the client's built-in
	// policy; an empty one disables host fallback.
	HostPolicy       map[string][]string
	PublicIPServices []string
	InstrumentURL    string
}

// fileConfig is the shape of the ALGOPILOT_CONFIG file.
type fileConfig struct {
	HostPolicy       map[string][]string `yaml:"host_policy"`
	PublicIPServices []string            `yaml:"public_ip_services"`
	InstrumentURL    string              `yaml:"instrument_url"`
}

// HasSecretKey reports whether credential and session storage can be
// encrypted. Without a key the server runs but cannot store secrets.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == SecretKeySize
}

// Load reads configuration from environment variables and returns a validated Config.
// Optional variables with defaults: ALGOPILOT_LISTEN_ADDR (127.0.0.1:8080),
// ALGOPILOT_DB_PATH (algopilot.db), ALGOPILOT_JWT_TTL (30m),
// ALGOPILOT_BROKER_BASE_URL (https://apiconnect.angelbroking.com),
// ALGOPILOT_API_TIMEOUT (30s), ALGOPILOT_IP_LOOKUP_TIMEOUT (5s),
// ALGOPILOT_LOG_LEVEL (info), ALGOPILOT_LOG_FORMAT (text).
// ALGOPILOT_SECRET_KEY must be base64 of 32 bytes when set.
// ALGOPILOT_CONFIG names a YAML file with host_policy, public_ip_services
// and instrument_url.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      "127.0.0.1:8080",
		DBPath:          "algopilot.db",
		JWTTTL:          30 * time.Minute,
		BrokerBaseURL:   "https://apiconnect.angelbroking.com",
		APITimeout:      30 * time.Second,
		IPLookupTimeout: 5 * time.Second,
		LogLevel:        slog.LevelInfo,
		LogFormat:       "text",
	}

	if v, ok := os.LookupEnv("ALGOPILOT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ALGOPILOT_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("ALGOPILOT_BROKER_BASE_URL"); ok && v != "" {
		cfg.BrokerBaseURL = strings.TrimRight(v, "/")
	}

	if v, ok := os.LookupEnv("ALGOPILOT_SECRET_KEY"); ok && v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("ALGOPILOT_SECRET_KEY is not valid base64: %w", err)
		}
		if len(key) != SecretKeySize {
			return nil, fmt.Errorf("ALGOPILOT_SECRET_KEY must decode to %d bytes, got %d", SecretKeySize, len(key))
		}
		cfg.SecretKey = key
	}

	if v, ok := os.LookupEnv("ALGOPILOT_JWT_SECRET"); ok && v != "" {
		cfg.JWTSecret = []byte(v)
	}

	var err error
	if cfg.JWTTTL, err = durationEnv("ALGOPILOT_JWT_TTL", cfg.JWTTTL); err != nil {
		return nil, err
	}
	if cfg.APITimeout, err = durationEnv("ALGOPILOT_API_TIMEOUT", cfg.APITimeout); err != nil {
		return nil, err
	}
	if cfg.IPLookupTimeout, err = durationEnv("ALGOPILOT_IP_LOOKUP_TIMEOUT", cfg.IPLookupTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("ALGOPILOT_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("ALGOPILOT_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}
	if v, ok := os.LookupEnv("ALGOPILOT_LOG_FORMAT"); ok && v != "" {
		v = strings.ToLower(v)
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("ALGOPILOT_LOG_FORMAT must be text or json, got %q", v)
		}
		cfg.LogFormat = v
	}

	if path, ok := os.LookupEnv("ALGOPILOT_CONFIG"); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.HostPolicy != nil {
		c.HostPolicy = make(map[string][]string, len(fc.HostPolicy))
		for endpoint, hosts := range fc.HostPolicy {
			for _, h := range hosts {
				if !strings.HasPrefix(h, "https://") && !strings.HasPrefix(h, "http://") {
					return fmt.Errorf("host_policy.%s: %q is not an http(s) URL", endpoint, h)
				}
			}
			c.HostPolicy[endpoint] = hosts
		}
	}
	c.PublicIPServices = fc.PublicIPServices
	c.InstrumentURL = fc.InstrumentURL
	return nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
