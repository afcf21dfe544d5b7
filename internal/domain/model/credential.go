package model

import (
	"fmt"
	"log/slog"
)

// Credentials is the bundle presented to the broker to open a session.
// ClientCode is the broker-side account identifier. Values are immutable
// once handed to a client and must never reach a log line in clear text.
type Credentials struct {
	ClientCode string
	APIKey     string
	APISecret  string
	PIN        string
	BaseURL    string
}

// String redacts every secret so accidental %v formatting is safe.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{ClientCode:%s APIKey:%s APISecret:%s PIN:%s BaseURL:%s}",
		c.ClientCode, redact(c.APIKey), redact(c.APISecret), redact(c.PIN), c.BaseURL)
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_code", c.ClientCode),
		slog.String("base_url", c.BaseURL),
		slog.Bool("has_api_key", c.APIKey != ""),
		slog.Bool("has_pin", c.PIN != ""),
	)
}

// Complete reports whether every field needed for a login is present.
func (c Credentials) Complete() bool {
	return c.ClientCode != "" && c.APIKey != "" && c.PIN != "" && c.BaseURL != ""
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
