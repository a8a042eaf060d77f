package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.HTTP.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	return nil
}

func (h *HTTPConfig) validate() error {
	if strings.TrimSpace(h.Addr) == "" {
		return fmt.Errorf("http.addr cannot be empty")
	}
	return nil
}

// validate checks shape only. A missing api_key is reported when the first
// model call is made, so read-only commands work without one.
func (a *AIConfig) validate() error {
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if a.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be > 0")
	}
	temps := map[string]float64{
		"analyze":   a.Temperature.Analyze,
		"challenge": a.Temperature.Challenge,
		"react":     a.Temperature.React,
	}
	for name, t := range temps {
		if t < 0 || t > 2 {
			return fmt.Errorf("ai.temperature.%s must be within [0, 2], got %v", name, t)
		}
	}
	if a.BreakerFailures < 0 {
		return fmt.Errorf("ai.breaker_failures must be >= 0")
	}
	if a.APIURL != "" && !strings.HasPrefix(a.APIURL, "http://") && !strings.HasPrefix(a.APIURL, "https://") {
		return fmt.Errorf("ai.api_url must be an http(s) URL: %s", a.APIURL)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	if strings.TrimSpace(s.HistoryPath) == "" {
		return fmt.Errorf("storage.history_path cannot be empty")
	}
	switch s.ReactMode {
	case "append", "replace":
	default:
		return fmt.Errorf("storage.react_mode must be append or replace, got %q", s.ReactMode)
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics.path must start with /: %s", m.Path)
	}
	return nil
}
