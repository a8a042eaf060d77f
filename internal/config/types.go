package config

import (
	"strings"
	"time"
)

// Config is the root configuration of the service.
type Config struct {
	App     AppConfig     `toml:"app"`
	HTTP    HTTPConfig    `toml:"http"`
	AI      AIConfig      `toml:"ai"`
	Prompt  PromptConfig  `toml:"prompt"`
	Storage StorageConfig `toml:"storage"`
	Metrics MetricsConfig `toml:"metrics"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	StaticDir   string   `toml:"static_dir"`
	CORSOrigins []string `toml:"cors_origins"`
}

type AIConfig struct {
	APIURL                 string            `toml:"api_url"`
	APIKey                 string            `toml:"api_key"`
	Model                  string            `toml:"model"`
	TimeoutSeconds         int               `toml:"timeout_seconds"`
	MaxRetries             int               `toml:"max_retries"`
	Temperature            TemperatureConfig `toml:"temperature"`
	BreakerFailures        int               `toml:"breaker_failures"`
	BreakerCooldownSeconds int               `toml:"breaker_cooldown_seconds"`
	Headers                map[string]string `toml:"headers"`
}

type TemperatureConfig struct {
	Analyze   float64 `toml:"analyze"`
	Challenge float64 `toml:"challenge"`
	React     float64 `toml:"react"`
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AIConfig) BreakerCooldown() time.Duration {
	return time.Duration(a.BreakerCooldownSeconds) * time.Second
}

type PromptConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// StorageConfig locates the history ledger and the optional trace DB.
// An empty TraceDBPath disables call tracing.
type StorageConfig struct {
	HistoryPath string `toml:"history_path"`
	TraceDBPath string `toml:"trace_db_path"`
	ReactMode   string `toml:"react_mode"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet tracks the dotted paths explicitly set by the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
