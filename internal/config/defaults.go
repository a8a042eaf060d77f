package config

import "strings"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultHTTPAddr        = ":12123"
	defaultStaticDir       = "static"
	defaultAIModel         = "gpt-4o"
	defaultAITimeout       = 120
	defaultAIMaxRetries    = 2
	defaultTempAnalyze     = 0.7
	defaultTempChallenge   = 0.8
	defaultTempReact       = 0.7
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30
	defaultPromptDir       = "prompts"
	defaultHistoryPath     = "data/history.jsonl"
	defaultTraceDBPath     = "data/llm_trace.db"
	defaultReactMode       = "append"
	defaultMetricsPath     = "/metrics"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Prompt.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
		stringFieldDefault("http.static_dir", &h.StaticDir, defaultStaticDir),
		fieldDefault{
			key:   "http.cors_origins",
			need:  func() bool { return len(h.CORSOrigins) == 0 },
			apply: func() { h.CORSOrigins = []string{"*"} },
		},
	)
	h.CORSOrigins = normalizeList(h.CORSOrigins)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ai.model", &a.Model, defaultAIModel),
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
		fieldDefault{
			key:   "ai.max_retries",
			need:  func() bool { return a.MaxRetries == 0 },
			apply: func() { a.MaxRetries = defaultAIMaxRetries },
		},
		floatFieldDefault("ai.temperature.analyze", &a.Temperature.Analyze, defaultTempAnalyze),
		floatFieldDefault("ai.temperature.challenge", &a.Temperature.Challenge, defaultTempChallenge),
		floatFieldDefault("ai.temperature.react", &a.Temperature.React, defaultTempReact),
		fieldDefault{
			key:   "ai.breaker_failures",
			need:  func() bool { return a.BreakerFailures <= 0 },
			apply: func() { a.BreakerFailures = defaultBreakerFailures },
		},
		fieldDefault{
			key:   "ai.breaker_cooldown_seconds",
			need:  func() bool { return a.BreakerCooldownSeconds <= 0 },
			apply: func() { a.BreakerCooldownSeconds = defaultBreakerCooldown },
		},
	)
	a.APIURL = strings.TrimSpace(a.APIURL)
	a.APIKey = strings.TrimSpace(a.APIKey)
}

func (p *PromptConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("prompt.dir", &p.Dir, defaultPromptDir),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.history_path", &s.HistoryPath, defaultHistoryPath),
		stringFieldDefault("storage.trace_db_path", &s.TraceDBPath, defaultTraceDBPath),
		stringFieldDefault("storage.react_mode", &s.ReactMode, defaultReactMode),
	)
	s.ReactMode = strings.ToLower(strings.TrimSpace(s.ReactMode))
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("metrics.enabled", &m.Enabled, true),
		stringFieldDefault("metrics.path", &m.Path, defaultMetricsPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// floatFieldDefault applies def unless the key was set, so an explicit 0 is kept.
func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
