package app

import (
	"context"
	"fmt"
	"strings"

	"alphaseeker/internal/analysis"
	"alphaseeker/internal/config"
	"alphaseeker/internal/gateway/provider"
	"alphaseeker/internal/logger"
	"alphaseeker/internal/metrics"
	"alphaseeker/internal/prompt"
	"alphaseeker/internal/store/ledger"
	"alphaseeker/internal/store/tracelog"
	"alphaseeker/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *config.Config

	providerFn func(config.AIConfig) provider.ModelProvider
	traceFn    func(string) (*tracelog.Store, error)
}

type AppBuilderOption func(*AppBuilder)

// WithProvider replaces the OpenAI-compatible provider (tests, alternative gateways).
func WithProvider(p provider.ModelProvider) AppBuilderOption {
	return func(b *AppBuilder) {
		if p != nil {
			b.providerFn = func(config.AIConfig) provider.ModelProvider { return p }
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		providerFn: buildModelProvider,
		traceFn:    tracelog.Open,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New()
	}

	store, err := ledger.Open(cfg.Storage.HistoryPath, ledger.WithObserver(reg.ObserveLedgerWrite))
	if err != nil {
		return nil, fmt.Errorf("open history ledger: %w", err)
	}

	var trace *tracelog.Store
	if path := strings.TrimSpace(cfg.Storage.TraceDBPath); path != "" {
		trace, err = b.traceFn(path)
		if err != nil {
			return nil, fmt.Errorf("open trace db: %w", err)
		}
	}

	prompts := prompt.NewLoader(cfg.Prompt.Dir)
	model := b.providerFn(cfg.AI)
	engine := analysis.NewEngine(analysis.EngineParams{
		Provider: model,
		Prompts:  prompts,
		Ledger:   store,
		Trace:    trace,
		Metrics:  reg,
		Temperatures: analysis.Temperatures{
			Analyze:   cfg.AI.Temperature.Analyze,
			Challenge: cfg.AI.Temperature.Challenge,
			React:     cfg.AI.Temperature.React,
		},
		ReactMode: cfg.Storage.ReactMode,
	})

	srvCfg := api.ServerConfig{
		Addr:        cfg.HTTP.Addr,
		StaticDir:   cfg.HTTP.StaticDir,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		MetricsPath: cfg.Metrics.Path,
		Engine:      engine,
		History:     store,
		Metrics:     reg,
	}
	if trace != nil {
		srvCfg.Traces = trace
	}
	server, err := api.NewServer(srvCfg)
	if err != nil {
		_ = trace.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		server:  server,
		prompts: prompts,
		trace:   trace,
		Summary: &StartupSummary{
			Addr:        server.Addr(),
			Provider:    model.ID(),
			Model:       model.Model(),
			HistoryPath: store.Path(),
			TracePath:   cfg.Storage.TraceDBPath,
			PromptDir:   prompts.Dir(),
			ReactMode:   cfg.Storage.ReactMode,
			Metrics:     reg != nil,
		},
	}, nil
}

func buildModelProvider(ai config.AIConfig) provider.ModelProvider {
	if ai.APIKey == "" {
		logger.Warnf("[app] %s is not set, model calls will likely be rejected", config.EnvAPIKey)
	}
	client := &provider.OpenAIChatClient{
		BaseURL:      ai.APIURL,
		APIKey:       ai.APIKey,
		Model:        ai.Model,
		Timeout:      ai.Timeout(),
		MaxRetries:   ai.MaxRetries,
		ExtraHeaders: ai.Headers,
	}
	return provider.NewOpenAIModelProvider("openai", client, provider.BreakerSettings{
		ConsecutiveFailures: uint32(ai.BreakerFailures),
		Cooldown:            ai.BreakerCooldown(),
	})
}
