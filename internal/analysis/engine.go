// Package analysis runs the model-backed workflows: first analysis of a
// ticker, bear-case challenge and post-earnings re-evaluation.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"alphaseeker/internal/gateway/provider"
	"alphaseeker/internal/history"
	"alphaseeker/internal/llmjson"
	"alphaseeker/internal/logger"
	"alphaseeker/internal/metrics"
	"alphaseeker/internal/pkg/jsonutil"
	"alphaseeker/internal/pkg/maputil"
	"alphaseeker/internal/pkg/text"
	"alphaseeker/internal/prompt"
	"alphaseeker/internal/store/ledger"
	"alphaseeker/internal/store/tracelog"

	"github.com/shopspring/decimal"
)

type EngineParams struct {
	Provider     provider.ModelProvider
	Prompts      *prompt.Loader
	Ledger       Ledger
	Trace        *tracelog.Store
	Metrics      *metrics.Registry
	Temperatures Temperatures
	// ReactMode is ledger.ModeAppend or ledger.ModeReplace.
	ReactMode string
}

type Engine struct {
	provider provider.ModelProvider
	prompts  *prompt.Loader
	ledger   Ledger
	trace    *tracelog.Store
	metrics  *metrics.Registry
	temps    Temperatures
	react    string
}

func NewEngine(p EngineParams) *Engine {
	temps := p.Temperatures
	if temps == (Temperatures{}) {
		temps = DefaultTemperatures()
	}
	mode := strings.ToLower(strings.TrimSpace(p.ReactMode))
	if mode != ledger.ModeReplace {
		mode = ledger.ModeAppend
	}
	prompts := p.Prompts
	if prompts == nil {
		prompts = prompt.NewLoader("")
	}
	return &Engine{
		provider: p.Provider,
		prompts:  prompts,
		ledger:   p.Ledger,
		trace:    p.Trace,
		metrics:  p.Metrics,
		temps:    temps,
		react:    mode,
	}
}

// Analyze asks the model for a full analysis of req.Ticker, normalizes the
// answer and appends it to the ledger with the quoted price.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (map[string]any, error) {
	ticker := strings.TrimSpace(req.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", ErrInvalidInput)
	}
	if req.Price == nil {
		return nil, fmt.Errorf("%w: price is required", ErrInvalidInput)
	}
	price := formatNumber(*req.Price)
	logger.Infof("[analysis] analyze start ticker=%s price=%s metrics=%d", ticker, price, len(req.CustomMetrics))

	system, err := e.prompts.Render(prompt.Analyze, map[string]string{
		"ticker":              ticker,
		"price":               price,
		"custom_metrics":      metricsText(req.CustomMetrics, "none"),
		"format_instructions": llmjson.FormatInstructions(),
	})
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("Target: %s. Current price: %s", ticker, price)
	raw, err := e.complete(ctx, PurposeAnalyze, ticker, system, user, e.temps.Analyze)
	if err != nil {
		return nil, err
	}

	data := history.Normalize(raw, ticker)
	warnDrift(ticker, data)
	rec, err := e.ledger.Append(ctx, ticker, data, req.Price, "")
	if err != nil {
		return nil, err
	}
	logger.Infof("[analysis] analyze saved ticker=%s ts=%s price=%s", ticker, rec.Timestamp, price)
	return data, nil
}

// Challenge stress-tests a stored analysis against a bear argument. The
// critique is returned as the model produced it and is not persisted.
func (e *Engine) Challenge(ctx context.Context, req ChallengeRequest) (map[string]any, error) {
	bear := strings.TrimSpace(req.BearArgument)
	if bear == "" {
		return nil, fmt.Errorf("%w: bear_argument is required", ErrInvalidInput)
	}
	c := req.Context
	radar := maputil.Map(c, history.KeyRadarScores)
	system, err := e.prompts.Render(prompt.Challenge, map[string]string{
		"company_name":             stringOf(c, history.KeyCompanyName, "Unknown"),
		"original_moat_score":      stringOf(radar, "moat", "5"),
		"original_valuation_score": stringOf(radar, "valuation", "5"),
		"original_reasoning":       stringOf(c, history.KeyReasoningTrace, "N/A"),
		"bear_argument":            bear,
		"format_instructions":      llmjson.FormatInstructions(),
	})
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("Bear argument: %s. Make your case.", bear)
	return e.complete(ctx, PurposeChallenge, history.TickerOf(c), system, user, e.temps.Challenge)
}

// complete runs one model call and decodes its answer as a JSON object.
func (e *Engine) complete(ctx context.Context, purpose, ticker, system, user string, temp float64) (map[string]any, error) {
	start := time.Now()
	raw, err := e.provider.Call(ctx, provider.ChatPayload{
		System:      system,
		User:        user,
		Temperature: provider.Temperature(temp),
		Purpose:     purpose,
	})
	took := time.Since(start)
	e.metrics.ObserveLLMCall(purpose, took, err)
	entry := tracelog.Entry{
		Purpose:  purpose,
		Provider: e.provider.ID(),
		Model:    e.provider.Model(),
		Ticker:   ticker,
		Duration: took,
		Response: raw,
		Meta:     map[string]any{"temperature": temp},
	}
	if err != nil {
		entry.Err = err
		e.record(ctx, entry)
		logger.Errorf("[analysis] %s call failed ticker=%s: %v", purpose, ticker, err)
		return nil, err
	}

	obj, stage, err := parseObject(raw)
	e.metrics.ObserveParse(stage)
	entry.ParseStage = stage
	entry.Err = err
	e.record(ctx, entry)
	if err != nil {
		logger.Errorf("[analysis] %s parse failed ticker=%s: %v", purpose, ticker, err)
		return nil, err
	}
	if stage != "strict" {
		logger.Debugf("[analysis] %s parsed via %s", purpose, stage)
	}
	return obj, nil
}

func parseObject(raw string) (map[string]any, string, error) {
	v, stage, err := llmjson.ParseWithStage(raw)
	if err != nil {
		return nil, "", err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, "", &llmjson.MalformedResponseError{
			Snippet: text.Head(jsonutil.StripFence(strings.TrimSpace(raw)), 800),
			Err:     fmt.Errorf("expected a JSON object, got %T", v),
		}
	}
	return obj, stage, nil
}

func (e *Engine) record(ctx context.Context, entry tracelog.Entry) {
	if err := e.trace.Record(ctx, entry); err != nil {
		logger.Warnf("[analysis] trace write failed: %v", err)
	}
}

func warnDrift(ticker string, data map[string]any) {
	if err := history.Validate(data); err != nil {
		logger.Warnf("[analysis] ticker=%s payload drifts from schema: %v", ticker, err)
	}
}

// metricsText renders custom metrics as JSON, or fallback when empty.
func metricsText(ms []Metric, fallback string) string {
	if len(ms) == 0 {
		return fallback
	}
	b, err := json.Marshal(ms)
	if err != nil {
		return fallback
	}
	return string(b)
}

func formatNumber(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// valueText formats a decoded JSON value for a prompt.
func valueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatNumber(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func stringOf(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	return valueText(v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
