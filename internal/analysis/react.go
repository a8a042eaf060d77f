package analysis

import (
	"context"
	"fmt"
	"strings"

	"alphaseeker/internal/history"
	"alphaseeker/internal/llmjson"
	"alphaseeker/internal/logger"
	"alphaseeker/internal/pkg/maputil"
	"alphaseeker/internal/prompt"
	"alphaseeker/internal/store/ledger"
)

// Snapshot metrics that the qualitative prompt lists by name.
var headlineMetrics = map[string]bool{
	"revenue":            true,
	"net_profit":         true,
	"revenue_growth_yoy": true,
	"profit_growth_yoy":  true,
}

// React re-evaluates a stored analysis against a new financial snapshot in
// two model calls: a qualitative pass, then a valuation pass fed with the
// qualitative result. The combined answer is merged over the old context,
// normalized and persisted according to the configured react mode.
func (e *Engine) React(ctx context.Context, req ReactRequest) (map[string]any, error) {
	if req.FinancialSnapshot == nil {
		return nil, fmt.Errorf("%w: financial_snapshot is required", ErrInvalidInput)
	}
	old := req.OldContext
	ticker := strings.TrimSpace(history.TickerOf(old))
	if ticker == "" {
		ticker = UnknownTicker
	}
	logger.Infof("[analysis] react start ticker=%s mode=%s metrics=%d", ticker, e.react, len(req.CustomMetrics))

	company := stringOf(old, history.KeyCompanyName, "Unknown")
	snap := maputil.Map(req.FinancialSnapshot, "metrics")

	qual, err := e.reactQualitative(ctx, ticker, company, old, req, snap)
	if err != nil {
		return nil, fmt.Errorf("qualitative step: %w", err)
	}
	val, err := e.reactValuation(ctx, ticker, company, qual, snap)
	if err != nil {
		return nil, fmt.Errorf("valuation step: %w", err)
	}

	update := combineReact(qual, val)
	update[history.KeyFinancialSnapshot] = req.FinancialSnapshot
	data := history.Merge(old, update, ticker)
	warnDrift(ticker, data)

	var rec ledger.Record
	if e.react == ledger.ModeReplace {
		rec, err = e.ledger.Replace(ctx, ticker, data, req.Price, "")
	} else {
		rec, err = e.ledger.Append(ctx, ticker, data, req.Price, "")
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("[analysis] react saved ticker=%s ts=%s mode=%s", ticker, rec.Timestamp, e.react)
	return data, nil
}

func (e *Engine) reactQualitative(ctx context.Context, ticker, company string, old map[string]any, req ReactRequest, snap map[string]any) (map[string]any, error) {
	others := make([]string, 0, len(snap))
	for _, k := range sortedKeys(snap) {
		if headlineMetrics[k] {
			continue
		}
		others = append(others, k+":"+valueText(snap[k]))
	}
	radar := maputil.Map(old, history.KeyRadarScores)
	normal := maputil.Map(old, history.KeyAnalysisNormal)

	system, err := e.prompts.Render(prompt.ReactEarnings, map[string]string{
		"company_name":          company,
		"old_moat_score":        stringOf(radar, "moat", "5"),
		"old_valuation_verdict": stringOf(old, history.KeyValuationType, "N/A"),
		"old_essence":           stringOf(normal, "essence", "N/A"),
		"period":                stringOf(req.FinancialSnapshot, "period", "Unknown"),
		"revenue":               stringOf(snap, "revenue", "N/A"),
		"revenue_growth":        stringOf(snap, "revenue_growth_yoy", "N/A"),
		"profit":                stringOf(snap, "net_profit", "N/A"),
		"profit_growth":         stringOf(snap, "profit_growth_yoy", "N/A"),
		"other_metrics":         strings.Join(others, ", "),
		"north_star_metrics":    metricsText(req.CustomMetrics, "no user-defined metrics"),
		"format_instructions":   llmjson.FormatInstructions(),
	})
	if err != nil {
		return nil, err
	}
	return e.complete(ctx, PurposeReactEarnings, ticker, system,
		"The financial report has been updated. Start the ReAct reasoning.", e.temps.React)
}

func (e *Engine) reactValuation(ctx context.Context, ticker, company string, qual, snap map[string]any) (map[string]any, error) {
	system, err := e.prompts.Render(prompt.ReactValuation, map[string]string{
		"company_name":        company,
		"react_summary":       stringOf(qual, history.KeyReactSummary, ""),
		"north_star_analysis": stringOf(qual, history.KeyNorthStarAnalysis, ""),
		"new_radar_scores":    valueText(maputil.Map(qual, "new_radar_scores")),
		"revenue":             stringOf(snap, "revenue", "N/A"),
		"net_profit":          stringOf(snap, "net_profit", "N/A"),
		"pe_ttm":              stringOf(snap, "pe_ttm", "N/A"),
		"growth_rate":         stringOf(snap, "revenue_growth_yoy", "N/A"),
		"format_instructions": llmjson.FormatInstructions(),
	})
	if err != nil {
		return nil, err
	}
	return e.complete(ctx, PurposeReactValuation, ticker, system,
		"Run the quantitative valuation on the analysis above.", e.temps.React)
}

// combineReact maps both step results onto schema keys. Keys the model left
// out are omitted so the old context keeps its values, except the verdict
// which defaults to HOLD.
func combineReact(qual, val map[string]any) map[string]any {
	out := make(map[string]any)
	carry := func(src map[string]any, from, to string) {
		if v := maputil.Value(src, from, nil); v != nil {
			out[to] = v
		}
	}
	carry(qual, history.KeyReactSummary, history.KeyReactSummary)
	carry(qual, history.KeyNorthStarAnalysis, history.KeyNorthStarAnalysis)
	carry(qual, "new_radar_scores", history.KeyRadarScores)
	carry(qual, "new_analysis_normal", history.KeyAnalysisNormal)
	carry(qual, history.KeyMasterViews, history.KeyMasterViews)
	carry(qual, history.KeyValuationAdjustmentReasoning, history.KeyValuationAdjustmentReasoning)

	carry(val, history.KeyValuationType, history.KeyValuationType)
	carry(val, history.KeyValuationParams, history.KeyValuationParams)
	carry(val, history.KeyValuationExplanation, history.KeyValuationExplanation)
	carry(val, history.KeyFairValueRange, history.KeyFairValueRange)
	carry(val, history.KeyMarginOfSafety, history.KeyMarginOfSafety)
	carry(val, history.KeyVerdictReasoning, history.KeyVerdictReasoning)
	out[history.KeyValuationVerdict] = maputil.String(val, history.KeyValuationVerdict, "HOLD")
	return out
}
