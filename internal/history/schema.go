// Package history defines the fixed shape of every stored analysis payload.
package history

// Keys of the data mapping, in template order.
const (
	KeyTicker                       = "ticker"
	KeyCompanyName                  = "company_name"
	KeyCurrency                     = "currency"
	KeyBusinessModel                = "business_model"
	KeyMoatAnalysis                 = "moat_analysis"
	KeyRadarScores                  = "radar_scores"
	KeyNorthStarMetrics             = "north_star_metrics"
	KeyAnalysisNormal               = "analysis_normal"
	KeyAnalysisBroken               = "analysis_broken"
	KeyMasterViews                  = "master_views"
	KeyValuationType                = "valuation_type"
	KeyValuationParams              = "valuation_params"
	KeyValuationExplanation         = "valuation_explanation"
	KeyReactSummary                 = "react_summary"
	KeyNorthStarAnalysis            = "north_star_analysis"
	KeyValuationAdjustmentReasoning = "valuation_adjustment_reasoning"
	KeyFairValueRange               = "fair_value_range"
	KeyValuationVerdict             = "valuation_verdict"
	KeyMarginOfSafety               = "margin_of_safety"
	KeyVerdictReasoning             = "verdict_reasoning"
	KeyFinancialSnapshot            = "financial_snapshot"
	KeyReasoningTrace               = "reasoning_trace"
)

type kind int

const (
	kindString kind = iota
	kindObject
	kindArray
)

type field struct {
	key  string
	kind kind
}

var fields = []field{
	{KeyTicker, kindString},
	{KeyCompanyName, kindString},
	{KeyCurrency, kindString},
	{KeyBusinessModel, kindObject},
	{KeyMoatAnalysis, kindObject},
	{KeyRadarScores, kindObject},
	{KeyNorthStarMetrics, kindArray},
	{KeyAnalysisNormal, kindObject},
	{KeyAnalysisBroken, kindObject},
	{KeyMasterViews, kindObject},
	{KeyValuationType, kindString},
	{KeyValuationParams, kindObject},
	{KeyValuationExplanation, kindObject},
	{KeyReactSummary, kindString},
	{KeyNorthStarAnalysis, kindString},
	{KeyValuationAdjustmentReasoning, kindString},
	{KeyFairValueRange, kindObject},
	{KeyValuationVerdict, kindString},
	{KeyMarginOfSafety, kindString},
	{KeyVerdictReasoning, kindString},
	{KeyFinancialSnapshot, kindObject},
	{KeyReasoningTrace, kindString},
}

var fieldIndex = func() map[string]kind {
	idx := make(map[string]kind, len(fields))
	for _, f := range fields {
		idx[f.key] = f.kind
	}
	return idx
}()

// Keys returns the schema keys in template order.
func Keys() []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.key
	}
	return out
}

// IsKey reports whether key belongs to the schema.
func IsKey(key string) bool {
	_, ok := fieldIndex[key]
	return ok
}

func (k kind) zero() any {
	switch k {
	case kindObject:
		return map[string]any{}
	case kindArray:
		return []any{}
	default:
		return ""
	}
}

// Template returns a fresh mapping holding the default of every key.
func Template(ticker string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.key] = f.kind.zero()
	}
	out[KeyTicker] = ticker
	return out
}

// Normalize projects raw onto the schema. Non-null schema values in raw
// replace the defaults wholesale; everything outside the schema is dropped.
// A non-empty ticker hint always wins; otherwise an empty result ticker is
// filled from raw["ticker"]. raw values that are not mappings count as empty.
func Normalize(raw any, ticker string) map[string]any {
	base := Template(ticker)
	src, _ := raw.(map[string]any)
	for _, f := range fields {
		if v, ok := src[f.key]; ok && v != nil {
			base[f.key] = v
		}
	}
	if ticker != "" {
		base[KeyTicker] = ticker
	}
	if isEmpty(base[KeyTicker]) {
		if v, ok := src[KeyTicker]; ok && !isEmpty(v) {
			base[KeyTicker] = v
		}
	}
	return base
}

// Merge overlays the non-null schema keys of update on the normalized prior.
// Later values win per top-level key; nested values are not merged.
func Merge(prior, update map[string]any, ticker string) map[string]any {
	out := Normalize(prior, ticker)
	for _, f := range fields {
		if v, ok := update[f.key]; ok && v != nil {
			out[f.key] = v
		}
	}
	return Normalize(out, ticker)
}

// TickerOf returns data["ticker"] when it is a non-empty string.
func TickerOf(data map[string]any) string {
	s, _ := data[KeyTicker].(string)
	return s
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case bool:
		return !x
	case float64:
		return x == 0
	default:
		return false
	}
}
