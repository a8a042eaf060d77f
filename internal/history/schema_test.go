package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateHasEveryKey(t *testing.T) {
	tpl := Template("AAPL")
	assert.Len(t, tpl, 22)
	for _, k := range Keys() {
		assert.Contains(t, tpl, k)
	}
	assert.Equal(t, "AAPL", tpl[KeyTicker])
	assert.Equal(t, []any{}, tpl[KeyNorthStarMetrics])
	assert.Equal(t, map[string]any{}, tpl[KeyRadarScores])
	assert.Equal(t, "", tpl[KeyReasoningTrace])
}

func TestNormalizeDefaultsAndDropsExtras(t *testing.T) {
	raw := map[string]any{
		"company_name":  "Apple",
		"radar_scores":  map[string]any{"moat": 8.0},
		"extra_field":   "gone",
		"currency":      nil,
		"new_radar_key": 1.0,
	}
	got := Normalize(raw, "")

	assert.Len(t, got, len(Keys()))
	assert.Equal(t, "Apple", got[KeyCompanyName])
	assert.Equal(t, map[string]any{"moat": 8.0}, got[KeyRadarScores])
	assert.Equal(t, "", got[KeyCurrency], "null values keep the default")
	assert.NotContains(t, got, "extra_field")
	assert.NotContains(t, got, "new_radar_key")
}

func TestNormalizeTickerResolution(t *testing.T) {
	t.Run("hint wins", func(t *testing.T) {
		got := Normalize(map[string]any{"ticker": "MSFT"}, "AAPL")
		assert.Equal(t, "AAPL", got[KeyTicker])
	})
	t.Run("raw fills empty", func(t *testing.T) {
		got := Normalize(map[string]any{"ticker": "MSFT"}, "")
		assert.Equal(t, "MSFT", got[KeyTicker])
	})
	t.Run("empty raw ticker stays empty", func(t *testing.T) {
		got := Normalize(map[string]any{"ticker": ""}, "")
		assert.Equal(t, "", got[KeyTicker])
	})
}

func TestNormalizeNonMapping(t *testing.T) {
	for _, raw := range []any{nil, "text", []any{1.0, 2.0}, 42.0} {
		got := Normalize(raw, "TSLA")
		assert.Equal(t, Template("TSLA"), got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []map[string]any{
		{},
		{"ticker": "NVDA", "north_star_metrics": []any{map[string]any{"name": "DAU"}}},
		{"company_name": "X", "junk": true, "fair_value_range": map[string]any{"low": 1.0}},
		{"ticker": 0.0},
	}
	for _, in := range inputs {
		for _, hint := range []string{"", "HINT"} {
			once := Normalize(in, hint)
			twice := Normalize(once, hint)
			assert.Equal(t, once, twice)
		}
	}
}

func TestNormalizeShallowCopy(t *testing.T) {
	nested := map[string]any{"essence": "cash machine"}
	got := Normalize(map[string]any{"analysis_normal": nested}, "")
	assert.Equal(t, nested, got[KeyAnalysisNormal])
}

func TestMergeReplacesWholeKeys(t *testing.T) {
	prior := map[string]any{
		"ticker":       "AAPL",
		"company_name": "Apple",
		"radar_scores": map[string]any{"moat": 8.0, "growth": 6.0},
	}
	update := map[string]any{
		"radar_scores":    map[string]any{"moat": 7.0},
		"react_summary":   "margin pressure",
		"valuation_type":  nil,
		"not_in_template": "x",
	}
	got := Merge(prior, update, "")
	assert.Equal(t, "AAPL", got[KeyTicker])
	assert.Equal(t, "Apple", got[KeyCompanyName])
	assert.Equal(t, map[string]any{"moat": 7.0}, got[KeyRadarScores])
	assert.Equal(t, "margin pressure", got[KeyReactSummary])
	assert.Equal(t, "", got[KeyValuationType])
	assert.NotContains(t, got, "not_in_template")
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Template("AAPL")))

	drifted := Normalize(map[string]any{"business_model": "a sentence instead of an object"}, "AAPL")
	assert.Error(t, Validate(drifted))

	withExtra := Template("AAPL")
	withExtra["unexpected"] = 1
	assert.Error(t, Validate(withExtra))
}
