package agents

import (
	"context"
	"math"

	"github.com/halcyonlabs/patternflow/core"
)

// macroWeights blends the indicator series into a single cycle score. The
// weights sum to 1; spread and PMI lead, credit and unemployment confirm.
var macroWeights = map[string]float64{
	"yield_curve_spread": 0.30,
	"pmi_composite":      0.30,
	"credit_spread":      0.25,
	"unemployment_delta": 0.15,
}

// MacroHound scores the macro cycle from indicator series and classifies
// the regime. Scores are pack-independent reads of the indicator snapshot,
// so no pricing pack is required.
type MacroHound struct {
	provider MarketDataProvider
	logger   core.Logger
}

func NewMacroHound(provider MarketDataProvider, logger core.Logger) *MacroHound {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MacroHound{provider: provider, logger: logger}
}

func (a *MacroHound) Name() string { return "macro_hound" }

func (a *MacroHound) Capabilities() []core.Capability {
	return []core.Capability{
		{
			Name:        "macro.cycle_score",
			Description: "Composite business-cycle score in [0,100] from indicator trends",
			Tags:        []string{"macro", "cycle", "indicators"},
			TTLSeconds:  1800,
			Handler:     a.cycleScore,
		},
		{
			Name:        "macro.regime_detect",
			Description: "Classify the macro regime from a cycle score",
			Tags:        []string{"macro", "regime"},
			TTLSeconds:  1800,
			Handler:     a.regimeDetect,
		},
	}
}

func (a *MacroHound) cycleScore(ctx context.Context, _ *core.RequestContext, _ map[string]interface{}) (interface{}, error) {
	composite := 0.0
	components := map[string]interface{}{}

	for name, weight := range macroWeights {
		series, err := a.provider.MacroSeries(ctx, name)
		if err != nil {
			return nil, err
		}
		score := trendScore(name, series)
		components[name] = round2(score)
		composite += weight * score
	}

	return map[string]interface{}{
		"score":      round2(composite),
		"components": components,
	}, nil
}

func (a *MacroHound) regimeDetect(ctx context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	score, ok := args["score"].(float64)
	if !ok {
		// No upstream score supplied; compute one.
		raw, err := a.cycleScore(ctx, rc, nil)
		if err != nil {
			return nil, err
		}
		score = raw.(map[string]interface{})["score"].(float64)
	}

	regime := "contraction"
	switch {
	case score >= 70:
		regime = "expansion"
	case score >= 50:
		regime = "late_cycle"
	case score >= 30:
		regime = "slowdown"
	}

	return map[string]interface{}{
		"regime":     regime,
		"score":      round2(score),
		"confidence": round2(confidenceFor(score)),
	}, nil
}

// trendScore maps one indicator series to [0,100]: 50 is neutral, the level
// term anchors against each indicator's healthy range, and the slope over
// the last three observations tilts the score.
func trendScore(name string, series []float64) float64 {
	if len(series) == 0 {
		return 50
	}
	latest := series[len(series)-1]

	level := 50.0
	switch name {
	case "yield_curve_spread":
		level = 50 + latest*60
	case "pmi_composite":
		level = 50 + (latest-50)*10
	case "credit_spread":
		level = 50 - (latest-1.0)*40
	case "unemployment_delta":
		level = 50 - latest*80
	}

	if len(series) >= 3 {
		slope := latest - series[len(series)-3]
		switch name {
		case "credit_spread", "unemployment_delta":
			level -= slope * 30
		default:
			level += slope * 30
		}
	}

	return math.Max(0, math.Min(100, level))
}

// confidenceFor is highest away from the regime boundaries at 30/50/70.
func confidenceFor(score float64) float64 {
	nearest := 100.0
	for _, boundary := range []float64{30, 50, 70} {
		if d := math.Abs(score - boundary); d < nearest {
			nearest = d
		}
	}
	return math.Min(1.0, 0.5+nearest/20)
}

var _ core.Agent = (*MacroHound)(nil)
