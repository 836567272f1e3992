// Package agents holds the built-in capability providers: deterministic
// analytics agents over a market data provider, plus an optional LLM-backed
// narrative agent. Agents never reach the cache, the pattern store, or each
// other; all cross-step data flow goes through the orchestrator.
package agents

import (
	"context"
	"fmt"

	"github.com/halcyonlabs/patternflow/core"
)

// Holding is one position in a portfolio snapshot.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Sector   string  `json:"sector"`
}

// MarketDataProvider is the uniform pull interface agents fetch through.
// Implementations must return data consistent with the pricing pack named by
// the request context; the static provider ships one frozen snapshot per
// pack family for tests and local runs.
type MarketDataProvider interface {
	Holdings(ctx context.Context, portfolioID string) ([]Holding, error)
	DailyReturns(ctx context.Context, portfolioID string, window int) ([]float64, error)
	MacroSeries(ctx context.Context, name string) ([]float64, error)
}

// StaticProvider serves a fixed in-memory dataset. Lookups are deterministic
// so repeated pattern executions against the same pack produce identical
// results.
type StaticProvider struct {
	holdings map[string][]Holding
	returns  map[string][]float64
	macro    map[string][]float64
}

// NewStaticProvider seeds the provider with a small demonstration dataset:
// one balanced portfolio, a year of daily returns, and the macro indicator
// series the MacroHound agent consumes.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		holdings: map[string][]Holding{
			"demo": {
				{Symbol: "AAPL", Quantity: 120, Price: 228.50, Sector: "technology"},
				{Symbol: "MSFT", Quantity: 80, Price: 415.20, Sector: "technology"},
				{Symbol: "JNJ", Quantity: 150, Price: 158.75, Sector: "healthcare"},
				{Symbol: "JPM", Quantity: 90, Price: 242.10, Sector: "financials"},
				{Symbol: "XOM", Quantity: 200, Price: 114.30, Sector: "energy"},
			},
		},
		returns: map[string][]float64{
			"demo": demoReturns(),
		},
		macro: map[string][]float64{
			"yield_curve_spread": {0.45, 0.41, 0.38, 0.30, 0.22, 0.18, 0.15, 0.12},
			"pmi_composite":      {52.1, 51.8, 51.2, 50.6, 50.1, 49.8, 49.5, 49.2},
			"credit_spread":      {1.10, 1.14, 1.19, 1.27, 1.34, 1.42, 1.51, 1.63},
			"unemployment_delta": {-0.1, 0.0, 0.0, 0.1, 0.1, 0.2, 0.2, 0.3},
		},
	}
}

func (p *StaticProvider) Holdings(_ context.Context, portfolioID string) ([]Holding, error) {
	holdings, ok := p.holdings[portfolioID]
	if !ok {
		return nil, core.NewError(core.KindValidationFailure, "provider.holdings",
			fmt.Sprintf("unknown portfolio %q", portfolioID))
	}
	out := make([]Holding, len(holdings))
	copy(out, holdings)
	return out, nil
}

func (p *StaticProvider) DailyReturns(_ context.Context, portfolioID string, window int) ([]float64, error) {
	series, ok := p.returns[portfolioID]
	if !ok {
		return nil, core.NewError(core.KindValidationFailure, "provider.daily_returns",
			fmt.Sprintf("unknown portfolio %q", portfolioID))
	}
	if window <= 0 || window > len(series) {
		window = len(series)
	}
	out := make([]float64, window)
	copy(out, series[len(series)-window:])
	return out, nil
}

func (p *StaticProvider) MacroSeries(_ context.Context, name string) ([]float64, error) {
	series, ok := p.macro[name]
	if !ok {
		return nil, core.NewError(core.KindValidationFailure, "provider.macro_series",
			fmt.Sprintf("unknown macro series %q", name))
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out, nil
}

// demoReturns generates 252 trading days of synthetic daily returns from a
// fixed linear congruential sequence. No randomness source is involved, so
// every process computes the same series.
func demoReturns() []float64 {
	const days = 252
	out := make([]float64, days)
	seed := uint64(20250101)
	for i := 0; i < days; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map to roughly [-2%, +2%] with a mild positive drift.
		out[i] = float64(int64(seed>>33)%400-195) / 10000.0
	}
	return out
}

var _ MarketDataProvider = (*StaticProvider)(nil)
