package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/halcyonlabs/patternflow/core"
)

// FinancialAnalyst computes performance and composition metrics from pack
// data. All capabilities require a pricing pack because every number they
// emit is only meaningful against one frozen valuation.
type FinancialAnalyst struct {
	provider MarketDataProvider
	logger   core.Logger
}

func NewFinancialAnalyst(provider MarketDataProvider, logger core.Logger) *FinancialAnalyst {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &FinancialAnalyst{provider: provider, logger: logger}
}

func (a *FinancialAnalyst) Name() string { return "financial_analyst" }

func (a *FinancialAnalyst) Capabilities() []core.Capability {
	return []core.Capability{
		{
			Name:                "metrics.compute_twr",
			Description:         "Time-weighted return over a trailing window of daily returns",
			Tags:                []string{"performance", "returns", "twr"},
			TTLSeconds:          3600,
			RequiresPricingPack: true,
			Handler:             a.computeTWR,
		},
		{
			Name:                "metrics.compute_sharpe",
			Description:         "Annualized Sharpe ratio over a trailing window",
			Tags:                []string{"performance", "risk", "sharpe"},
			TTLSeconds:          3600,
			RequiresPricingPack: true,
			Handler:             a.computeSharpe,
		},
		{
			Name:                "portfolio.summary",
			Description:         "Market value and sector weights of a portfolio",
			Tags:                []string{"portfolio", "allocation", "summary"},
			TTLSeconds:          3600,
			RequiresPricingPack: true,
			Handler:             a.summary,
		},
	}
}

func (a *FinancialAnalyst) computeTWR(ctx context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	portfolioID, window, err := portfolioWindow(args)
	if err != nil {
		return nil, err
	}

	returns, err := a.provider.DailyReturns(ctx, portfolioID, window)
	if err != nil {
		return nil, err
	}
	if len(returns) == 0 {
		return nil, core.NewError(core.KindValidationFailure, "metrics.compute_twr",
			fmt.Sprintf("no return series for portfolio %q", portfolioID))
	}

	// Geometric chain of daily returns.
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	twr := growth - 1

	return map[string]interface{}{
		"portfolio_id": portfolioID,
		"window_days":  len(returns),
		"twr":          round6(twr),
		"annualized":   round6(math.Pow(growth, 252.0/float64(len(returns))) - 1),
		"_metadata": map[string]interface{}{
			"source": a.Name() + ":" + rc.PricingPackID,
		},
	}, nil
}

func (a *FinancialAnalyst) computeSharpe(ctx context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	portfolioID, window, err := portfolioWindow(args)
	if err != nil {
		return nil, err
	}
	riskFree := 0.0
	if v, ok := args["risk_free_rate"].(float64); ok {
		riskFree = v
	}

	returns, err := a.provider.DailyReturns(ctx, portfolioID, window)
	if err != nil {
		return nil, err
	}
	if len(returns) < 2 {
		return nil, core.NewError(core.KindValidationFailure, "metrics.compute_sharpe",
			"at least two observations required")
	}

	dailyRF := riskFree / 252.0
	mean := 0.0
	for _, r := range returns {
		mean += r - dailyRF
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := (r - dailyRF) - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return nil, core.NewError(core.KindValidationFailure, "metrics.compute_sharpe",
			"zero return volatility")
	}

	return map[string]interface{}{
		"portfolio_id": portfolioID,
		"window_days":  len(returns),
		"sharpe":       round6(mean / stddev * math.Sqrt(252)),
		"volatility":   round6(stddev * math.Sqrt(252)),
		"_metadata": map[string]interface{}{
			"source": a.Name() + ":" + rc.PricingPackID,
		},
	}, nil
}

func (a *FinancialAnalyst) summary(ctx context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	portfolioID, ok := args["portfolio_id"].(string)
	if !ok || portfolioID == "" {
		return nil, core.NewError(core.KindValidationFailure, "portfolio.summary",
			"portfolio_id is required")
	}

	holdings, err := a.provider.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	total := 0.0
	bySector := map[string]float64{}
	positions := make([]map[string]interface{}, 0, len(holdings))
	for _, h := range holdings {
		value := h.Quantity * h.Price
		total += value
		bySector[h.Sector] += value
		positions = append(positions, map[string]interface{}{
			"symbol": h.Symbol,
			"value":  round2(value),
			"sector": h.Sector,
		})
	}

	weights := map[string]interface{}{}
	for sector, value := range bySector {
		weights[sector] = round6(value / total)
	}

	return map[string]interface{}{
		"portfolio_id":  portfolioID,
		"total_value":   round2(total),
		"positions":     positions,
		"sector_weight": weights,
		"_metadata": map[string]interface{}{
			"source": a.Name() + ":" + rc.PricingPackID,
		},
	}, nil
}

func portfolioWindow(args map[string]interface{}) (string, int, error) {
	portfolioID, ok := args["portfolio_id"].(string)
	if !ok || portfolioID == "" {
		return "", 0, core.NewError(core.KindValidationFailure, "metrics",
			"portfolio_id is required")
	}
	window := 0
	switch v := args["window"].(type) {
	case int64:
		window = int(v)
	case float64:
		window = int(v)
	case nil:
	default:
		return "", 0, core.NewError(core.KindValidationFailure, "metrics",
			fmt.Sprintf("window must be an integer, got %T", v))
	}
	return portfolioID, window, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

var _ core.Agent = (*FinancialAnalyst)(nil)
