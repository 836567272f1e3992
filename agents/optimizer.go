package agents

import (
	"context"
	"math"
	"sort"

	"github.com/halcyonlabs/patternflow/core"
)

// OptimizerAgent proposes rebalancing trades that move a portfolio toward
// target sector weights. The default target is equal weight across the
// sectors currently held; callers can pass explicit targets.
type OptimizerAgent struct {
	provider MarketDataProvider
	logger   core.Logger
}

func NewOptimizerAgent(provider MarketDataProvider, logger core.Logger) *OptimizerAgent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &OptimizerAgent{provider: provider, logger: logger}
}

func (a *OptimizerAgent) Name() string { return "optimizer" }

func (a *OptimizerAgent) Capabilities() []core.Capability {
	return []core.Capability{{
		Name:                "optimizer.rebalance",
		Description:         "Sector-level rebalancing proposal toward target weights",
		Tags:                []string{"optimizer", "rebalance", "allocation"},
		TTLSeconds:          1800,
		RequiresPricingPack: true,
		Handler:             a.rebalance,
	}}
}

func (a *OptimizerAgent) rebalance(ctx context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	portfolioID, ok := args["portfolio_id"].(string)
	if !ok || portfolioID == "" {
		return nil, core.NewError(core.KindValidationFailure, "optimizer.rebalance",
			"portfolio_id is required")
	}

	holdings, err := a.provider.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	total := 0.0
	current := map[string]float64{}
	for _, h := range holdings {
		value := h.Quantity * h.Price
		total += value
		current[h.Sector] += value
	}
	for sector := range current {
		current[sector] /= total
	}

	targets, err := targetWeights(args, current)
	if err != nil {
		return nil, err
	}

	// Drift tolerance below which a sector is left alone.
	tolerance := 0.02
	if v, ok := args["tolerance"].(float64); ok && v > 0 {
		tolerance = v
	}

	sectors := make([]string, 0, len(targets))
	for sector := range targets {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	trades := make([]map[string]interface{}, 0, len(sectors))
	maxDrift := 0.0
	for _, sector := range sectors {
		drift := current[sector] - targets[sector]
		if math.Abs(drift) > maxDrift {
			maxDrift = math.Abs(drift)
		}
		if math.Abs(drift) < tolerance {
			continue
		}
		action := "buy"
		if drift > 0 {
			action = "sell"
		}
		trades = append(trades, map[string]interface{}{
			"sector": sector,
			"action": action,
			"amount": round2(math.Abs(drift) * total),
		})
	}

	return map[string]interface{}{
		"portfolio_id": portfolioID,
		"total_value":  round2(total),
		"max_drift":    round6(maxDrift),
		"trades":       trades,
		"_metadata": map[string]interface{}{
			"source": a.Name() + ":" + rc.PricingPackID,
		},
	}, nil
}

// targetWeights reads explicit targets from args or defaults to equal weight
// over the sectors currently held. Explicit targets must sum to roughly 1.
func targetWeights(args map[string]interface{}, current map[string]float64) (map[string]float64, error) {
	raw, ok := args["targets"].(map[string]interface{})
	if !ok {
		equal := 1.0 / float64(len(current))
		targets := make(map[string]float64, len(current))
		for sector := range current {
			targets[sector] = equal
		}
		return targets, nil
	}

	targets := make(map[string]float64, len(raw))
	sum := 0.0
	for sector, v := range raw {
		weight, ok := v.(float64)
		if !ok || weight < 0 {
			return nil, core.NewError(core.KindValidationFailure, "optimizer.rebalance",
				"target weights must be non-negative numbers")
		}
		targets[sector] = weight
		sum += weight
	}
	if math.Abs(sum-1.0) > 0.01 {
		return nil, core.NewError(core.KindValidationFailure, "optimizer.rebalance",
			"target weights must sum to 1")
	}
	return targets, nil
}

var _ core.Agent = (*OptimizerAgent)(nil)
