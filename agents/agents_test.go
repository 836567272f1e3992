package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/patternflow/core"
)

func TestDefaultsRegisterCleanly(t *testing.T) {
	registry := core.NewCapabilityRegistry(nil)
	for _, agent := range Defaults(NewStaticProvider(), "", nil) {
		require.NoError(t, registry.Register(agent), "agent %s", agent.Name())
	}
	assert.True(t, registry.Has("metrics.compute_twr"))
	assert.True(t, registry.Has("macro.regime_detect"))
	assert.True(t, registry.Has("narrative.summarize"))
	assert.Len(t, registry.ListAgents(), 8)
}

func TestRatingsScoreSecurity(t *testing.T) {
	agent := NewRatingsAgent(nil)
	handler := capability(t, agent, "ratings.score_security").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{"symbol": "aapl"})
	require.NoError(t, err)
	result := raw.(map[string]interface{})
	assert.Equal(t, "AAPL", result["symbol"])
	rating := result["rating"].(float64)
	assert.GreaterOrEqual(t, rating, 0.0)
	assert.LessOrEqual(t, rating, 10.0)

	_, err = handler(context.Background(), testRC(), map[string]interface{}{"symbol": "ZZZZ"})
	assert.Equal(t, core.KindValidationFailure, core.KindOf(err))
}

func TestOptimizerRebalanceEqualWeight(t *testing.T) {
	agent := NewOptimizerAgent(NewStaticProvider(), nil)
	handler := capability(t, agent, "optimizer.rebalance").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{"portfolio_id": "demo"})
	require.NoError(t, err)
	result := raw.(map[string]interface{})

	// Technology is heavily overweight in the demo portfolio against an
	// equal-weight target, so at least one sell must be proposed.
	trades := result["trades"].([]map[string]interface{})
	require.NotEmpty(t, trades)
	var soldTech bool
	for _, trade := range trades {
		if trade["sector"] == "technology" && trade["action"] == "sell" {
			soldTech = true
		}
		assert.Greater(t, trade["amount"].(float64), 0.0)
	}
	assert.True(t, soldTech)
	assert.Greater(t, result["max_drift"].(float64), 0.02)
}

func TestOptimizerRebalanceExplicitTargets(t *testing.T) {
	agent := NewOptimizerAgent(NewStaticProvider(), nil)
	handler := capability(t, agent, "optimizer.rebalance").Handler

	_, err := handler(context.Background(), testRC(), map[string]interface{}{
		"portfolio_id": "demo",
		"targets":      map[string]interface{}{"technology": 0.5, "healthcare": 0.3},
	})
	assert.Equal(t, core.KindValidationFailure, core.KindOf(err), "targets not summing to 1 must fail")
}

func TestChartsRenderSpec(t *testing.T) {
	agent := NewChartsAgent(nil)
	handler := capability(t, agent, "charts.render_spec").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{
		"kind":  "bar",
		"title": "Sector weights",
		"data":  map[string]interface{}{"technology": 0.5},
	})
	require.NoError(t, err)
	result := raw.(map[string]interface{})
	assert.Equal(t, "bar", result["kind"])
	assert.Equal(t, "Sector weights", result["title"])

	_, err = handler(context.Background(), testRC(), map[string]interface{}{
		"kind": "hologram",
		"data": map[string]interface{}{},
	})
	assert.Equal(t, core.KindValidationFailure, core.KindOf(err))
}

func TestReportsAssemble(t *testing.T) {
	agent := NewReportsAgent(nil)
	handler := capability(t, agent, "reports.assemble").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{
		"title": "Monthly Review",
		"sections": []interface{}{
			map[string]interface{}{"heading": "Performance", "body": "up"},
			map[string]interface{}{"body": "unchanged"},
		},
	})
	require.NoError(t, err)
	result := raw.(map[string]interface{})
	assert.Equal(t, "Monthly Review", result["title"])
	assert.Equal(t, "PP_2025-01-15", result["pricing_pack"])

	sections := result["sections"].([]map[string]interface{})
	require.Len(t, sections, 2)
	assert.Equal(t, "Performance", sections[0]["heading"])
	assert.Equal(t, "Section 2", sections[1]["heading"])

	_, err = handler(context.Background(), testRC(), map[string]interface{}{"sections": []interface{}{}})
	assert.Equal(t, core.KindValidationFailure, core.KindOf(err))
}

func TestAlertsEvaluate(t *testing.T) {
	agent := NewAlertsAgent(nil)
	handler := capability(t, agent, "alerts.evaluate").Handler

	raw, err := handler(context.Background(), testRC(), map[string]interface{}{
		"rules": []interface{}{
			map[string]interface{}{"metric": "max_drift", "op": "gt", "value": 0.08, "threshold": 0.05},
			map[string]interface{}{"metric": "sharpe", "op": "lt", "value": 1.2, "threshold": 0.5},
		},
	})
	require.NoError(t, err)
	result := raw.(map[string]interface{})
	assert.Equal(t, 2, result["evaluated"])
	assert.True(t, result["any_fired"].(bool))

	triggered := result["triggered"].([]map[string]interface{})
	require.Len(t, triggered, 1)
	assert.Equal(t, "max_drift", triggered[0]["metric"])

	_, err = handler(context.Background(), testRC(), map[string]interface{}{
		"rules": []interface{}{
			map[string]interface{}{"metric": "x", "op": "between", "value": 1.0, "threshold": 2.0},
		},
	})
	assert.Equal(t, core.KindValidationFailure, core.KindOf(err))
}
