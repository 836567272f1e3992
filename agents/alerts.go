package agents

import (
	"context"
	"fmt"

	"github.com/halcyonlabs/patternflow/core"
)

// AlertsAgent evaluates threshold rules against metric values produced by
// earlier steps. Rules are declarative: metric name, comparison operator,
// threshold.
type AlertsAgent struct {
	logger core.Logger
}

func NewAlertsAgent(logger core.Logger) *AlertsAgent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &AlertsAgent{logger: logger}
}

func (a *AlertsAgent) Name() string { return "alerts" }

func (a *AlertsAgent) Capabilities() []core.Capability {
	return []core.Capability{{
		Name:        "alerts.evaluate",
		Description: "Evaluate threshold rules against metric values",
		Tags:        []string{"alerts", "thresholds"},
		Handler:     a.evaluate,
	}}
}

func (a *AlertsAgent) evaluate(_ context.Context, _ *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	rawRules, ok := args["rules"].([]interface{})
	if !ok || len(rawRules) == 0 {
		return nil, core.NewError(core.KindValidationFailure, "alerts.evaluate",
			"rules must be a non-empty array")
	}

	triggered := make([]map[string]interface{}, 0)
	evaluated := 0
	for i, raw := range rawRules {
		rule, ok := raw.(map[string]interface{})
		if !ok {
			return nil, core.NewError(core.KindValidationFailure, "alerts.evaluate",
				fmt.Sprintf("rule %d is not an object", i))
		}
		metric, _ := rule["metric"].(string)
		op, _ := rule["op"].(string)
		value, okV := rule["value"].(float64)
		threshold, okT := rule["threshold"].(float64)
		if metric == "" || !okV || !okT {
			return nil, core.NewError(core.KindValidationFailure, "alerts.evaluate",
				fmt.Sprintf("rule %d needs metric, value, and threshold", i))
		}

		fired, err := compare(op, value, threshold)
		if err != nil {
			return nil, core.WrapError(core.KindValidationFailure, "alerts.evaluate", err)
		}
		evaluated++
		if fired {
			triggered = append(triggered, map[string]interface{}{
				"metric":    metric,
				"op":        op,
				"value":     value,
				"threshold": threshold,
			})
		}
	}

	return map[string]interface{}{
		"evaluated": evaluated,
		"triggered": triggered,
		"any_fired": len(triggered) > 0,
	}, nil
}

func compare(op string, value, threshold float64) (bool, error) {
	switch op {
	case "gt", ">":
		return value > threshold, nil
	case "gte", ">=":
		return value >= threshold, nil
	case "lt", "<":
		return value < threshold, nil
	case "lte", "<=":
		return value <= threshold, nil
	case "eq", "==":
		return value == threshold, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

var _ core.Agent = (*AlertsAgent)(nil)
