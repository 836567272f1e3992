package agents

import (
	"context"
	"fmt"

	"github.com/halcyonlabs/patternflow/core"
)

var chartKinds = map[string]bool{
	"line": true,
	"bar":  true,
	"pie":  true,
	"area": true,
}

// ChartsAgent emits renderer-neutral chart specifications. It never draws
// anything; the display layer interprets the spec.
type ChartsAgent struct {
	logger core.Logger
}

func NewChartsAgent(logger core.Logger) *ChartsAgent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ChartsAgent{logger: logger}
}

func (a *ChartsAgent) Name() string { return "charts" }

func (a *ChartsAgent) Capabilities() []core.Capability {
	return []core.Capability{{
		Name:        "charts.render_spec",
		Description: "Build a renderer-neutral chart spec from series data",
		Tags:        []string{"charts", "visualization"},
		Handler:     a.renderSpec,
	}}
}

func (a *ChartsAgent) renderSpec(_ context.Context, _ *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	kind, _ := args["kind"].(string)
	if kind == "" {
		kind = "line"
	}
	if !chartKinds[kind] {
		return nil, core.NewError(core.KindValidationFailure, "charts.render_spec",
			fmt.Sprintf("unsupported chart kind %q", kind))
	}

	title, _ := args["title"].(string)
	data := args["data"]
	if data == nil {
		return nil, core.NewError(core.KindValidationFailure, "charts.render_spec",
			"data is required")
	}

	spec := map[string]interface{}{
		"kind":  kind,
		"title": title,
		"data":  data,
	}
	if axes, ok := args["axes"].(map[string]interface{}); ok {
		spec["axes"] = axes
	}
	return spec, nil
}

var _ core.Agent = (*ChartsAgent)(nil)
