package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

// ReportsAgent assembles upstream step outputs into one report document.
// Sections arrive already resolved by the orchestrator; the agent only
// orders and frames them.
type ReportsAgent struct {
	logger core.Logger
}

func NewReportsAgent(logger core.Logger) *ReportsAgent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ReportsAgent{logger: logger}
}

func (a *ReportsAgent) Name() string { return "reports" }

func (a *ReportsAgent) Capabilities() []core.Capability {
	return []core.Capability{{
		Name:        "reports.assemble",
		Description: "Assemble named sections into a single report document",
		Tags:        []string{"reports", "assembly"},
		Handler:     a.assemble,
	}}
}

func (a *ReportsAgent) assemble(_ context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	title, _ := args["title"].(string)
	if title == "" {
		title = "Analytics Report"
	}

	rawSections, ok := args["sections"].([]interface{})
	if !ok || len(rawSections) == 0 {
		return nil, core.NewError(core.KindValidationFailure, "reports.assemble",
			"sections must be a non-empty array")
	}

	sections := make([]map[string]interface{}, 0, len(rawSections))
	for i, raw := range rawSections {
		section, ok := raw.(map[string]interface{})
		if !ok {
			return nil, core.NewError(core.KindValidationFailure, "reports.assemble",
				fmt.Sprintf("section %d is not an object", i))
		}
		heading, _ := section["heading"].(string)
		if heading == "" {
			heading = fmt.Sprintf("Section %d", i+1)
		}
		sections = append(sections, map[string]interface{}{
			"heading": heading,
			"body":    section["body"],
		})
	}

	return map[string]interface{}{
		"title":        title,
		"as_of":        rc.AsOfDate,
		"pricing_pack": rc.PricingPackID,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"sections":     sections,
	}, nil
}

var _ core.Agent = (*ReportsAgent)(nil)
