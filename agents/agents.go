package agents

import "github.com/halcyonlabs/patternflow/core"

// Defaults builds the full built-in agent set over one provider. An empty
// anthropicKey leaves the narrative agent in offline mode.
func Defaults(provider MarketDataProvider, anthropicKey string, logger core.Logger) []core.Agent {
	return []core.Agent{
		NewFinancialAnalyst(provider, logger),
		NewMacroHound(provider, logger),
		NewRatingsAgent(logger),
		NewOptimizerAgent(provider, logger),
		NewChartsAgent(logger),
		NewReportsAgent(logger),
		NewAlertsAgent(logger),
		NewClaudeAgent(anthropicKey, logger),
	}
}
