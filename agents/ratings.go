package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonlabs/patternflow/core"
)

// factorProfile holds the per-symbol factor inputs the ratings model scores.
// Values are normalized to [0,1] at ingestion.
type factorProfile struct {
	Quality   float64
	Value     float64
	Momentum  float64
	Stability float64
}

// ratingFactors is the static factor snapshot. A production deployment would
// load this from the pricing pack's reference data.
var ratingFactors = map[string]factorProfile{
	"AAPL": {Quality: 0.92, Value: 0.35, Momentum: 0.71, Stability: 0.80},
	"MSFT": {Quality: 0.94, Value: 0.30, Momentum: 0.78, Stability: 0.85},
	"JNJ":  {Quality: 0.85, Value: 0.62, Momentum: 0.41, Stability: 0.90},
	"JPM":  {Quality: 0.78, Value: 0.66, Momentum: 0.69, Stability: 0.72},
	"XOM":  {Quality: 0.70, Value: 0.74, Momentum: 0.52, Stability: 0.61},
}

// RatingsAgent scores a single security on a 0..10 composite of quality,
// value, momentum, and stability factors.
type RatingsAgent struct {
	logger core.Logger
}

func NewRatingsAgent(logger core.Logger) *RatingsAgent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RatingsAgent{logger: logger}
}

func (a *RatingsAgent) Name() string { return "ratings" }

func (a *RatingsAgent) Capabilities() []core.Capability {
	return []core.Capability{{
		Name:                "ratings.score_security",
		Description:         "Composite factor rating for one security, 0 to 10",
		Tags:                []string{"ratings", "factors", "security"},
		TTLSeconds:          7200,
		RequiresPricingPack: true,
		Handler:             a.scoreSecurity,
	}}
}

func (a *RatingsAgent) scoreSecurity(_ context.Context, rc *core.RequestContext, args map[string]interface{}) (interface{}, error) {
	symbol, ok := args["symbol"].(string)
	if !ok || symbol == "" {
		return nil, core.NewError(core.KindValidationFailure, "ratings.score_security",
			"symbol is required")
	}
	symbol = strings.ToUpper(symbol)

	profile, ok := ratingFactors[symbol]
	if !ok {
		return nil, core.NewError(core.KindValidationFailure, "ratings.score_security",
			fmt.Sprintf("no factor data for %q", symbol))
	}

	composite := profile.Quality*0.35 + profile.Value*0.20 +
		profile.Momentum*0.25 + profile.Stability*0.20

	return map[string]interface{}{
		"symbol": symbol,
		"rating": round2(composite * 10),
		"factors": map[string]interface{}{
			"quality":   profile.Quality,
			"value":     profile.Value,
			"momentum":  profile.Momentum,
			"stability": profile.Stability,
		},
		"_metadata": map[string]interface{}{
			"source": a.Name() + ":" + rc.PricingPackID,
		},
	}, nil
}

var _ core.Agent = (*RatingsAgent)(nil)
