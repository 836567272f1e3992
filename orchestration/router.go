package orchestration

import (
	"fmt"

	"github.com/halcyonlabs/patternflow/core"
)

// IntentRouter maps a free-text query to a pattern id. Implementations are
// pure functions of the pattern index plus the query; a miss is always
// surfaced as UnresolvedIntent, never silently routed to a fallback pattern.
//
// The keyword matcher ships by default. An embedding-based matcher attaches
// behind the same interface.
type IntentRouter interface {
	Route(query string) (string, error)
}

// KeywordRouter scores patterns by weighted token overlap between the query
// and the loader's intent index. Deterministic: equal scores tie-break on
// the lexicographically smaller pattern id.
type KeywordRouter struct {
	loader    *Loader
	threshold int
	logger    core.Logger
}

// NewKeywordRouter creates a router with a minimum-score floor. Queries
// scoring below the floor against every pattern resolve to nothing.
func NewKeywordRouter(loader *Loader, threshold int, logger core.Logger) *KeywordRouter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &KeywordRouter{loader: loader, threshold: threshold, logger: logger}
}

// Route picks the top-scoring pattern id for a query.
func (r *KeywordRouter) Route(query string) (string, error) {
	tokens := tokenize(query)
	index := r.loader.snapshot().tokens

	scores := make(map[string]int)
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		for patternID, weight := range index[tok] {
			scores[patternID] += weight
		}
	}

	best := ""
	bestScore := 0
	for patternID, score := range scores {
		if score > bestScore || (score == bestScore && score > 0 && patternID < best) {
			best = patternID
			bestScore = score
		}
	}

	if bestScore < r.threshold {
		return "", &core.Error{
			Kind:    core.KindUnresolvedIntent,
			Op:      "router.route",
			Message: fmt.Sprintf("no pattern scored at or above %d for the query", r.threshold),
		}
	}

	r.logger.Debug("Intent routed", map[string]interface{}{
		"operation": "intent_route",
		"pattern":   best,
		"score":     bestScore,
	})
	return best, nil
}

var _ IntentRouter = (*KeywordRouter)(nil)
