package orchestration

import (
	"sort"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

// Trace entry statuses. "ok (cached)" distinguishes memoized results so a
// reproducibility audit can tell a hit from a fresh invocation.
const (
	StatusOK        = "ok"
	StatusCached    = "ok (cached)"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusFallback  = "fallback"
	StatusCancelled = "cancelled"
)

// TraceEntry records one step's execution: status, timing, provenance, and
// the retry count. Entries appear in declaration order regardless of
// completion order inside a parallel group.
type TraceEntry struct {
	Step       string    `json:"step"`
	Capability string    `json:"capability"`
	Agent      string    `json:"agent,omitempty"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Source     string    `json:"source,omitempty"`
	AsOf       string    `json:"asof,omitempty"`
	TTLSeconds int       `json:"ttl,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ProvenanceSummary aggregates per-step provenance for display and audit:
// which pack and ledger commit anchored the run, every source touched, and
// how stale the oldest contributing data is.
type ProvenanceSummary struct {
	PricingPackID           string   `json:"pricing_pack_id"`
	LedgerCommitHash        string   `json:"ledger_commit_hash"`
	Sources                 []string `json:"sources"`
	AgentsUsed              []string `json:"agents_used"`
	CapabilitiesUsed        []string `json:"capabilities_used"`
	OldestAsOf              string   `json:"oldest_asof,omitempty"`
	OverallStalenessSeconds int64    `json:"overall_staleness_seconds"`
}

// summarizeProvenance folds the trace into a ProvenanceSummary. Staleness is
// measured per step as now minus the step's as-of date; the overall figure
// is the maximum, i.e. the oldest data that contributed.
func summarizeProvenance(rc *core.RequestContext, trace []TraceEntry, now time.Time) ProvenanceSummary {
	summary := ProvenanceSummary{
		PricingPackID:    rc.PricingPackID,
		LedgerCommitHash: rc.LedgerCommitHash,
	}

	sources := make(map[string]bool)
	agents := make(map[string]bool)
	capabilities := make(map[string]bool)

	for _, entry := range trace {
		if entry.Status != StatusOK && entry.Status != StatusCached {
			continue
		}
		if entry.Source != "" {
			sources[entry.Source] = true
		}
		if entry.Agent != "" {
			agents[entry.Agent] = true
		}
		capabilities[entry.Capability] = true

		if entry.AsOf == "" {
			continue
		}
		asof, err := time.Parse("2006-01-02", entry.AsOf)
		if err != nil {
			continue
		}
		staleness := int64(now.Sub(asof) / time.Second)
		if staleness > summary.OverallStalenessSeconds {
			summary.OverallStalenessSeconds = staleness
			summary.OldestAsOf = entry.AsOf
		}
	}

	summary.Sources = sortedKeys(sources)
	summary.AgentsUsed = sortedKeys(agents)
	summary.CapabilitiesUsed = sortedKeys(capabilities)
	return summary
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
