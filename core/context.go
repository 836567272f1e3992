package core

import (
	"time"

	"github.com/google/uuid"
)

// RequestContext carries the immutable per-request identity: who asked, which
// portfolio, as of when, and against which pricing pack and ledger commit.
// It is created once at request entry and never mutated afterwards; every
// capability invocation receives the same values.
//
// PricingPackID is sacred: computations that require a pack fail with
// MissingPricingPack when it is empty, they never fall back to "latest".
type RequestContext struct {
	RequestID        string        `json:"request_id"`
	UserID           string        `json:"user_id"`
	PortfolioID      string        `json:"portfolio_id"`
	AsOfDate         string        `json:"asof_date"` // YYYY-MM-DD
	PricingPackID    string        `json:"pricing_pack_id"`
	LedgerCommitHash string        `json:"ledger_commit_hash"`
	CorrelationID    string        `json:"correlation_id"`
	Timeout          time.Duration `json:"timeout"`
	StartedAt        time.Time     `json:"started_at"`
}

// ContextOverrides are the caller-supplied fields of a request context.
// Anything left empty falls back to a generated or configured default.
type ContextOverrides struct {
	UserID           string `json:"user_id,omitempty"`
	PortfolioID      string `json:"portfolio_id,omitempty"`
	AsOfDate         string `json:"asof_date,omitempty"`
	PricingPackID    string `json:"pricing_pack_id,omitempty"`
	LedgerCommitHash string `json:"ledger_commit_hash,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
	TimeoutSeconds   int    `json:"timeout_seconds,omitempty"`
}

// NewRequestContext builds a context from overrides, generating request and
// correlation ids and stamping the start time.
func NewRequestContext(ov ContextOverrides, defaultTimeout time.Duration) *RequestContext {
	rc := &RequestContext{
		RequestID:        uuid.New().String(),
		UserID:           ov.UserID,
		PortfolioID:      ov.PortfolioID,
		AsOfDate:         ov.AsOfDate,
		PricingPackID:    ov.PricingPackID,
		LedgerCommitHash: ov.LedgerCommitHash,
		CorrelationID:    ov.CorrelationID,
		Timeout:          defaultTimeout,
		StartedAt:        time.Now(),
	}
	if rc.CorrelationID == "" {
		rc.CorrelationID = rc.RequestID
	}
	if ov.TimeoutSeconds > 0 {
		rc.Timeout = time.Duration(ov.TimeoutSeconds) * time.Second
	}
	if rc.AsOfDate == "" {
		rc.AsOfDate = time.Now().UTC().Format("2006-01-02")
	}
	return rc
}

// Deadline returns the wall-clock deadline for the request, or zero time if
// no timeout was set.
func (rc *RequestContext) Deadline() time.Time {
	if rc.Timeout <= 0 {
		return time.Time{}
	}
	return rc.StartedAt.Add(rc.Timeout)
}

// Remaining returns how much of the request budget is left. Negative values
// mean the deadline has passed.
func (rc *RequestContext) Remaining() time.Duration {
	if rc.Timeout <= 0 {
		return time.Duration(1<<62 - 1)
	}
	return time.Until(rc.Deadline())
}

// TemplateMap renders the context as the "ctx" root for template resolution.
// Empty pack and ledger fields resolve to nil so the resolver can enforce the
// required-context policy.
func (rc *RequestContext) TemplateMap() map[string]interface{} {
	m := map[string]interface{}{
		"request_id":     rc.RequestID,
		"user_id":        rc.UserID,
		"portfolio_id":   rc.PortfolioID,
		"asof_date":      rc.AsOfDate,
		"correlation_id": rc.CorrelationID,
	}
	if rc.PricingPackID != "" {
		m["pricing_pack_id"] = rc.PricingPackID
	}
	if rc.LedgerCommitHash != "" {
		m["ledger_commit_hash"] = rc.LedgerCommitHash
	}
	return m
}
