// Package packs implements the pricing pack discipline: an append-only
// registry of immutable pricing snapshots with explicit supersede chains.
// Every computation in the runtime anchors to a pack id, so re-executing a
// pattern against the same pack yields identical outputs.
package packs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for the store operations.
var (
	ErrNotFound          = errors.New("pricing pack not found")
	ErrNoPackForDate     = errors.New("no pricing pack for date")
	ErrDuplicatePack     = errors.New("non-superseded pack already exists for date")
	ErrAlreadySuperseded = errors.New("pack already superseded")
	ErrInvalidPackID     = errors.New("invalid pricing pack id")
	ErrIdenticalHash     = errors.New("superseding pack must have a different hash")
)

// packIDPattern matches PP_YYYY-MM-DD with an optional _Dn supersede suffix.
var packIDPattern = regexp.MustCompile(`^PP_\d{4}-\d{2}-\d{2}(_D\d+)?$`)

// Pack is an immutable snapshot of prices, FX, and corporate actions for one
// as-of date. Once created, no field other than SupersededBy ever changes;
// restatements produce a new _D1/_D2 pack, the original is never edited.
type Pack struct {
	ID                   string    `json:"id"`
	AsOfDate             string    `json:"asof_date"`
	Hash                 string    `json:"hash"`
	Sources              []string  `json:"sources"`
	SupersededBy         string    `json:"superseded_by,omitempty"`
	IsFresh              bool      `json:"is_fresh"`
	CreatedAt            time.Time `json:"created_at"`
	ReconciliationPassed bool      `json:"reconciliation_passed"`
}

// AuditEntry records one supersede in the append-only audit log.
type AuditEntry struct {
	OldPackID string    `json:"old_pack_id"`
	NewPackID string    `json:"new_pack_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// ValidatePackID rejects malformed ids. The literal "PP_latest" is rejected
// explicitly: there are no symbolic defaults, callers resolve latest through
// the store.
func ValidatePackID(id string) error {
	if id == "PP_latest" {
		return fmt.Errorf("%q: symbolic aliases are not pack ids: %w", id, ErrInvalidPackID)
	}
	if !packIDPattern.MatchString(id) {
		return fmt.Errorf("%q: %w", id, ErrInvalidPackID)
	}
	return nil
}

// PackIDForDate builds the D0 id for a date.
func PackIDForDate(asofDate string) string {
	return "PP_" + asofDate
}

// SupersedeDepth parses the _Dn suffix; a D0 pack has depth 0.
func SupersedeDepth(id string) int {
	idx := strings.LastIndex(id, "_D")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(id[idx+2:])
	if err != nil {
		return 0
	}
	return n
}

// NextSupersedeID builds the id of the pack that supersedes id.
func NextSupersedeID(id string) string {
	depth := SupersedeDepth(id)
	base := id
	if depth > 0 {
		base = id[:strings.LastIndex(id, "_D")]
	}
	return fmt.Sprintf("%s_D%d", base, depth+1)
}

// NewPack validates and constructs a fresh, non-superseded pack.
func NewPack(asofDate string, sources []string, hash string) (*Pack, error) {
	id := PackIDForDate(asofDate)
	if err := ValidatePackID(id); err != nil {
		return nil, fmt.Errorf("asof_date %q does not form a valid pack id: %w", asofDate, err)
	}
	if hash == "" {
		return nil, fmt.Errorf("pack %s: empty content hash: %w", id, ErrInvalidPackID)
	}
	srcs := make([]string, len(sources))
	copy(srcs, sources)
	return &Pack{
		ID:                   id,
		AsOfDate:             asofDate,
		Hash:                 hash,
		Sources:              srcs,
		IsFresh:              true,
		CreatedAt:            time.Now().UTC(),
		ReconciliationPassed: false,
	}, nil
}

// clone returns a copy so store internals never leak mutable state.
func (p *Pack) clone() *Pack {
	cp := *p
	cp.Sources = make([]string, len(p.Sources))
	copy(cp.Sources, p.Sources)
	return &cp
}
