package packs

import "context"

// NewPackData carries the fields of a superseding pack. The id is derived by
// the store from the superseded pack's id, never supplied by the caller.
type NewPackData struct {
	Hash                 string
	Sources              []string
	ReconciliationPassed bool
}

// Store is the pricing pack registry. Implementations must guarantee:
//
//   - immutability: no field of a stored pack other than SupersededBy ever
//     changes, and SupersededBy changes exactly once;
//   - linearizable supersede: after Supersede returns, every GetLatest call
//     observes the new terminal;
//   - acyclic chains: SupersededBy edges always terminate.
type Store interface {
	// GetPack returns the pack by id, or ErrNotFound.
	GetPack(ctx context.Context, packID string) (*Pack, error)

	// GetLatest returns the terminal, non-superseded pack for an as-of date,
	// or ErrNoPackForDate.
	GetLatest(ctx context.Context, asofDate string) (*Pack, error)

	// CreatePack inserts a new non-superseded D0 pack. ErrDuplicatePack when
	// a non-superseded pack already exists for the date.
	CreatePack(ctx context.Context, asofDate string, sources []string, hash string) (*Pack, error)

	// Supersede atomically inserts the restated pack, links the old pack to
	// it, and appends an audit entry. The old pack's other fields are
	// untouched. ErrAlreadySuperseded if the old pack is already superseded,
	// ErrIdenticalHash if the restated content hash did not change.
	Supersede(ctx context.Context, oldPackID string, data NewPackData, reason string) (old, new *Pack, err error)

	// ListChain walks supersede edges from the root pack, returning ids in
	// chain order ending at the terminal.
	ListChain(ctx context.Context, rootPackID string) ([]string, error)

	// AuditLog returns the append-only supersede audit entries, oldest first.
	AuditLog(ctx context.Context) ([]AuditEntry, error)
}
