package packs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

// MemoryStore is the in-process Store used in tests and single-node
// deployments without Redis. All operations run under one mutex; supersede
// is trivially linearizable.
type MemoryStore struct {
	mu     sync.RWMutex
	packs  map[string]*Pack
	byDate map[string]string // asof date -> terminal (non-superseded) pack id
	audit  []AuditEntry
	logger core.Logger
}

// NewMemoryStore creates an empty in-memory pack store.
func NewMemoryStore(logger core.Logger) *MemoryStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MemoryStore{
		packs:  make(map[string]*Pack),
		byDate: make(map[string]string),
		logger: logger,
	}
}

// GetPack returns the pack by id.
func (s *MemoryStore) GetPack(ctx context.Context, packID string) (*Pack, error) {
	if err := ValidatePackID(packID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packs[packID]
	if !ok {
		return nil, fmt.Errorf("pack %s: %w", packID, ErrNotFound)
	}
	return p.clone(), nil
}

// GetLatest returns the terminal pack for an as-of date.
func (s *MemoryStore) GetLatest(ctx context.Context, asofDate string) (*Pack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDate[asofDate]
	if !ok {
		return nil, fmt.Errorf("date %s: %w", asofDate, ErrNoPackForDate)
	}
	return s.packs[id].clone(), nil
}

// CreatePack inserts a new D0 pack for a date.
func (s *MemoryStore) CreatePack(ctx context.Context, asofDate string, sources []string, hash string) (*Pack, error) {
	pack, err := NewPack(asofDate, sources, hash)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDate[asofDate]; exists {
		return nil, fmt.Errorf("date %s: %w", asofDate, ErrDuplicatePack)
	}
	if _, exists := s.packs[pack.ID]; exists {
		return nil, fmt.Errorf("pack %s: %w", pack.ID, ErrDuplicatePack)
	}
	s.packs[pack.ID] = pack
	s.byDate[asofDate] = pack.ID

	s.logger.Info("Pricing pack created", map[string]interface{}{
		"operation": "pack_create",
		"pack_id":   pack.ID,
		"asof_date": asofDate,
		"sources":   pack.Sources,
	})
	return pack.clone(), nil
}

// Supersede links old -> new and appends the audit entry, atomically under
// the store mutex. The only field of old that changes is SupersededBy.
func (s *MemoryStore) Supersede(ctx context.Context, oldPackID string, data NewPackData, reason string) (*Pack, *Pack, error) {
	if err := ValidatePackID(oldPackID); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.packs[oldPackID]
	if !ok {
		return nil, nil, fmt.Errorf("pack %s: %w", oldPackID, ErrNotFound)
	}
	if old.SupersededBy != "" {
		return nil, nil, fmt.Errorf("pack %s superseded by %s: %w", oldPackID, old.SupersededBy, ErrAlreadySuperseded)
	}
	if data.Hash == "" || data.Hash == old.Hash {
		return nil, nil, fmt.Errorf("pack %s: %w", oldPackID, ErrIdenticalHash)
	}

	newID := NextSupersedeID(oldPackID)
	if _, exists := s.packs[newID]; exists {
		return nil, nil, fmt.Errorf("pack %s: %w", newID, ErrDuplicatePack)
	}

	sources := make([]string, len(data.Sources))
	copy(sources, data.Sources)
	if len(sources) == 0 {
		sources = make([]string, len(old.Sources))
		copy(sources, old.Sources)
	}
	newPack := &Pack{
		ID:                   newID,
		AsOfDate:             old.AsOfDate,
		Hash:                 data.Hash,
		Sources:              sources,
		IsFresh:              true,
		CreatedAt:            time.Now().UTC(),
		ReconciliationPassed: data.ReconciliationPassed,
	}

	s.packs[newID] = newPack
	// SupersededBy is the only field of old that may change.
	old.SupersededBy = newID
	s.byDate[old.AsOfDate] = newID
	s.audit = append(s.audit, AuditEntry{
		OldPackID: oldPackID,
		NewPackID: newID,
		Reason:    reason,
		At:        time.Now().UTC(),
	})

	s.logger.Info("Pricing pack superseded", map[string]interface{}{
		"operation":   "pack_supersede",
		"old_pack_id": oldPackID,
		"new_pack_id": newID,
		"reason":      reason,
	})
	return old.clone(), newPack.clone(), nil
}

// ListChain walks supersede edges from root to the terminal pack.
func (s *MemoryStore) ListChain(ctx context.Context, rootPackID string) ([]string, error) {
	if err := ValidatePackID(rootPackID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []string
	id := rootPackID
	for id != "" {
		p, ok := s.packs[id]
		if !ok {
			if len(chain) == 0 {
				return nil, fmt.Errorf("pack %s: %w", rootPackID, ErrNotFound)
			}
			break
		}
		chain = append(chain, id)
		id = p.SupersededBy
	}
	return chain, nil
}

// AuditLog returns a copy of the supersede audit entries.
func (s *MemoryStore) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
