package packs

import (
	"context"
	"errors"
	"testing"
)

func TestValidatePackID(t *testing.T) {
	valid := []string{"PP_2025-01-15", "PP_2025-01-15_D1", "PP_1999-12-31_D12"}
	for _, id := range valid {
		if err := ValidatePackID(id); err != nil {
			t.Errorf("ValidatePackID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"PP_latest", "PP_2025-1-5", "pp_2025-01-15", "PP_2025-01-15_D", "PP_2025-01-15-D1", "", "2025-01-15"}
	for _, id := range invalid {
		if err := ValidatePackID(id); !errors.Is(err, ErrInvalidPackID) {
			t.Errorf("ValidatePackID(%q) = %v, want ErrInvalidPackID", id, err)
		}
	}
}

func TestNextSupersedeID(t *testing.T) {
	cases := map[string]string{
		"PP_2025-01-15":    "PP_2025-01-15_D1",
		"PP_2025-01-15_D1": "PP_2025-01-15_D2",
		"PP_2025-01-15_D9": "PP_2025-01-15_D10",
	}
	for in, want := range cases {
		if got := NextSupersedeID(in); got != want {
			t.Errorf("NextSupersedeID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	created, err := store.CreatePack(ctx, "2025-01-15", []string{"custodian_a", "bloomberg"}, "hash-v0")
	if err != nil {
		t.Fatalf("CreatePack failed: %v", err)
	}
	if created.ID != "PP_2025-01-15" {
		t.Errorf("unexpected pack id %q", created.ID)
	}
	if !created.IsFresh || created.SupersededBy != "" {
		t.Error("new pack must be fresh and non-superseded")
	}

	got, err := store.GetPack(ctx, "PP_2025-01-15")
	if err != nil {
		t.Fatalf("GetPack failed: %v", err)
	}
	if got.Hash != "hash-v0" {
		t.Errorf("hash = %q, want hash-v0", got.Hash)
	}

	latest, err := store.GetLatest(ctx, "2025-01-15")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.ID != "PP_2025-01-15" {
		t.Errorf("latest = %q", latest.ID)
	}

	if _, err := store.GetPack(ctx, "PP_2024-01-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing pack: got %v, want ErrNotFound", err)
	}
	if _, err := store.GetLatest(ctx, "2024-01-01"); !errors.Is(err, ErrNoPackForDate) {
		t.Errorf("missing date: got %v, want ErrNoPackForDate", err)
	}
	if _, err := store.GetPack(ctx, "PP_latest"); !errors.Is(err, ErrInvalidPackID) {
		t.Errorf("PP_latest: got %v, want ErrInvalidPackID", err)
	}
}

func TestMemoryStoreRejectsDuplicateDate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	if _, err := store.CreatePack(ctx, "2025-01-15", nil, "hash-v0"); err != nil {
		t.Fatalf("CreatePack failed: %v", err)
	}
	if _, err := store.CreatePack(ctx, "2025-01-15", nil, "hash-v1"); !errors.Is(err, ErrDuplicatePack) {
		t.Errorf("duplicate date: got %v, want ErrDuplicatePack", err)
	}
}

func TestMemoryStoreSupersedeChain(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	if _, err := store.CreatePack(ctx, "2025-01-15", []string{"custodian_a"}, "hash-v0"); err != nil {
		t.Fatalf("CreatePack failed: %v", err)
	}

	old, restated, err := store.Supersede(ctx, "PP_2025-01-15", NewPackData{Hash: "hash-v1", ReconciliationPassed: true}, "custodian restatement")
	if err != nil {
		t.Fatalf("Supersede failed: %v", err)
	}
	if old.SupersededBy != "PP_2025-01-15_D1" {
		t.Errorf("old.SupersededBy = %q", old.SupersededBy)
	}
	if restated.ID != "PP_2025-01-15_D1" {
		t.Errorf("restated id = %q", restated.ID)
	}
	if len(restated.Sources) != 1 || restated.Sources[0] != "custodian_a" {
		t.Errorf("restated pack should inherit sources, got %v", restated.Sources)
	}

	// Immutability: every original field of the old pack except the
	// supersede link is untouched.
	reread, err := store.GetPack(ctx, "PP_2025-01-15")
	if err != nil {
		t.Fatalf("GetPack failed: %v", err)
	}
	if reread.Hash != "hash-v0" || reread.AsOfDate != "2025-01-15" || !reread.IsFresh {
		t.Error("supersede must not mutate the old pack beyond SupersededBy")
	}

	// GetLatest now resolves to the terminal.
	latest, err := store.GetLatest(ctx, "2025-01-15")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.ID != "PP_2025-01-15_D1" {
		t.Errorf("latest = %q, want PP_2025-01-15_D1", latest.ID)
	}

	// Second restatement extends the chain to _D2.
	if _, _, err := store.Supersede(ctx, "PP_2025-01-15_D1", NewPackData{Hash: "hash-v2"}, "late corporate action"); err != nil {
		t.Fatalf("second Supersede failed: %v", err)
	}
	chain, err := store.ListChain(ctx, "PP_2025-01-15")
	if err != nil {
		t.Fatalf("ListChain failed: %v", err)
	}
	want := []string{"PP_2025-01-15", "PP_2025-01-15_D1", "PP_2025-01-15_D2"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain = %v, want %v", chain, want)
		}
	}
}

func TestMemoryStoreSupersedeGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	if _, err := store.CreatePack(ctx, "2025-01-15", nil, "hash-v0"); err != nil {
		t.Fatalf("CreatePack failed: %v", err)
	}

	// Identical hash is a no-op restatement and must be rejected.
	if _, _, err := store.Supersede(ctx, "PP_2025-01-15", NewPackData{Hash: "hash-v0"}, "noop"); !errors.Is(err, ErrIdenticalHash) {
		t.Errorf("identical hash: got %v, want ErrIdenticalHash", err)
	}

	if _, _, err := store.Supersede(ctx, "PP_2025-01-15", NewPackData{Hash: "hash-v1"}, "restate"); err != nil {
		t.Fatalf("Supersede failed: %v", err)
	}

	// A pack supersedes at most once.
	if _, _, err := store.Supersede(ctx, "PP_2025-01-15", NewPackData{Hash: "hash-v2"}, "again"); !errors.Is(err, ErrAlreadySuperseded) {
		t.Errorf("double supersede: got %v, want ErrAlreadySuperseded", err)
	}

	if _, _, err := store.Supersede(ctx, "PP_2099-01-01", NewPackData{Hash: "x"}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing pack: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreAuditLog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	if _, err := store.CreatePack(ctx, "2025-01-15", nil, "hash-v0"); err != nil {
		t.Fatalf("CreatePack failed: %v", err)
	}
	if _, _, err := store.Supersede(ctx, "PP_2025-01-15", NewPackData{Hash: "hash-v1"}, "custodian restatement"); err != nil {
		t.Fatalf("Supersede failed: %v", err)
	}
	if _, _, err := store.Supersede(ctx, "PP_2025-01-15_D1", NewPackData{Hash: "hash-v2"}, "fx correction"); err != nil {
		t.Fatalf("Supersede failed: %v", err)
	}

	audit, err := store.AuditLog(ctx)
	if err != nil {
		t.Fatalf("AuditLog failed: %v", err)
	}
	if len(audit) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audit))
	}
	if audit[0].OldPackID != "PP_2025-01-15" || audit[0].NewPackID != "PP_2025-01-15_D1" || audit[0].Reason != "custodian restatement" {
		t.Errorf("unexpected first audit entry: %+v", audit[0])
	}
	if audit[1].NewPackID != "PP_2025-01-15_D2" {
		t.Errorf("unexpected second audit entry: %+v", audit[1])
	}
}

func TestMemoryStoreClonesResults(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	if _, err := store.CreatePack(ctx, "2025-01-15", []string{"custodian_a"}, "hash-v0"); err != nil {
		t.Fatalf("CreatePack failed: %v", err)
	}
	got, err := store.GetPack(ctx, "PP_2025-01-15")
	if err != nil {
		t.Fatalf("GetPack failed: %v", err)
	}
	got.Hash = "tampered"
	got.Sources[0] = "tampered"

	again, err := store.GetPack(ctx, "PP_2025-01-15")
	if err != nil {
		t.Fatalf("GetPack failed: %v", err)
	}
	if again.Hash != "hash-v0" || again.Sources[0] != "custodian_a" {
		t.Error("store must return copies, not internal state")
	}
}
