package orchestration

import (
	"context"
	"testing"
	"time"
)

func TestFingerprintDeterminism(t *testing.T) {
	args := map[string]interface{}{"x": "hello", "n": float64(3)}
	a, err := Fingerprint("p", "1.0.0", "s1", "test.echo", args, "PP_2025-01-01", "abc")
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := Fingerprint("p", "1.0.0", "s1", "test.echo", map[string]interface{}{"n": float64(3), "x": "hello"}, "PP_2025-01-01", "abc")
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if a != b {
		t.Error("equal tuples must fingerprint equally regardless of map order")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	args := map[string]interface{}{"x": "hello"}
	base, _ := Fingerprint("p", "1.0.0", "s1", "test.echo", args, "PP_2025-01-01", "abc")

	variants := []struct {
		name string
		fp   func() (string, error)
	}{
		{"pack id", func() (string, error) {
			return Fingerprint("p", "1.0.0", "s1", "test.echo", args, "PP_2025-01-01_D1", "abc")
		}},
		{"ledger hash", func() (string, error) {
			return Fingerprint("p", "1.0.0", "s1", "test.echo", args, "PP_2025-01-01", "def")
		}},
		{"version", func() (string, error) {
			return Fingerprint("p", "1.0.1", "s1", "test.echo", args, "PP_2025-01-01", "abc")
		}},
		{"args", func() (string, error) {
			return Fingerprint("p", "1.0.0", "s1", "test.echo", map[string]interface{}{"x": "bye"}, "PP_2025-01-01", "abc")
		}},
	}
	for _, v := range variants {
		fp, err := v.fp()
		if err != nil {
			t.Fatalf("%s: %v", v.name, err)
		}
		if fp == base {
			t.Errorf("changing %s must change the fingerprint", v.name)
		}
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10)
	now := time.Now()
	c.clock = func() time.Time { return now }

	result := &StepResult{Value: "v", Source: "test:PP_2025-01-01"}
	c.Set(ctx, "fp1", result, time.Hour)

	got, ok := c.Get(ctx, "fp1")
	if !ok || got.Value != "v" {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(ctx, "fp1"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestMemoryCacheZeroTTLBypasses(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10)
	c.Set(ctx, "fp1", &StepResult{Value: "v"}, 0)
	if _, ok := c.Get(ctx, "fp1"); ok {
		t.Error("ttl 0 must bypass the cache")
	}
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)

	c.Set(ctx, "a", &StepResult{Value: "a"}, time.Hour)
	c.Set(ctx, "b", &StepResult{Value: "b"}, time.Hour)
	c.Get(ctx, "a") // a is now most recently used
	c.Set(ctx, "c", &StepResult{Value: "c"}, time.Hour)

	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Error("recently used entry should survive")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Error("new entry should be present")
	}

	stats := c.Stats()
	if stats.Evictions != 1 || stats.Size != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
