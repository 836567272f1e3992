package orchestration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/halcyonlabs/patternflow/core"
)

// snapshot is one immutable generation of the pattern index. Readers load it
// through an atomic pointer; a reload builds a complete replacement and swaps
// it in only when every document validated.
type snapshot struct {
	byID   map[string]*Pattern
	hashes map[string]string // pattern id -> sha256 of source bytes
	// tokens is the inverted intent index: token -> pattern id -> weight.
	tokens map[string]map[string]int
}

// Loader reads, validates, and indexes pattern documents from a directory.
type Loader struct {
	dir      string
	maxSteps int
	caps     CapabilityChecker
	logger   core.Logger
	snap     atomic.Value // *snapshot
}

// NewLoader creates a loader for a pattern directory. Load must be called
// before the loader serves patterns.
func NewLoader(dir string, maxSteps int, caps CapabilityChecker, logger core.Logger) *Loader {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if maxSteps <= 0 {
		maxSteps = 100
	}
	l := &Loader{dir: dir, maxSteps: maxSteps, caps: caps, logger: logger}
	l.snap.Store(&snapshot{
		byID:   map[string]*Pattern{},
		hashes: map[string]string{},
		tokens: map[string]map[string]int{},
	})
	return l
}

// Load enumerates the pattern directory, validating every .json document.
// Any failure rejects the whole load: the previous snapshot stays in place
// and the error identifies the file and pattern. Successful loads swap the
// index atomically, so in-flight executions keep the generation they
// started with.
func (l *Loader) Load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("reading pattern directory %s: %w", l.dir, err)
	}

	next := &snapshot{
		byID:   make(map[string]*Pattern),
		hashes: make(map[string]string),
		tokens: make(map[string]map[string]int),
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading pattern %s: %w", path, err)
		}
		if err := validateSchema(data); err != nil {
			return fmt.Errorf("pattern %s: %w", entry.Name(), err)
		}

		var p Pattern
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("parsing pattern %s: %w", entry.Name(), err)
		}
		if err := p.Validate(l.maxSteps, l.caps); err != nil {
			return fmt.Errorf("pattern %s: %w", entry.Name(), err)
		}
		if _, dup := next.byID[p.ID]; dup {
			return fmt.Errorf("pattern %s: id %q already loaded from another file", entry.Name(), p.ID)
		}

		sum := sha256.Sum256(data)
		next.byID[p.ID] = &p
		next.hashes[p.ID] = hex.EncodeToString(sum[:])
		indexTokens(next.tokens, &p)
	}

	l.snap.Store(next)
	l.logger.Info("Pattern index loaded", map[string]interface{}{
		"operation": "pattern_load",
		"dir":       l.dir,
		"patterns":  len(next.byID),
	})
	return nil
}

// Reload re-runs Load. The name exists for call sites that distinguish the
// startup load from an operator-triggered refresh.
func (l *Loader) Reload() error {
	return l.Load()
}

func (l *Loader) snapshot() *snapshot {
	return l.snap.Load().(*snapshot)
}

// Get returns the pattern by id.
func (l *Loader) Get(id string) (*Pattern, error) {
	p, ok := l.snapshot().byID[id]
	if !ok {
		return nil, &core.Error{
			Kind:      core.KindUnknownPattern,
			Op:        "loader.get",
			PatternID: id,
			Message:   "pattern not loaded",
		}
	}
	return p, nil
}

// List returns every loaded pattern, sorted by id.
func (l *Loader) List() []*Pattern {
	snap := l.snapshot()
	out := make([]*Pattern, 0, len(snap.byID))
	for _, p := range snap.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Hash returns the content hash of a loaded pattern's source document.
func (l *Loader) Hash(id string) (string, bool) {
	h, ok := l.snapshot().hashes[id]
	return h, ok
}

// indexTokens feeds the inverted intent index. Tags score highest, then id
// and category tokens, then description words; the weights bias routing
// toward deliberate labels over prose.
func indexTokens(index map[string]map[string]int, p *Pattern) {
	add := func(token string, weight int) {
		token = strings.ToLower(token)
		if len(token) < 2 || stopwords[token] {
			return
		}
		if index[token] == nil {
			index[token] = make(map[string]int)
		}
		if weight > index[token][p.ID] {
			index[token][p.ID] = weight
		}
	}

	for _, tag := range p.Tags {
		for _, tok := range tokenize(tag) {
			add(tok, 3)
		}
	}
	for _, tok := range tokenize(p.ID) {
		add(tok, 2)
	}
	for _, tok := range tokenize(p.Category) {
		add(tok, 2)
	}
	for _, tok := range tokenize(p.Description) {
		add(tok, 1)
	}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "for": true, "in": true, "is": true,
	"me": true, "my": true, "of": true, "on": true, "show": true, "the": true,
	"to": true, "what": true, "with": true,
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
