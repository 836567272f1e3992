// Package api exposes the runtime over HTTP+JSON: pattern execution, intent
// routing, and introspection of patterns, capabilities, agents, and pricing
// packs. The transport is deliberately thin; all semantics live in the
// orchestration and packs packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/halcyonlabs/patternflow/core"
	"github.com/halcyonlabs/patternflow/orchestration"
	"github.com/halcyonlabs/patternflow/packs"
)

// Server is the HTTP front of the runtime. Backpressure is applied at the
// execute entry with a counting semaphore: when MaxInFlight executions are
// already running, new ones are rejected immediately with 503 rather than
// queued.
type Server struct {
	orch     *orchestration.Orchestrator
	loader   *orchestration.Loader
	registry *core.CapabilityRegistry
	router   orchestration.IntentRouter
	store    packs.Store
	cfg      *core.Config
	logger   core.Logger
	inflight chan struct{}
	mux      *http.ServeMux
}

// NewServer wires the HTTP surface over already-constructed components.
func NewServer(orch *orchestration.Orchestrator, loader *orchestration.Loader, registry *core.CapabilityRegistry, router orchestration.IntentRouter, store packs.Store, cfg *core.Config, logger core.Logger) *Server {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	s := &Server{
		orch:     orch,
		loader:   loader,
		registry: registry,
		router:   router,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		inflight: make(chan struct{}, cfg.MaxInFlight),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/execute", s.handleExecute)
	s.mux.HandleFunc("/api/intent", s.handleIntent)
	s.mux.HandleFunc("/api/patterns", s.handlePatterns)
	s.mux.HandleFunc("/api/patterns/", s.handlePattern)
	s.mux.HandleFunc("/api/capabilities", s.handleCapabilities)
	s.mux.HandleFunc("/api/agents", s.handleAgents)
	s.mux.HandleFunc("/api/packs/", s.handlePacks)
	s.mux.HandleFunc("/health", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ExecuteRequest is the body of POST /api/execute.
type ExecuteRequest struct {
	PatternID string                 `json:"pattern_id"`
	Inputs    map[string]interface{} `json:"inputs"`
	Context   core.ContextOverrides  `json:"context"`
}

// IntentRequest is the body of POST /api/intent.
type IntentRequest struct {
	Query string `json:"query"`
}

// ErrorEnvelope is the uniform error body. Kind is the stable taxonomy tag;
// messages are operator-readable and never carry stack traces.
type ErrorEnvelope struct {
	Error struct {
		Kind          string `json:"kind"`
		Message       string `json:"message"`
		PatternID     string `json:"pattern_id,omitempty"`
		Step          string `json:"step,omitempty"`
		CorrelationID string `json:"correlation_id,omitempty"`
	} `json:"error"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.execute", "method not allowed"))
		return
	}

	select {
	case s.inflight <- struct{}{}:
		defer func() { <-s.inflight }()
	default:
		s.logger.Warn("Execution rejected", map[string]interface{}{
			"operation":     "api_execute",
			"max_in_flight": s.cfg.MaxInFlight,
		})
		s.writeError(w, core.NewError(core.KindBackpressure, "api.execute",
			"too many in-flight executions"))
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.WrapError(core.KindInvalidInput, "api.execute", err))
		return
	}
	if req.PatternID == "" {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.execute", "pattern_id is required"))
		return
	}

	rc := core.NewRequestContext(req.Context, s.cfg.RequestTimeout)
	ctx := r.Context()
	if rc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, rc.Deadline())
		defer cancel()
	}

	result, err := s.orch.Execute(ctx, req.PatternID, req.Inputs, rc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.intent", "method not allowed"))
		return
	}
	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.WrapError(core.KindInvalidInput, "api.intent", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.intent", "query is required"))
		return
	}

	patternID, err := s.router.Route(req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"pattern_id": patternID})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.patterns", "method not allowed"))
		return
	}
	list := s.loader.List()
	summaries := make([]map[string]interface{}, 0, len(list))
	for _, p := range list {
		hash, _ := s.loader.Hash(p.ID)
		summaries = append(summaries, map[string]interface{}{
			"id":          p.ID,
			"version":     p.Version,
			"category":    p.Category,
			"description": p.Description,
			"tags":        p.Tags,
			"steps":       len(p.Steps),
			"hash":        hash,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"patterns": summaries})
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.patterns", "method not allowed"))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/patterns/")
	pattern, err := s.loader.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pattern)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.capabilities", "method not allowed"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"capabilities": s.registry.ListCapabilities(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.agents", "method not allowed"))
		return
	}
	agents := s.registry.ListAgents()
	out := make([]map[string]interface{}, 0, len(agents))
	for _, name := range agents {
		caps, err := s.registry.AgentCapabilities(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"name":         name,
			"capabilities": caps,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out})
}

// handlePacks serves GET /api/packs/{id} and GET /api/packs/{id}/chain.
func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.packs", "method not allowed"))
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/packs/")
	if rest == "" {
		s.writeError(w, core.NewError(core.KindInvalidInput, "api.packs", "pack id is required"))
		return
	}

	if strings.HasSuffix(rest, "/chain") {
		id := strings.TrimSuffix(rest, "/chain")
		chain, err := s.store.ListChain(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"root": id, "chain": chain})
		return
	}

	pack, err := s.store.GetPack(r.Context(), rest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pack)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  s.cfg.ServiceName,
		"patterns": len(s.loader.List()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Response encode failed", map[string]interface{}{
			"operation": "api_response",
			"error":     err.Error(),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var envelope ErrorEnvelope
	kind := core.KindOf(err)
	// Pack store failures surface as sentinels, not structured errors.
	if kind == core.KindInternal {
		switch {
		case errors.Is(err, packs.ErrNotFound), errors.Is(err, packs.ErrNoPackForDate):
			kind = core.KindNotFound
		case errors.Is(err, packs.ErrInvalidPackID):
			kind = core.KindInvalidInput
		}
	}
	envelope.Error.Kind = string(kind)
	envelope.Error.Message = err.Error()

	var structured *core.Error
	if errors.As(err, &structured) {
		envelope.Error.PatternID = structured.PatternID
		envelope.Error.Step = structured.Step
		envelope.Error.CorrelationID = structured.CorrelationID
		if structured.Message != "" {
			envelope.Error.Message = structured.Message
		}
	}
	s.writeJSON(w, statusFor(kind), envelope)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindInvalidInput, core.KindValidationFailure, core.KindRequiredContextMissing, core.KindMissingPricingPack:
		return http.StatusBadRequest
	case core.KindAccessDenied:
		return http.StatusForbidden
	case core.KindUnknownPattern, core.KindUnknownCapability, core.KindNotFound, core.KindUnresolvedIntent:
		return http.StatusNotFound
	case core.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case core.KindExecutionCancelled:
		return 499 // client closed request
	case core.KindBackpressure, core.KindCircuitOpen, core.KindAgentTransientFailure:
		return http.StatusServiceUnavailable
	case core.KindAgentPermanentFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
