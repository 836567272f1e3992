// Command patternd runs the pattern-orchestrated analytics runtime: it loads
// pattern documents, registers the built-in agents, and serves the HTTP API.
//
// Initialization order is deterministic: pack store, capability registry and
// agents, pattern loader, execution cache, API server. Shutdown runs in
// reverse.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonlabs/patternflow/agents"
	"github.com/halcyonlabs/patternflow/api"
	"github.com/halcyonlabs/patternflow/core"
	"github.com/halcyonlabs/patternflow/orchestration"
	"github.com/halcyonlabs/patternflow/packs"
	"github.com/halcyonlabs/patternflow/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "patternd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := core.NewJSONLogger(cfg.ServiceName, cfg.LogLevel)

	shutdownTracing, err := telemetry.Init(cfg.ServiceName, cfg.TraceStdout)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	// Pack store first: everything downstream anchors to pack ids.
	var store packs.Store
	var closeStore func() error
	if cfg.RedisURL != "" {
		redisStore, err := packs.NewRedisStore(cfg.RedisURL, packs.WithRedisStoreLogger(logger))
		if err != nil {
			return fmt.Errorf("connecting pack store: %w", err)
		}
		store = redisStore
		closeStore = redisStore.Close
	} else {
		store = packs.NewMemoryStore(logger)
		if err := seedDemoPack(store); err != nil {
			return fmt.Errorf("seeding demo pack: %w", err)
		}
	}

	// Registry and agents. Duplicate capability registration is fatal here,
	// before any request is accepted.
	registry := core.NewCapabilityRegistry(logger)
	provider := agents.NewStaticProvider()
	for _, agent := range agents.Defaults(provider, cfg.AnthropicAPIKey, logger) {
		if err := registry.Register(agent); err != nil {
			return fmt.Errorf("registering agent %s: %w", agent.Name(), err)
		}
	}

	// Pattern loader: a broken document fails startup, not the first request.
	loader := orchestration.NewLoader(cfg.PatternDir, cfg.MaxStepsPerPattern, registry, logger)
	if err := loader.Load(); err != nil {
		return fmt.Errorf("loading patterns from %s: %w", cfg.PatternDir, err)
	}

	var cache orchestration.ExecutionCache
	if cfg.RedisURL != "" {
		redisCache, err := orchestration.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connecting execution cache: %w", err)
		}
		cache = redisCache
	} else {
		cache = orchestration.NewMemoryCache(cfg.CacheCapacity)
	}

	runtime := orchestration.NewAgentRuntime(registry, cfg, logger)
	orch := orchestration.NewOrchestrator(loader, runtime, cache, nil, cfg, logger)
	router := orchestration.NewKeywordRouter(loader, cfg.IntentThreshold, logger)

	server := api.NewServer(orch, loader, registry, router, store, cfg, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", map[string]interface{}{
			"operation": "startup",
			"addr":      cfg.HTTPAddr,
			"patterns":  len(loader.List()),
			"agents":    len(registry.ListAgents()),
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", map[string]interface{}{"operation": "shutdown"})

	// Reverse of init: API drains first, then stores and telemetry.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", map[string]interface{}{
			"operation": "shutdown",
			"error":     err.Error(),
		})
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error("Pack store close failed", map[string]interface{}{
				"operation": "shutdown",
				"error":     err.Error(),
			})
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Telemetry shutdown failed", map[string]interface{}{
			"operation": "shutdown",
			"error":     err.Error(),
		})
	}
	return nil
}

// seedDemoPack gives a memory-backed deployment one pack to anchor to. The
// Redis store keeps its packs across restarts and needs no seed.
func seedDemoPack(store packs.Store) error {
	asof := time.Now().UTC().Format("2006-01-02")
	_, err := store.CreatePack(context.Background(), asof, []string{"static_provider"}, "demo-"+asof)
	if err != nil && !errors.Is(err, packs.ErrDuplicatePack) {
		return err
	}
	return nil
}
