// Package app assembles the advisor's dependencies from configuration.
// Both the HTTP server and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/agent"
	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
	"github.com/mohamadbazzy/Agentic-Rag/internal/llm"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "msfea_advisor"

// App holds the long-lived components shared by every entrypoint.
type App struct {
	Config     *config.Config
	Repo       *store.SQLiteStore
	Metrics    *metrics.Collector
	Registry   *namespace.Registry
	Index      *knowledge.LocalIndex
	Embedder   embedding.Embedder
	Retrievers *knowledge.RetrieverCache
	Catalog    *catalog.Loader
	Advisor    *advisor.Service
	Agent      *agent.Service

	closers []func()
}

// New opens the database and builds the retrieval stack and the advisor.
// Close must be called to release them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	if cfg.MetricsEnabled {
		a.Metrics = metrics.NewCollector(MetricsNamespace)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.Repo = repo
	a.closers = append(a.closers, func() {
		if err := repo.Close(); err != nil {
			slog.Error("Failed to close repository", "error", err)
		}
	})
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}

	entries, source := namespace.LoadConfig(cfg.Namespaces.JSON, cfg.Namespaces.Path)
	a.Registry = namespace.NewRegistry(entries)
	slog.Info("Namespace registry loaded", "source", source, "agents", len(entries))

	index, err := knowledge.NewLocalIndex(repo)
	if err != nil {
		return fmt.Errorf("open knowledge index: %w", err)
	}
	a.Index = index
	a.closers = append(a.closers, func() {
		if err := index.Close(); err != nil {
			slog.Error("Failed to close knowledge index", "error", err)
		}
	})

	embedder, err := llm.NewEmbedder(cfg.LLM, cfg.Knowledge.EmbeddingCacheSize, a.Metrics)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	a.Embedder = embedder
	a.Retrievers = knowledge.NewRetrieverCache(index, a.Registry, embedder, cfg.Knowledge.TopK, a.Metrics)

	if cfg.Catalog.Path != "" {
		a.Catalog = catalog.NewLoader(cfg.Catalog.Path)
	}

	models, err := llm.NewModels(ctx, cfg.LLM, cfg.Breaker, a.Metrics)
	if err != nil {
		return fmt.Errorf("create %s models: %w", cfg.LLM.Provider, err)
	}
	adv, err := advisor.New(ctx, advisor.Config{
		Chat:               models.Chat,
		Classifier:         models.Classifier,
		Retrievers:         a.Retrievers,
		Catalog:            a.Catalog,
		Metrics:            a.Metrics,
		ClassifierCacheTTL: cfg.Knowledge.ClassifierCacheTTL,
	})
	if err != nil {
		return err
	}
	a.Advisor = advisor.NewService(adv, repo, a.Metrics)
	a.Agent = agent.NewServiceWithProcessor(a.Advisor, agent.DefaultConfig())
	a.closers = append(a.closers, a.Agent.Close)
	return nil
}

// Indexer returns an ingestion indexer bound to agentID's namespaces.
func (a *App) Indexer(agentID string) *knowledge.Indexer {
	return knowledge.NewIndexer(knowledge.NewRestrictedIndex(agentID, a.Index, a.Registry, a.Metrics), a.Embedder)
}

// WatchNamespaces reloads the registry from the config file until ctx is
// done. It is a no-op unless hot reload is enabled and the registry came
// from the file.
func (a *App) WatchNamespaces(ctx context.Context) {
	ns := a.Config.Namespaces
	if !ns.HotReload || ns.JSON != "" || ns.Path == "" {
		return
	}
	err := namespace.Watch(ctx, ns.Path, a.Registry, func(entries map[string][]string) {
		slog.Info("Namespace registry reloaded", "path", ns.Path, "agents", len(entries))
	})
	if err != nil {
		slog.Error("Namespace hot reload disabled", "path", ns.Path, "error", err)
		return
	}
	slog.Info("Watching namespace config", "path", ns.Path)
}

// Location returns the configured calendar time zone.
func (a *App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Config.Calendar.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
