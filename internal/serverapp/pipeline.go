package serverapp

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"salesql/internal/assistant"
	"salesql/internal/cache"
	"salesql/internal/config"
	"salesql/internal/dbexec"
	"salesql/internal/entity"
	"salesql/internal/introspection"
	"salesql/internal/llm"
	"salesql/internal/logging"
	"salesql/internal/planner"
	"salesql/internal/salesmodel"
	"salesql/internal/summarize"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pipeline is the wired question pipeline plus the stores it owns.
type Pipeline struct {
	Assistant *assistant.Assistant
	Catalog   *introspection.Introspector
	Distinct  *entity.CachedValues
	Tables    salesmodel.Tables

	stores []cache.Store
}

// BuildPipeline wires the assistant against db. A nil db yields a pipeline
// that answers every question with a configuration error.
func BuildPipeline(cfg *config.Config, logger *logging.Logger, db *sql.DB) (*Pipeline, error) {
	p := &Pipeline{Tables: cfg.Planner.Tables}
	ok := false
	defer func() {
		if !ok {
			_ = p.Close()
		}
	}()

	distinctStore, err := cache.New(cfg.Cache.Options())
	if err != nil {
		return nil, fmt.Errorf("distinct value cache: %w", err)
	}
	p.stores = append(p.stores, distinctStore)

	sessions, err := buildSessions(cfg, distinctStore)
	if err != nil {
		return nil, err
	}
	if sessions.store != nil && sessions.store != distinctStore {
		p.stores = append(p.stores, sessions.store)
	}

	var relationships []introspection.Edge
	if path := cfg.Planner.RelationshipsFile; path != "" {
		relationships, err = introspection.LoadRelationshipsFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded join relationships", slog.String("file", path), slog.Int("edges", len(relationships)))
	}

	defaultRoute, _ := salesmodel.ParseRoute(cfg.Planner.DefaultRoute)

	deps := assistant.Deps{
		Planner: planner.New(planner.Config{
			Tables:       cfg.Planner.Tables,
			DefaultRoute: defaultRoute,
			DefaultTopN:  cfg.Planner.DefaultTopN,
		}),
		Summarizer: summarize.New(cfg.Summary),
		Sessions:   assistant.NewSessions(sessions.store, cfg.Sessions.TTL),
	}

	llmClient := llm.New(cfg.LLM, &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)})
	if llmClient != nil {
		logger.Info("LLM SQL repair enabled", slog.String("model", cfg.LLM.Model))
	}

	if db != nil {
		p.Catalog = introspection.New(db, cfg.Database.Schema)
		p.Distinct = entity.NewCachedValues(
			entity.NewDBValues(db, cfg.Database.Schema),
			distinctStore,
			cacheNamespace(cfg),
			cfg.Cache.TTL,
		)
		deps.Catalog = p.Catalog
		deps.Resolver = entity.NewResolver(p.Distinct, entity.Config{
			Tables:           cfg.Planner.Tables,
			DistinctLimit:    cfg.Cache.DistinctLimit,
			ProbeConcurrency: cfg.Entity.ProbeConcurrency,
			Matcher: entity.Matcher{
				ShortTokenRatio: cfg.Entity.ShortTokenRatio,
				LongTokenRatio:  cfg.Entity.LongTokenRatio,
			},
		})
		deps.Runner = dbexec.NewRunner(dbexec.NewExecutor(db, cfg.Executor), llmClient, cfg.Executor.MaxRepairAttempts)
	}

	p.Assistant = assistant.New(assistant.Config{
		Tables:        cfg.Planner.Tables,
		SchemaFilters: cfg.SchemaFilters,
		Relationships: relationships,
	}, deps)

	ok = true
	return p, nil
}

type sessionStore struct {
	store cache.Store
}

// buildSessions picks the session backend. A redis session backend with a
// redis distinct cache shares one client.
func buildSessions(cfg *config.Config, distinct cache.Store) (sessionStore, error) {
	if !cfg.Sessions.Enabled {
		return sessionStore{}, nil
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Sessions.Backend))
	if backend == "" {
		backend = cache.BackendMemory
	}
	if backend == strings.ToLower(strings.TrimSpace(cfg.Cache.Backend)) && backend == cache.BackendRedis {
		return sessionStore{store: distinct}, nil
	}
	store, err := cache.New(cache.Options{
		Backend:    backend,
		MaxEntries: cfg.Cache.MaxEntries,
		Redis:      cfg.Cache.Redis,
	})
	if err != nil {
		return sessionStore{}, fmt.Errorf("session store: %w", err)
	}
	return sessionStore{store: store}, nil
}

// cacheNamespace keeps distinct values from different databases or schemas
// apart in a shared redis.
func cacheNamespace(cfg *config.Config) string {
	return cfg.Database.Target() + "/" + cfg.Database.Schema
}

// Close releases the cache and session stores.
func (p *Pipeline) Close() error {
	var errs []error
	for _, s := range p.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.stores = nil
	return errors.Join(errs...)
}
