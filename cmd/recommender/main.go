// cmd/recommender/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"product-recommender/internal/api"
	"product-recommender/internal/common/aws"
	"product-recommender/internal/common/config"
	"product-recommender/internal/common/database"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/observability"
	"product-recommender/internal/common/retry"
	"product-recommender/internal/common/validation"
	"product-recommender/internal/pipeline/answerer"
	"product-recommender/internal/pipeline/orchestrator"
	"product-recommender/internal/pipeline/planner"
	"product-recommender/internal/pipeline/retriever"
	"product-recommender/internal/pipeline/router"
	"product-recommender/internal/services/completion"
	"product-recommender/internal/services/livesearch"
	"product-recommender/internal/services/vectorsearch"
)

// waitFor pings a dependency with backoff. A dependency that never answers is
// reported through /ready instead of stopping the process.
func waitFor(ctx context.Context, dep database.Pinger, log *zap.Logger) {
	policy := retry.Policy{MaxAttempts: 10, InitialDelay: 2 * time.Second, MaxDelay: 15 * time.Second}
	attempts, err := retry.Do(ctx, policy, nil, func(ctx context.Context, attempt int) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := dep.Ping(pingCtx)
		if err != nil {
			log.Warn(fmt.Sprintf("%s not reachable yet, retrying...", dep.Name()),
				zap.Error(err),
				zap.Int("attempt", attempt+1),
			)
		}
		return err
	})
	if err != nil {
		log.Error(fmt.Sprintf("%s unavailable after retries", dep.Name()), zap.Int("attempts", attempts), zap.Error(err))
		return
	}
	log.Info(fmt.Sprintf("%s connected successfully", dep.Name()))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.Build(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting product recommender...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.Observability.ServiceName)
	if err != nil {
		zapLog.Warn("otel metrics exporter unavailable", zap.Error(err))
	}
	if cfg.Observability.Tracing.Enabled {
		if err := obs.EnableTracing(cfg.Observability.ServiceName, cfg.Observability.Tracing.JaegerEndpoint, cfg.Observability.Tracing.SampleRatio); err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		}
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var deps []database.Pinger

	// --- Private catalog ---
	var embedder vectorsearch.Embedder
	if cfg.APIs.Embeddings.Enabled {
		embedder = vectorsearch.NewOpenAIEmbedder(vectorsearch.EmbedderConfig{
			BaseURL:    cfg.APIs.Embeddings.BaseURL,
			APIKey:     cfg.APIs.Embeddings.APIKey,
			Model:      cfg.APIs.Embeddings.Model,
			Dimensions: cfg.APIs.Embeddings.Dimensions,
			Timeout:    config.GetDuration(cfg.APIs.Embeddings.Timeout),
		})
	}

	var private vectorsearch.Searcher
	switch cfg.Pipeline.Retriever.PrivateBackend {
	case "postgres", "pgvector":
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Pipeline.Retriever.PrivateBackend == "pgvector" {
			store, err := vectorsearch.NewPgVectorStore(pg.DB, pg.Table, embedder)
			if err != nil {
				zapLog.Fatal("pgvector catalog store init failed", zap.Error(err))
			}
			private = store
		} else {
			store, err := vectorsearch.NewPostgresStore(pg.DB, pg.Table)
			if err != nil {
				zapLog.Fatal("postgres catalog store init failed", zap.Error(err))
			}
			private = store
		}
		deps = append(deps, pg)
	default:
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch init failed", zap.Error(err))
		}
		store := vectorsearch.NewElasticsearchStore(es.Client, es.Index)
		if embedder != nil {
			store.WithEmbedder(embedder)
		}
		private = store
		deps = append(deps, es)
	}
	zapLog.Info("private catalog ready",
		zap.String("backend", private.Name()),
		zap.Bool("embeddings", embedder != nil),
	)

	// --- Live web search ---
	var live livesearch.Searcher
	if cfg.APIs.LiveSearch.Enabled {
		live = livesearch.NewClient(cfg.APIs.LiveSearch, log)
	}

	// --- Retrieval cache ---
	retrieverCfg := retriever.LoadConfig(cfg)
	var cache retriever.Cache
	if cfg.Pipeline.Retriever.CacheEnabled {
		if cfg.Database.Redis.Enabled {
			rdb := database.NewRedis(cfg.Database.Redis)
			defer rdb.Close()
			cache = retriever.NewRedisCache(rdb.Client, retrieverCfg.CacheTTL, log)
			deps = append(deps, rdb)
		} else {
			cache = retriever.NewMemoryCache(retrieverCfg.CacheTTL)
		}
	}

	for _, dep := range deps {
		waitFor(ctx, dep, zapLog)
	}

	// --- Completion ---
	prompts, err := config.LoadPrompts(cfg.Prompts.File, cfg.Prompts.Watch)
	if err != nil {
		zapLog.Fatal("prompt load failed", zap.Error(err))
	}
	prompts.OnChange(func(roles []string) {
		zapLog.Info("prompts reloaded", zap.Strings("roles", roles))
	})
	schemas, err := validation.NewRegistry()
	if err != nil {
		zapLog.Fatal("schema registry init failed", zap.Error(err))
	}
	completionCfg := completion.LoadConfig(cfg)
	backend, err := completion.NewBackend(completionCfg)
	if err != nil {
		zapLog.Fatal("completion backend init failed", zap.Error(err))
	}
	completer := completion.NewService(completionCfg, backend, prompts, schemas, log)

	// --- Stages ---
	routerCfg, err := router.LoadConfig(cfg)
	if err != nil {
		zapLog.Fatal("router config invalid", zap.Error(err))
	}
	orch := orchestrator.NewOrchestrator(
		orchestrator.LoadConfig(cfg),
		router.NewHandler(routerCfg, completer, log),
		planner.NewHandler(planner.LoadConfig(cfg), completer, log),
		retriever.NewHandler(retrieverCfg, private, live, cache, log),
		answerer.NewHandler(answerer.LoadConfig(cfg), completer, log),
		obs,
		log,
	)

	if cfg.Notifications.SNS.Enabled {
		publisher, err := aws.NewOutcomePublisher(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN)
		if err != nil {
			zapLog.Error("sns publisher disabled", zap.Error(err))
		} else {
			orch.WithPublisher(publisher)
		}
	}

	// --- HTTP server ---
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewHandler(orch, deps, log).Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Product recommender stopped gracefully")
}
