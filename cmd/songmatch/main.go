package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/dshills/songmatch/internal/admin"
	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/config"
	"github.com/dshills/songmatch/internal/embedder"
	"github.com/dshills/songmatch/internal/entity"
	"github.com/dshills/songmatch/internal/history"
	"github.com/dshills/songmatch/internal/ingest"
	"github.com/dshills/songmatch/internal/keyword"
	"github.com/dshills/songmatch/internal/logging"
	"github.com/dshills/songmatch/internal/mcp"
	"github.com/dshills/songmatch/internal/metrics"
	"github.com/dshills/songmatch/internal/mood"
	"github.com/dshills/songmatch/internal/pipeline"
	"github.com/dshills/songmatch/internal/searcher"
	"github.com/dshills/songmatch/internal/tracing"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("songmatch\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", catalog.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", catalog.DriverName)
		os.Exit(0)
	}

	configPath := flag.String("config", "", "path to a YAML config file (default: $SONGMATCH_CONFIG)")
	ingestPath := flag.String("ingest", "", "ingest a YAML catalog file and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "songmatch: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for MCP protocol
	cfg.Log.Output = os.Stderr
	logging.Init(cfg.Log)
	logger := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *ingestPath, logger); err != nil {
		logger.Error().Err(err).Msg("songmatch stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, ingestPath string, logger zerolog.Logger) error {
	mcp.ServerVersion = version
	logger.Info().
		Str("version", version).
		Str("build_mode", catalog.BuildMode).
		Str("store", cfg.Store.Driver).
		Str("embedder", cfg.Embedder.Provider).
		Str("strategy", string(cfg.Semantic.Strategy)).
		Msg("songmatch starting")

	tp, err := tracing.NewProvider(ctx, cfg.Tracing, logging.Component("tracing"))
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	defer shutdownTracing(tp, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := catalog.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = store.Close() }()

	emb, err := embedder.New(cfg.Embedder, logging.Component("embedder"), m.IncBreakerTransition)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if emb.Dimension() != cfg.Semantic.Dimension {
		return fmt.Errorf("embedder produces %d-wide vectors, semantic.dimension is %d",
			emb.Dimension(), cfg.Semantic.Dimension)
	}

	ingester := ingest.New(store, emb, cfg.Ingest, m, logging.Component("ingest"))
	if ingestPath != "" {
		stats, err := ingester.IngestFile(ctx, ingestPath)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		logger.Info().
			Int("indexed", stats.SongsIndexed).
			Int("failed", stats.SongsFailed).
			Int("placeholders", stats.Placeholders).
			Msg("catalog ingested")
		if stats.SongsFailed > 0 {
			return fmt.Errorf("%d songs failed to ingest", stats.SongsFailed)
		}
		return nil
	}

	search, err := searcher.New(store, emb, cfg.Semantic, logging.Component("searcher"),
		searcher.WithBreakerObserver(m.IncBreakerTransition))
	if err != nil {
		return fmt.Errorf("failed to initialize searcher: %w", err)
	}

	ranking := cfg.Ranking
	p, err := pipeline.New(pipeline.Stages{
		Keyword:  keyword.NewMatcher(store, keyword.NewIdiomPrior(), cfg.Keyword, logging.Component("keyword")),
		Semantic: search,
		Mood:     mood.NewClassifier(logging.Component("mood")),
		Entity:   entity.NewExtractor(logging.Component("entity")),
		Songs:    store,
		Ranking:  &ranking,
		Metrics:  m,
	}, cfg.Pipeline, logging.Component("pipeline"))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	tracker, err := history.New(ctx, cfg.History, logging.Component("history"))
	if err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	defer func() { _ = tracker.Close() }()

	server, err := mcp.NewServer(mcp.Deps{
		Recommender: p,
		History:     tracker,
		Stats:       store,
		Health:      search,
		Ingester:    ingester,
	}, logging.Component("mcp"))
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if cfg.Admin.Enabled {
		srv := admin.New(admin.Options{
			Addr:        cfg.Admin.Addr,
			Health:      search,
			Gatherer:    reg,
			Tracing:     cfg.Tracing.Enabled,
			ServiceName: cfg.Tracing.ServiceName + "-admin",
		}, logging.Component("admin"))
		go func() { adminErr <- srv.Serve(ctx) }()
	}

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully")
		return nil
	case err := <-adminErr:
		if err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

func shutdownTracing(tp *tracing.Provider, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush traces")
	}
}
