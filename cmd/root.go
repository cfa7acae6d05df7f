// Package cmd defines and implements the CLI commands for the prospector
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/blog"
	"github.com/outreachkit/prospector/internal/config"
	"github.com/outreachkit/prospector/internal/headless"
	"github.com/outreachkit/prospector/internal/logging"
	"github.com/outreachkit/prospector/internal/metrics"
	"github.com/outreachkit/prospector/internal/pipeline"
	"github.com/outreachkit/prospector/internal/progress"
	"github.com/outreachkit/prospector/internal/progress/sinks"
	"github.com/outreachkit/prospector/internal/publisher"
	pubmemory "github.com/outreachkit/prospector/internal/publisher/memory"
	"github.com/outreachkit/prospector/internal/publisher/pubsub"
	"github.com/outreachkit/prospector/internal/scrape"
	"github.com/outreachkit/prospector/internal/snapshot"
	"github.com/outreachkit/prospector/internal/storage/postgres"
	"github.com/outreachkit/prospector/internal/store"
	"github.com/outreachkit/prospector/internal/verify"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prospector",
		Short: "Lead enrichment pipeline for outreach campaigns.",
		Long: `prospector enriches uploaded lead lists in place: it classifies
websites as active blogs, scrapes contact emails and social links, and
verifies email deliverability, checkpointing results as it goes.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// services bundles the wired subsystems shared by serve and run.
type services struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *pipeline.Orchestrator
	hub          *progress.Hub
	events       *sinks.MemorySink
	repo         store.TargetRepository
	closers      []func(context.Context)
}

func (s *services) close(ctx context.Context) {
	if err := s.hub.Close(ctx); err != nil {
		s.logger.Warn("progress hub close failed", zap.Error(err))
	}
	for _, closer := range s.closers {
		closer(ctx)
	}
	_ = s.logger.Sync()
}

// buildServices constructs the full pipeline stack from config. Optional
// backends (postgres, GCS, pubsub, headless Chrome) are wired only when
// configured; everything degrades to in-memory implementations.
func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	s := &services{cfg: cfg, logger: logger}

	fetcher := scrape.NewFetcher(scrape.FetcherConfig{
		UserAgent:     cfg.Scrape.UserAgent,
		Timeout:       time.Duration(cfg.Scrape.TimeoutSeconds) * time.Second,
		RespectRobots: cfg.Scrape.RespectRobots,
	}, logger.Named("fetch"))

	checker := blog.NewChecker(fetcher, logger.Named("blog"))
	if cfg.Headless.Enabled {
		renderer, rerr := headless.NewRenderer(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if rerr != nil {
			logger.Warn("headless renderer init failed", zap.Error(rerr))
		} else {
			checker = checker.WithHeadless(headless.NewDefaultDetector(), renderer)
			s.closers = append(s.closers, func(context.Context) { renderer.Close() })
		}
	}

	snapshots, err := buildSnapshotStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if gcs, ok := snapshots.(*snapshot.GCSStore); ok {
		s.closers = append(s.closers, func(context.Context) {
			if cerr := gcs.Close(); cerr != nil {
				logger.Warn("gcs snapshot store close failed", zap.Error(cerr))
			}
		})
	}
	scraper := scrape.NewScraper(fetcher, snapshots, cfg.Scrape.MaxEmails, logger.Named("scrape"))

	verifier := verify.NewVerifier(verify.Options{
		EnableSMTP:   cfg.Verify.EnableSMTP,
		Quick:        cfg.Verify.Quick,
		Workers:      cfg.Verify.Workers,
		HeloDomain:   cfg.Verify.HeloDomain,
		ProbeTimeout: time.Duration(cfg.Verify.ProbeTimeoutSeconds) * time.Second,
	}, logger.Named("verify"))

	s.repo, err = buildRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pg, ok := s.repo.(*postgres.TargetStore); ok {
		s.closers = append(s.closers, func(context.Context) { pg.Close() })
	}

	pub, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if ps, ok := pub.(*pubsub.Publisher); ok {
		s.closers = append(s.closers, func(context.Context) {
			if cerr := ps.Close(); cerr != nil {
				logger.Warn("pubsub publisher close failed", zap.Error(cerr))
			}
		})
	}

	s.events = sinks.NewMemorySink(cfg.Progress.EventsPerRun)
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	s.hub = progress.NewHub(progress.Config{
		BufferSize: cfg.Progress.BufferSize,
		Logger:     logger.Named("progress"),
	}, s.events, promSink, sinks.NewLogSink(logger.Named("events")))

	s.orchestrator = pipeline.New(pipeline.Deps{
		Checker:   checker,
		Scraper:   scraper,
		Verifier:  verifier,
		Repo:      s.repo,
		Emitter:   s.hub,
		Publisher: pub,
		Logger:    logger.Named("pipeline"),
	}, pipeline.Config{
		RunBudget:       cfg.RunBudget(),
		CheckpointEvery: cfg.Pipeline.CheckpointEvery,
		PublishTopic:    cfg.PubSub.TopicName,
	})
	return s, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (snapshot.Store, error) {
	switch {
	case cfg.Snapshot.GCSBucket != "":
		gcs, err := snapshot.NewGCSStore(ctx, cfg.Snapshot.GCSBucket, cfg.Snapshot.Prefix, logger.Named("snapshot"))
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		return gcs, nil
	case cfg.Snapshot.LocalDir != "":
		local, err := snapshot.NewLocalStore(cfg.Snapshot.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		return local, nil
	default:
		return snapshot.NewMemoryStore(), nil
	}
}

func buildRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.TargetRepository, error) {
	if cfg.DB.DSN == "" {
		logger.Info("no database configured, using in-memory target store")
		return store.NewMemoryRepository(), nil
	}
	pg, err := postgres.NewTargetStore(ctx, postgres.TargetStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres target store: %w", err)
	}
	return pg, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (publisher.Publisher, error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("no pubsub project configured, using in-memory publisher")
		return pubmemory.New(), nil
	}
	pub, err := pubsub.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return pub, nil
}
