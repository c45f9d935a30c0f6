package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/auditlog"
	"github.com/fyrsmithlabs/intaked/internal/capture"
	"github.com/fyrsmithlabs/intaked/internal/config"
	"github.com/fyrsmithlabs/intaked/internal/debrief"
	"github.com/fyrsmithlabs/intaked/internal/extraction"
	"github.com/fyrsmithlabs/intaked/internal/httpapi"
	"github.com/fyrsmithlabs/intaked/internal/intake"
	"github.com/fyrsmithlabs/intaked/internal/logging"
	"github.com/fyrsmithlabs/intaked/internal/patterns"
	"github.com/fyrsmithlabs/intaked/internal/pipeline"
	"github.com/fyrsmithlabs/intaked/internal/queue"
	"github.com/fyrsmithlabs/intaked/internal/routing"
	"github.com/fyrsmithlabs/intaked/internal/scoring"
	"github.com/fyrsmithlabs/intaked/internal/softdelete"
	"github.com/fyrsmithlabs/intaked/internal/sqlite"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second

	// debriefBacklogLimit caps how many review items one debrief session walks.
	debriefBacklogLimit = 20
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intaked daemon",
	Long: `Start the intaked daemon: HTTP API, offline queue, and the optional
NATS chat bridge.

Configuration is loaded from the YAML file given with --config, then
overridden by INTAKED_* environment variables. A missing config file is not
an error; defaults apply.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received signal %v, shutting down\n", sig)
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting intaked",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	return run(ctx, cfg, logger)
}

// run wires all services and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	records, err := store.NewRemoteStore(store.RemoteConfig{
		BaseURL:   cfg.Store.BaseURL,
		APIKey:    cfg.Store.APIKey.Value(),
		Timeout:   cfg.Store.Timeout.Duration(),
		RateLimit: cfg.Store.RateLimit,
		RateBurst: cfg.Store.RateBurst,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create record store client: %w", err)
	}

	audit := auditlog.New(db.Conn())
	patternStore := patterns.NewSQLStore(db.Conn())
	scorer := scoring.New(cfg.Scoring)

	var provider extraction.IntentProvider
	if cfg.LLM.Enabled {
		provider, err = extraction.NewLLMProvider(cfg.LLM.Model, cfg.LLM.APIKey.Value(), cfg.LLM.Timeout.Duration())
		if err != nil {
			return fmt.Errorf("failed to create llm provider: %w", err)
		}
		logger.Info("llm intent provider enabled", zap.String("model", cfg.LLM.Model))
	}

	var transcriber capture.Transcriber
	if cfg.Transcribe.Enabled {
		transcriber, err = capture.NewHTTPTranscriber(cfg.Transcribe.URL, cfg.Transcribe.Timeout.Duration(), logger)
		if err != nil {
			return fmt.Errorf("failed to create transcriber: %w", err)
		}
		logger.Info("voice transcription enabled", zap.String("url", cfg.Transcribe.URL))
	}

	p, err := pipeline.New(pipeline.Deps{
		Extractor:   extraction.New(cfg.Extract),
		Provider:    provider,
		Transcriber: transcriber,
		Applicator:  patterns.NewApplicator(patternStore, cfg.Patterns.ApplyThreshold, logger),
		Learner: patterns.NewLearner(patternStore, records, audit, patterns.Config{
			InitialConfidence: cfg.Patterns.InitialConfidence,
			ConfirmStep:       cfg.Patterns.ConfirmStep,
			WrongStep:         cfg.Patterns.WrongStep,
		}, logger),
		Scorer:  scorer,
		Router:  routing.New(scorer, cfg.Pipeline.ReviewCollection),
		Records: records,
		Queue:   queue.New(db.Conn(), records, audit, cfg.Queue.MaxRetries, logger),
		Audit:   audit,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	deleter := softdelete.New(records, audit, cfg.Undo.Window.Duration())
	debriefMgr := debrief.NewManager(db.Conn(), records, p, debriefBacklogLimit, logger)

	srv, err := httpapi.NewServer(httpapi.Deps{
		Pipeline:         p,
		Deleter:          deleter,
		Debrief:          debriefMgr,
		Patterns:         patternStore,
		ReviewCollection: cfg.Pipeline.ReviewCollection,
	}, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	if cfg.Intake.Enabled {
		nc, err := intake.Connect(cfg.Intake.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		sub := intake.NewSubscriber(nc, p, intake.Config{
			TextSubject:  cfg.Intake.TextSubject,
			VoiceSubject: cfg.Intake.VoiceSubject,
			ReplyPrefix:  cfg.Intake.ReplyPrefix,
		}, logger)
		if err := sub.Start(); err != nil {
			return fmt.Errorf("failed to start intake subscriber: %w", err)
		}
		defer sub.Stop()
	}

	// Hot-reload the scoring threshold when the config file changes. Other
	// settings require a restart.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger, func(c *config.Config) {
			scorer.SetThreshold(c.Scoring.Threshold)
			logger.Info("scoring threshold updated", zap.Int("threshold", c.Scoring.Threshold))
		})
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("config watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
