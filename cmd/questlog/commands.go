package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"questlog/internal/auth"
	"questlog/internal/config"
	"questlog/internal/db"
	"questlog/internal/extract"
	httpx "questlog/internal/http"
	"questlog/internal/jobs"
	"questlog/internal/journal"
	"questlog/internal/logging"
	"questlog/internal/profile"
	"questlog/internal/tags"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	withWorker  bool
	skipMigrate bool
)

// serveCmd runs the HTTP API, by default with an in-process job worker.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and indexes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, log, gdb, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		if err := db.AutoMigrateAndIndexes(gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrated")
		return nil
	},
}

// workerCmd runs only the job worker, for deployments that scale it apart
// from the API.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, gdb, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		newWorker(cfg, gdb, log).Run(ctx)
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "worker", true, "run the job worker in-process")
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate on startup")
}

func bootstrap() (config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return cfg, nil, nil, err
	}
	gdb, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return cfg, log, gdb, nil
}

func newWorker(cfg config.Config, gdb *gorm.DB, log *zap.Logger) *jobs.Worker {
	id := "worker-" + uuid.NewString()[:8]
	return &jobs.Worker{
		ID:           id,
		Repo:         &jobs.Repo{DB: gdb},
		DB:           gdb,
		Log:          log.With(zap.String("worker", id)),
		PollInterval: cfg.WorkerPollInterval,
	}
}

// analysis returns the text-analysis collaborators. Without an API key
// journals still finish, just without extracted signal.
func analysis(ctx context.Context, cfg config.Config, log *zap.Logger) (extract.Extractor, extract.TagMerger, extract.Responder, error) {
	if cfg.GenAIAPIKey == "" {
		log.Warn("GENAI_API_KEY not set, extraction disabled")
		return nil, nil, extract.PromptResponder{}, nil
	}
	c, err := extract.NewGenAIClient(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, log.Named("genai"))
	if err != nil {
		return nil, nil, nil, err
	}
	return c, c, c, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, gdb, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if !skipMigrate {
		if err := db.AutoMigrateAndIndexes(gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extractor, merger, responder, err := analysis(ctx, cfg, log)
	if err != nil {
		return err
	}
	tagSvc := &tags.Service{DB: gdb, Merger: merger, Log: log.Named("tags")}
	journals := &journal.Service{
		DB:             gdb,
		Extractor:      extractor,
		Responder:      responder,
		Profile:        &profile.Loader{DB: gdb},
		Tags:           tagSvc,
		ExtractTimeout: cfg.ExtractTimeout,
		Log:            log.Named("journal"),
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpx.NewRouter(cfg, httpx.Deps{
			DB:       gdb,
			JWT:      auth.NewJWT(cfg.JWTSecret),
			Journals: journals,
			Tags:     tagSvc,
			Log:      log.Named("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if withWorker {
		g.Go(func() error {
			newWorker(cfg, gdb, log).Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
