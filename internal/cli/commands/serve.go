package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/api/handlers"
	"github.com/jpark8215/internal-chatbot/internal/jobs"
	"github.com/jpark8215/internal-chatbot/internal/server"
	"github.com/spf13/cobra"
)

// cleanupSettle delays the first orphan sweep so startup ingestion can finish.
const cleanupSettle = 2 * time.Minute

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion daemon and ops server",
		Long: "Start the daemon: ingest CHATBOT_INGEST_PATH, watch it for changes, " +
			"sweep orphaned sources, mirror S3 and serve /health, /metrics and /stats.",
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides CHATBOT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")
	cmd.Flags().Bool("watch", false, "Watch the ingest path even if CHATBOT_WATCH_ENABLED is false")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		cfg.WatchEnabled = true
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Println("connected to database")

	var wg sync.WaitGroup
	var workers []*jobs.Worker

	if cfg.HasIngestPath() {
		if cfg.IngestOnStart {
			wg.Add(1)
			go func() {
				defer wg.Done()
				startupIngest(ctx, a)
			}()
		}

		if cfg.WatchEnabled {
			watcher := jobs.NewFileWatcher(watcherConfig(a), a.ingest, a.registry, a.recorder)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("watcher: stopped: %v", err)
				}
			}()
		}
	} else {
		log.Println("ingest: CHATBOT_INGEST_PATH not set, startup ingestion and watching disabled")
	}

	if cfg.CleanupEnabled {
		schedule, err := jobs.ParseSchedule(cfg.CleanupSchedule, cfg.CleanupInterval)
		if err != nil {
			return fmt.Errorf("invalid cleanup schedule: %w", err)
		}
		var cleaner jobs.OrphanCleaner
		if cfg.HasIngestPath() {
			cleaner = a.cleanup
		}
		workers = append(workers, jobs.NewWorker("cleanup", jobs.NewCleanupJob(cleaner, a.caches, cfg.IngestPath), schedule, cleanupSettle))
	}

	mirror, err := a.s3Mirror(ctx)
	if err != nil {
		return err
	}
	if mirror != nil {
		workers = append(workers, jobs.NewWorker("s3-mirror", mirror, jobs.IntervalSchedule(cfg.S3SyncInterval), 0))
	}

	for _, w := range workers {
		go w.Start(ctx)
	}

	ops := handlers.NewOpsHandler(handlers.OpsConfig{
		DB:       a.pool,
		Caches:   a.caches,
		Sources:  a.registry,
		Sync:     a.cleanup,
		Feedback: a.feedback,
		Root:     cfg.IngestPath,
	})
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewRouter(server.RouterConfig{
			Ops:     ops,
			Metrics: a.recorder.Handler(),
			Debug:   cfg.Debug,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}
	log.Println("shutting down...")

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	wg.Wait()

	log.Println("server exited")
	return nil
}

func startupIngest(ctx context.Context, a *app) {
	report, err := a.ingest.Ingest(ctx, a.cfg.IngestPath)
	if err != nil {
		log.Printf("ingest: startup ingestion failed: %v", err)
		return
	}
	log.Printf("ingest: startup ingestion finished: %d ingested, %d skipped, %d failed, %d chunks in %s",
		report.FilesIngested, report.FilesSkipped, report.FilesFailed(), report.ChunksIngested, report.Duration.Round(time.Millisecond))
}

func watcherConfig(a *app) jobs.WatcherConfig {
	cfg := a.cfg
	wc := jobs.DefaultWatcherConfig(cfg.IngestPath)
	wc.ForcePolling = cfg.WatchForcePolling
	wc.PollInterval = cfg.WatchInterval
	wc.ScanOnStart = !cfg.IngestOnStart
	wc.Workers = cfg.WatchWorkers
	wc.MaxRetries = cfg.WatchMaxRetries
	wc.RetryInitial = cfg.WatchRetryInitial
	wc.RetryMax = cfg.WatchRetryMax
	wc.Stability = jobs.StabilityConfig{
		Timeout:      cfg.FileReadyTimeout,
		PollInterval: cfg.FileReadyPoll,
		Checks:       cfg.FileReadyChecks,
	}
	return wc
}
