// Package app wires narrator's infrastructure clients and domain
// services together and runs the selected mode: api, worker, or migrate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/duskvoice/narrator/internal/alerting"
	"github.com/duskvoice/narrator/internal/audit"
	"github.com/duskvoice/narrator/internal/config"
	"github.com/duskvoice/narrator/internal/httpserver"
	"github.com/duskvoice/narrator/internal/platform"
	"github.com/duskvoice/narrator/internal/telemetry"
	"github.com/duskvoice/narrator/internal/worker"
	"github.com/duskvoice/narrator/pkg/blobstore"
	"github.com/duskvoice/narrator/pkg/ledger"
	"github.com/duskvoice/narrator/pkg/slotmanager"
	"github.com/duskvoice/narrator/pkg/slotqueue"
	"github.com/duskvoice/narrator/pkg/story"
	"github.com/duskvoice/narrator/pkg/synthesis"
	"github.com/duskvoice/narrator/pkg/ttsadapter"
	"github.com/duskvoice/narrator/pkg/voice"
)

// providers lists every TTS provider key the elastic slot pool manages.
// Both ship as stub adapters (pkg/ttsadapter); a real deployment would
// configure whichever subset it has contracts with.
var providers = []string{"A", "B"}

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting narrator", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "narrator", telemetry.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// buildDomain wires the domain services shared by both api and worker
// modes: the credit ledger, the elastic slot manager, the synthesis
// orchestrator, and their collaborators.
func buildDomain(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*ledger.Service, *slotmanager.Manager, *synthesis.Orchestrator, blobstore.Store) {
	ledgerSvc := ledger.NewService(db, logger, cfg.CreditSourcesPriority(), int64(cfg.InitialCredits))

	adapters := ttsadapter.Registry{
		"A": ttsadapter.NewProviderAClient(cfg.ProviderABaseURL, cfg.ProviderAAPIKey, cfg.ProviderCallTimeout()),
		"B": ttsadapter.NewProviderBClient(cfg.ProviderBBaseURL, cfg.ProviderBAPIKey, cfg.ProviderCallTimeout()),
	}
	queue := slotqueue.New(rdb, logger)
	slots := slotmanager.NewManager(db, logger, queue, adapters, nil, cfg.SlotLimit, cfg.SlotLockTTL(), cfg.WarmHold(), cfg.MaxDispatchPerCycle)

	blobs := blobstore.NewFileStore("./data/blobs", "http://localhost"+cfg.ListenAddr()+"/blobs")
	stories := story.NewMemoryLookup()

	orchestrator := synthesis.NewOrchestrator(db, logger, ledgerSvc, slots, stories, blobs, adapters, nil, cfg.CreditsUnitSize, cfg.MaxInFlightPerUser)

	return ledgerSvc, slots, orchestrator, blobs
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	ledgerSvc, slots, orchestrator, blobs := buildDomain(cfg, logger, db, rdb)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	voiceSvc := voice.NewService(db, logger)
	voiceHandler := voice.NewHandler(voiceSvc, logger, auditWriter)
	srv.APIRouter.Mount("/voices", voiceHandler.Routes())

	ledgerHandler := ledger.NewHandler(ledgerSvc, logger, auditWriter, cfg.CreditsUnitLabel)
	srv.APIRouter.Mount("/", ledgerHandler.Routes())
	srv.AdminRouter.Mount("/", ledgerHandler.AdminRoutes())
	srv.AdminRouter.Mount("/audit-log", audit.NewHandler(db, logger).Routes())

	synthesisHandler := synthesis.NewHandler(orchestrator, blobs, logger)
	srv.APIRouter.Mount("/voices/{voiceID}/stories/{storyID}/audio", synthesisHandler.Routes())

	// slots is driven indirectly through orchestrator.StartSynthesis and,
	// in worker mode, the runtime's process_queue/reclaim_idle beats; the
	// HTTP layer never calls it directly.
	_ = slots

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	ledgerSvc, slots, orchestrator, _ := buildDomain(cfg, logger, db, rdb)

	notifier := alerting.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack alerting enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack alerting disabled (SLACK_BOT_TOKEN not set)")
	}

	rt := worker.NewRuntime(logger, slots, orchestrator, ledgerSvc, blobstore.NewFileStore("./data/blobs", ""), providers, worker.Config{
		MaxRetries:         cfg.MaxRetries,
		QueuePollInterval:  cfg.QueuePollInterval(),
		ReclaimInterval:    cfg.ReclaimInterval(),
		ExpireLotsInterval: cfg.ExpireLotsInterval(),
	})

	// Rewire the domain services' dispatchers to point at this runtime now
	// that it exists — slotmanager.Manager and synthesis.Orchestrator are
	// built without a dispatcher in buildDomain to avoid a construction
	// cycle (the runtime itself depends on both).
	slots.SetDispatcher(rt)
	orchestrator.SetDispatcher(rt)

	return rt.Run(ctx, cfg.WorkerCount)
}
