package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/config"
	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	anchorinfra "github.com/Testiot539/feec-workbench-daemon/internal/infra/anchor"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/anchor/datalog"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/db"
	httpinfra "github.com/Testiot539/feec-workbench-daemon/internal/infra/http"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/metrics"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/policyopa"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/printer"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/ratelimit"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/recorder"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/storage/ipfsgw"
	"github.com/Testiot539/feec-workbench-daemon/internal/usecase"
)

func main() {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	schemas := db.NewSchemaRepository(store.DB)
	employees := db.NewEmployeeRepository(store.DB)
	units := db.NewUnitRepository(store.DB, schemas)
	sessions := db.NewSessionRepository(store.DB)
	anchors := db.NewAnchorRepository(store.DB)
	anchorAttempts := db.NewAnchorAttemptRepository(store.DB)
	auditRepo := db.NewAuditEventRepository(store.DB)

	registry := metrics.NewRegistry()

	audit := &usecase.AuditEmitter{
		Repo:      auditRepo,
		Workbench: cfg.WorkbenchNumber,
	}

	var policy domain.PolicyEngine = policyopa.AllowAll{}
	if cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(ctx, cfg.PolicyBundlePath)
		if err != nil {
			log.Fatalf("failed to load policy bundle: %v", err)
		}
		policy = engine
	}

	var labelPrinter usecase.LabelPrinter
	if cfg.PrinterEnable {
		client, err := printer.NewClient(cfg.PrinterBaseURL, nil)
		if err != nil {
			log.Fatalf("failed to init printer: %v", err)
		}
		labelPrinter = client
	}

	var camera usecase.Recorder
	if cfg.CameraEnable {
		client, err := recorder.NewClient(cfg.CameraBaseURL, nil)
		if err != nil {
			log.Fatalf("failed to init camera: %v", err)
		}
		camera = client
	}

	pipeline := anchorinfra.NewPipeline(anchorinfra.Config{
		StorageEnabled: cfg.StorageEnable,
		LedgerEnabled:  cfg.LedgerEnable,
		MaxAttempts:    cfg.AnchorMaxAttempts,
		RetryBase:      cfg.AnchorRetryBase(),
		SweepInterval:  cfg.AnchorSweepInterval(),
		QueueSize:      cfg.AnchorQueueSize,
		PrintQR:        cfg.PrinterEnable && cfg.PrintQR,
	})
	pipeline.Units = units
	pipeline.Anchors = anchors
	pipeline.Attempts = anchorAttempts
	pipeline.Printer = labelPrinter
	pipeline.Audit = audit
	pipeline.Metrics = registry
	if cfg.StorageEnable {
		storage, err := ipfsgw.NewClient(cfg.StorageBaseURL, nil)
		if err != nil {
			log.Fatalf("failed to init storage gateway: %v", err)
		}
		pipeline.Storage = storage
	}
	if cfg.LedgerEnable {
		ledger, err := datalog.NewClient(cfg.LedgerBaseURL, nil)
		if err != nil {
			log.Fatalf("failed to init ledger bridge: %v", err)
		}
		pipeline.Ledger = ledger
	}

	unitRegistry := &usecase.UnitRegistry{
		Schemas: schemas,
		Units:   units,
		Audit:   audit,
		Metrics: registry,
	}
	if cfg.PrintBarcode {
		unitRegistry.Printer = labelPrinter
	}
	sessionManager := &usecase.StageSessionManager{
		Units:        units,
		Employees:    employees,
		Sessions:     sessions,
		Policy:       policy,
		Publisher:    pipeline,
		Recorder:     camera,
		Printer:      labelPrinter,
		Audit:        audit,
		Metrics:      registry,
		StaleAfter:   cfg.SessionStaleAfter(),
		PrintSealTag: cfg.PrintSecurityTag,
	}
	workbench := usecase.NewWorkbench(cfg.WorkbenchNumber, unitRegistry, sessionManager, employees, audit)

	var limiter domain.RateLimiter
	if cfg.RateLimitRequests > 0 {
		if cfg.RedisAddr != "" {
			limiter, err = ratelimit.NewRedisLimiter(ratelimit.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
				Prefix:   fmt.Sprintf("workbench:%d:ratelimit", cfg.WorkbenchNumber),
			})
			if err != nil {
				log.Fatalf("failed to init redis rate limiter: %v", err)
			}
		} else {
			limiter = ratelimit.NewMemoryLimiter(nil, cfg.RateLimitMaxKeys)
		}
	}

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Workbench:      workbench,
		Registry:       unitRegistry,
		Sessions:       sessionManager,
		Anchors:        anchors,
		AnchorAttempts: anchorAttempts,
		AnchorDriver:   pipeline,
		AuditRepo:      auditRepo,
		MetricsHandler: registry.Handler(),
		RateLimiter:    limiter,
	})

	go pipeline.Run(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}
	go func() {
		log.Printf("workbench %d listening on %s", cfg.WorkbenchNumber, cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	workbench.Shutdown(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
