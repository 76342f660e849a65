package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"welfarecheck-platform/internal/audit"
	"welfarecheck-platform/internal/auth"
	"welfarecheck-platform/internal/callrecords"
	"welfarecheck-platform/internal/config"
	"welfarecheck-platform/internal/httpapi"
	"welfarecheck-platform/internal/metrics"
	"welfarecheck-platform/internal/provider"
	"welfarecheck-platform/internal/reconciler"
	"welfarecheck-platform/internal/reporting"
	"welfarecheck-platform/internal/scheduling"
	"welfarecheck-platform/pkg/logger"
	"welfarecheck-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	voice, err := provider.NewRetellProvider(cfg.Provider)
	if err != nil {
		log.Error("provider init failed", "err", err)
		os.Exit(1)
	}

	metrics.Init()

	store := callrecords.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewMemoryRepo()) // TODO: Postgres audit repo once the audit_events table lands
	rec := reconciler.New(store, reconciler.Options{
		Metrics: metrics.Recorder{},
		Events:  reconciler.AuditAdapter{Audit: auditSvc},
	})
	schedSvc := scheduling.NewService(store, voice, rdb, auditSvc, cfg.Calls)
	reportSvc := reporting.NewService(reporting.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		auth:    authManager,
		db:      db,
		redis:   rdb,
		webhook: reconciler.WebhookHandler{Reconciler: rec, WebhookSecret: cfg.Provider.WebhookSecret},
		api: httpapi.Handlers{
			Auth:       authManager,
			Scheduling: schedSvc,
			Reporting:  reportSvc,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
