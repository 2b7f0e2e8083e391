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

	"callsight/internal/audit"
	"callsight/internal/auth"
	"callsight/internal/calls"
	"callsight/internal/config"
	"callsight/internal/report"
	"callsight/internal/reporting"
	"callsight/internal/voiceai"
	"callsight/pkg/logger"
	"callsight/pkg/utils"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if err := calls.EnsureSchema(rootCtx, db); err != nil {
		log.Error("calls schema init failed", "err", err)
		os.Exit(1)
	}
	if err := audit.EnsureSchema(rootCtx, db); err != nil {
		log.Error("audit schema init failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provider := voiceai.NewClient(voiceai.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		WebhookURL: cfg.WebhookURL(),
	})

	renderer := report.NewPDFRenderer(cfg.SMTP.ReportLetterhead)
	mailer := report.NewSMTPMailer(report.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		To:       cfg.SMTP.ReportRecipient,
	})

	store := calls.NewPostgresStore(db)
	engine := calls.NewEngine(calls.EngineParams{
		Store:      store,
		Provider:   provider,
		Reports:    report.NewDispatcher(renderer, mailer),
		Renderer:   renderer,
		Audit:      audit.NewService(audit.NewPostgresRepo(db)),
		SyncLocker: redislock.New(rdb),
		Logger:     log,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		auth:      authManager,
		calls:     calls.HTTPHandlers{Engine: engine, DB: db, Redis: rdb},
		reporting: reporting.NewService(store),
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

	// Let in-flight report emails finish before the process exits.
	engine.WaitReports()
}
