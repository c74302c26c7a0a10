package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/emberbrowser/sentinel/internal/api/routes"
	"github.com/emberbrowser/sentinel/internal/audit"
	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/database"
	"github.com/emberbrowser/sentinel/internal/enforcer"
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/metrics"
	"github.com/emberbrowser/sentinel/internal/notify"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
	"github.com/emberbrowser/sentinel/internal/store"
	"github.com/emberbrowser/sentinel/internal/template"
	"github.com/emberbrowser/sentinel/internal/version"
)

func main() {
	dataDir := flag.String("data", "data", "data directory for the database, audit log and process log")
	configPath := flag.String("config", "", "config file path (default <data>/config.json)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *configPath == "" {
		*configPath = filepath.Join(*dataDir, "config.json")
	}

	// Process log with rotation alongside stdout.
	logDir := filepath.Join(*dataDir, "logs")
	_ = os.MkdirAll(logDir, 0o755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "sentinel.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotator)
	logger.Init(*debug, mw)

	log.SetOutput(mw)
	log.Printf("starting %s %s", version.Name, version.Full())

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.Enabled {
		log.Printf("%s is disabled by configuration, exiting", version.Name)
		return
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	policyStore := store.NewPolicyStore(db, cfg.PolicyCacheSize)
	limiter := ratelimit.New(cfg.RateLimit)

	auditLog, err := audit.New(cfg.AuditLog)
	if err != nil {
		log.Fatalf("open audit log: %v", err)
	}
	defer auditLog.Close()

	notifier := notify.New(cfg.Notifications)
	defer notifier.Close()

	engine := template.NewEngine(policyStore)
	if err := engine.SeedBuiltins(); err != nil {
		log.Fatalf("seed builtin templates: %v", err)
	}

	enf := enforcer.New(cfg, policyStore, limiter, auditLog, notifier)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// Background janitor: expired policies hourly, old threats daily, and a
	// periodic audit flush so short bursts are not stuck in the buffer.
	janitor := cron.New()
	_, _ = janitor.AddFunc("@hourly", func() {
		if _, err := policyStore.PurgeExpiredPolicies(); err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("expired policy purge failed")
		}
	})
	_, _ = janitor.AddFunc("@daily", func() {
		if _, err := policyStore.PurgeOldThreats(cfg.ThreatRetentionDays); err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("threat retention purge failed")
		}
	})
	_, _ = janitor.AddFunc("@every 1m", func() {
		if err := auditLog.Flush(); err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("audit flush failed")
		}
	})
	janitor.Start()
	defer janitor.Stop()

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.Register(router, routes.Deps{
		Config:   cfg,
		Store:    policyStore,
		Limiter:  limiter,
		Audit:    auditLog,
		Enforcer: enf,
		Engine:   engine,
		Registry: registry,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
