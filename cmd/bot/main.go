package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_storefront_bot/internal/config"
	"tg_storefront_bot/internal/feature"
	"tg_storefront_bot/internal/feature/admin"
	"tg_storefront_bot/internal/feature/shop"
	"tg_storefront_bot/internal/health"
	"tg_storefront_bot/internal/lifecycle"
	"tg_storefront_bot/internal/logging"
	"tg_storefront_bot/internal/session"
	"tg_storefront_bot/internal/store"
	"tg_storefront_bot/internal/telegram"
)

const (
	dbConnectTimeout    = 10 * time.Second
	dbSchemaTimeout     = 10 * time.Second
	sessionSetupTimeout = 5 * time.Second
	httpShutdownTimeout = 10 * time.Second
	runWaitTimeout      = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logBuffer := logging.NewBuffer(logging.DefaultBufferCapacity)
	logger, err := logging.Setup(cfg, logBuffer)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	for _, raw := range cfg.InvalidAdmins {
		logger.WithFields(logging.Fields{
			"event": "config_admin_skipped",
			"value": raw,
		}).Warn("skipping malformed admin id")
	}

	mode := "polling"
	if cfg.WebhookMode() {
		mode = "webhook"
	}

	if *configOnly {
		fmt.Println("configuration check: ok")
		fmt.Printf("mode=%s port=%d admins=%d env=%s\n", mode, cfg.Port, len(cfg.AdminIDs), cfg.AppEnv)
		return
	}

	logger.WithFields(logging.Fields{
		"event": "startup",
		"mode":  mode,
		"port":  cfg.Port,
	}).Info("configuration loaded")

	// The health server comes up before the heavy startup phases so the
	// platform probe sees 200 "initializing" instead of connection refused,
	// and so a failed phase stays observable via /health/init.
	initStatus := lifecycle.NewStatus()
	httpServer := health.NewServer(cfg, nil, nil, initStatus, logBuffer, logger)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("http server error")
		}
	}()

	fatal := func(phase string, err error) {
		initStatus.AppendError(fmt.Sprintf("%s: %v", phase, err))
		logger.WithError(err).Error(phase)
		fmt.Fprintf(os.Stderr, "%s: %v\n", phase, err)

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
		_ = httpServer.Shutdown(shutdownCtx)
		cancelShutdown()
		os.Exit(1)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	storeManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		initStatus.SetDBStatus(fmt.Sprintf("failed: %v", err))
		fatal("database connection error", err)
	}

	logger.WithField("event", "db_connect").Info("connected to postgres")

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), dbSchemaTimeout)
	if err := storeManager.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		initStatus.SetDBStatus(fmt.Sprintf("failed: %v", err))
		fatal("schema setup error", err)
	}
	if err := storeManager.Seed(schemaCtx); err != nil {
		cancelSchema()
		initStatus.SetDBStatus(fmt.Sprintf("failed: %v", err))
		fatal("catalog seed error", err)
	}
	cancelSchema()

	logger.WithField("event", "db_schema").Info("ensured schema and demo catalog")

	sessionCtx, cancelSessions := context.WithTimeout(context.Background(), sessionSetupTimeout)
	sessions, err := session.New(sessionCtx, cfg)
	cancelSessions()
	if err != nil {
		fatal("session store setup error", err)
	}

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		fatal("telegram client setup error", err)
	}

	shopHandler := shop.NewHandler(tgClient, storeManager, sessions, logger)
	adminHandler := admin.NewHandler(tgClient, storeManager, sessions, logger)
	router := feature.NewRouter(cfg, shopHandler, adminHandler, storeManager, logger)
	tgClient.OnUpdate(router.Dispatch)

	manager := lifecycle.NewManager(cfg, tgClient, storeManager, sessions, initStatus, logger)
	httpServer.Attach(storeManager, tgClient)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runDone := make(chan error, 1)
	go func() {
		runDone <- manager.Run(signalCtx)
	}()

	exitCode := 0
	select {
	case err := <-runDone:
		if err != nil {
			logger.WithError(err).Error("startup failed")
			fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
			exitCode = 1
		}
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal")

		waitCtx, cancelWait := context.WithTimeout(context.Background(), runWaitTimeout)
		select {
		case <-runDone:
		case <-waitCtx.Done():
			logger.WithField("event", "run_shutdown_timeout").Warn("timed out waiting for lifecycle to stop")
		}
		cancelWait()
	}

	manager.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}
	cancelShutdown()

	if err := storeManager.Close(); err != nil {
		logger.WithError(err).Error("database close error")
	} else {
		logger.WithField("event", "db_disconnect").Info("postgres pool closed")
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
	os.Exit(exitCode)
}
