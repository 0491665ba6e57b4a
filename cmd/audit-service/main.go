package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audit-service/internal/auth"
	"audit-service/internal/config"
	"audit-service/internal/db"
	"audit-service/internal/detect"
	httphandler "audit-service/internal/http"
	"audit-service/internal/http/middleware"
	"audit-service/internal/logger"
	"audit-service/internal/media"
	"audit-service/internal/repository"
	"audit-service/internal/scoring"
	"audit-service/internal/service"
	"audit-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	policy, err := loadPolicy(cfg)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to load scoring policy")
	}
	appLogger.Info().Str("policy", policy.Name).Msg("scoring policy loaded")

	reportRepo := repository.NewReportRepository(database)

	detector := detect.NewClient(detect.Config{
		APIURL:     cfg.Detector.APIURL,
		APIKey:     cfg.Detector.APIKey,
		Workspace:  cfg.Detector.Workspace,
		WorkflowID: cfg.Detector.WorkflowID,
		Timeout:    cfg.Detector.Timeout,
	}, appLogger)

	opener := media.NewOpener(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, appLogger)

	// Snapshot storage is optional; audits save without keyframes when it is
	// not configured.
	var keyframes service.KeyframeStore
	snapshotStore, err := storage.NewSnapshotStoreFromEnv()
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize snapshot storage")
	}
	if err != nil {
		appLogger.Warn().Msg("snapshot storage not configured, keyframe uploads will be disabled")
	} else {
		keyframes = snapshotStore
	}

	auditService := service.NewAuditService(
		reportRepo,
		detector,
		opener,
		keyframes,
		scoring.NewScorer(policy),
		service.Options{
			SkipInterval:      cfg.Audit.SkipInterval,
			ProgressInterval:  cfg.Audit.ProgressInterval,
			LiveDuration:      cfg.Audit.LiveDuration,
			PollInterval:      cfg.Audit.PollInterval,
			TargetWidthUpload: cfg.Audit.TargetWidthUpload,
			TargetWidthLive:   cfg.Audit.TargetWidthLive,
			CameraURL:         cfg.Camera.RTSPURL,
			CameraFPS:         cfg.Camera.FPS,
		},
		appLogger,
	)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(auditService, cfg, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, database, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting audit service")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}

// loadPolicy prefers an explicit policy file over the built-in tables.
func loadPolicy(cfg *config.Config) (scoring.Policy, error) {
	if cfg.Audit.PolicyFile != "" {
		return scoring.LoadPolicyFile(cfg.Audit.PolicyFile)
	}
	return scoring.BuiltinPolicy(cfg.Audit.Policy)
}
