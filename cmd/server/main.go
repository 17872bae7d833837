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

	"paperlens-backend/app"
	"paperlens-backend/config"
	"paperlens-backend/extractor"
	"paperlens-backend/handlers"

	"github.com/gin-gonic/gin"
)

func main() {
	if !config.LoadDotEnv() {
		slog.Warn("no .env file found, using environment variables")
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- a.Tasks.Start(ctx)
	}()

	r := gin.Default()
	handlers.RegisterRoutes(r,
		handlers.NewDocumentHandler(a.Documents, a.Storage, extractor.NewPDFExtractor(logger), cfg.MaxUploadBytes, logger),
		handlers.NewExtractionHandler(a.Extraction),
		handlers.NewTaskHandler(a.Tasks, cfg.TaskPollTimeout),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := <-workersDone; err != nil {
		logger.Error("task workers stopped with error", "error", err)
	}
}
