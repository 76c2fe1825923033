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

	"github.com/noah-isme/assessment-archive/internal/app"
	"github.com/noah-isme/assessment-archive/internal/service"
	"github.com/noah-isme/assessment-archive/pkg/config"
	"github.com/noah-isme/assessment-archive/pkg/jobs"
	"github.com/noah-isme/assessment-archive/pkg/logger"
)

// @title Assessment Archive API
// @version 1.0.0
// @description Schedules, publishes and serves tamper evident archives of LMS assessments
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "archive-worker")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise", "error", err)
	}
	defer a.Close()

	queue := jobs.NewQueue("archive", a.Services.Worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Worker.Concurrency,
		BufferSize: cfg.Worker.BufferSize,
		Logger:     logr.Named("queue"),
	})
	queue.Start(ctx)
	defer queue.Stop()

	dispatcher := service.NewDispatcher(a.Repos.Jobs, queue, a.Metrics, service.DispatcherConfig{
		Interval:   cfg.Worker.DispatchInterval,
		Batch:      cfg.Worker.DispatchBatch,
		StaleAfter: cfg.Worker.StaleAfter,
	}, logr.Named("dispatcher"))
	dispatcher.Start(ctx)

	a.Services.Janitor.Start(ctx, cfg.Archive.JanitorInterval, cfg.Archive.JanitorMaxAge)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown failed", "error", err)
	}
	dispatcher.Wait()
}
