// Package main provides the tailcut entry point: it analyzes finished
// meeting recordings for trailing silence and splits them to reclaim
// disk space.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tailcut/tailcut/internal/bootstrap"
	"github.com/tailcut/tailcut/internal/config"
	"github.com/tailcut/tailcut/internal/split"
	"github.com/tailcut/tailcut/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: %s <recording>...", filepath.Base(os.Args[0]))
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting tailcut",
		slog.Float64("min_duration", cfg.MinDurationForAnalysis),
		slog.Float64("silence_threshold_db", cfg.SilenceThresholdDB),
		slog.Float64("min_silence_duration", cfg.MinSilenceDuration),
		slog.Float64("buffer_time", cfg.BufferTime),
		slog.Int("workers", cfg.AnalysisWorkers),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Registry.KillAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Forward shutdown signals into context cancellation
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdownCh
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
		cancel()
	}()

	deps.Queue.Start(ctx)

	pending := 0
	for _, path := range os.Args[1:] {
		if split.IsSilenceSegment(path) {
			logger.Info("skipping silence segment",
				slog.String("path", path),
			)
			continue
		}
		taskID, err := deps.Queue.Enqueue(uuid.NewString(), path)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", path, err)
		}
		logger.Debug("enqueued",
			slog.String("task_id", taskID),
			slog.String("path", path),
		)
		pending++
	}

	// The consumer keeps draining events through shutdown: workers block
	// publishing to a full events channel, so abandoning it would leave
	// them stuck and Shutdown would never finish.
	var failed bool
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		remaining := pending
		for remaining > 0 {
			ev, ok := <-deps.Queue.Events()
			if !ok {
				return
			}
			remaining--
			failed = handleEvent(ctx, deps, logger, ev) || failed
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := deps.Queue.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	<-drained

	if failed {
		return fmt.Errorf("one or more analyses failed")
	}
	return nil
}

// handleEvent prints the analysis outcome and uploads the trimmed
// meeting artifact when a split happened and upload is configured.
// It returns true when the task failed.
func handleEvent(ctx context.Context, deps *bootstrap.Dependencies, logger *slog.Logger, ev worker.Event) bool {
	task := ev.Task
	if task.Status == worker.StatusFailed {
		logger.Error("analysis failed",
			slog.String("path", task.FilePath),
			slog.String("error", task.Err.Error()),
		)
		return true
	}

	out, err := json.Marshal(task.Outcome)
	if err == nil {
		fmt.Println(string(out))
	}

	if task.Outcome != nil && task.Outcome.SilenceDetected {
		uploadArtifact(ctx, deps, logger, task)
	}
	return false
}

// uploadArtifact pushes the trimmed meeting segment to cloud storage.
// Upload failures are logged, never fatal: the local file stays put.
func uploadArtifact(ctx context.Context, deps *bootstrap.Dependencies, logger *slog.Logger, task worker.Task) {
	key := task.SessionID + "/" + filepath.Base(task.Outcome.MeetingPath)
	url, err := deps.Uploader.Upload(ctx, task.Outcome.MeetingPath, key)
	if err != nil {
		logger.Warn("artifact upload skipped",
			slog.String("path", task.Outcome.MeetingPath),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("meeting artifact uploaded",
		slog.String("url", url),
	)
}
