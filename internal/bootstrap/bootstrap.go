// Package bootstrap provides dependency initialization for tailcut.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/tailcut/tailcut/internal/config"
	"github.com/tailcut/tailcut/internal/media"
	"github.com/tailcut/tailcut/internal/session"
	"github.com/tailcut/tailcut/internal/silence"
	"github.com/tailcut/tailcut/internal/split"
	"github.com/tailcut/tailcut/internal/storage"
	"github.com/tailcut/tailcut/internal/worker"
)

// Dependencies holds all initialized dependencies for the application.
type Dependencies struct {
	Queue    *worker.Queue
	Service  *session.Service
	Recorder *session.MemoryRecorder
	Uploader storage.Uploader
	Registry *media.Registry
}

// NewDependencies creates and initializes all dependencies from config.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	registry := media.NewRegistry(logger)

	prober := media.NewFFmpegProber(cfg.FFmpegPath, cfg.FFprobePath,
		media.WithRegistrar(registry),
	)

	sampler := silence.NewSampler(prober, cfg.ProbeWindow, logger)
	analyzer := silence.NewAnalyzer(cfg.SilenceThresholdDB, cfg.MinSilenceDuration)

	splitter := split.NewSplitter(prober, split.Options{
		BufferSeconds: cfg.BufferTime,
		KeepBackup:    cfg.KeepBackup,
	}, logger)

	recorder := session.NewMemoryRecorder()

	svc := session.NewService(
		prober,
		sampler,
		analyzer,
		splitter,
		recorder,
		logger,
		session.WithMinDuration(cfg.MinDurationForAnalysis),
	)

	queue := worker.NewQueue(svc, cfg.AnalysisWorkers, 16, logger)

	uploader, err := initUploader(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Queue:    queue,
		Service:  svc,
		Recorder: recorder,
		Uploader: uploader,
		Registry: registry,
	}, nil
}

// initUploader creates the artifact uploader based on configuration.
func initUploader(cfg *config.Config, logger *slog.Logger) (storage.Uploader, error) {
	if !cfg.S3Enabled() {
		logger.Info("artifact upload disabled")
		return storage.Disabled{}, nil
	}

	s3Cfg := storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Prefix:          cfg.S3Prefix,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}
	uploader, err := storage.NewS3Uploader(s3Cfg)
	if err != nil {
		return nil, fmt.Errorf("create S3 uploader: %w", err)
	}
	logger.Info("S3 artifact upload configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return uploader, nil
}
