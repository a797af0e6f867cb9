package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tailcut/tailcut/internal/media"
	"github.com/tailcut/tailcut/internal/silence"
	"github.com/tailcut/tailcut/internal/split"
)

// DefaultMinDurationForAnalysis gates which recordings are worth
// analyzing at all, in seconds.
const DefaultMinDurationForAnalysis = 3600.0

// MetadataProber is the slice of the media prober the orchestrator needs.
type MetadataProber interface {
	Metadata(ctx context.Context, path string) (media.Metadata, error)
}

// ProfileSampler builds a loudness profile over a recording's timeline.
type ProfileSampler interface {
	Sample(ctx context.Context, path string, totalDurationSeconds float64) ([]silence.Sample, error)
}

// PatternAnalyzer decides whether a profile ends in sustained silence.
type PatternAnalyzer interface {
	Analyze(samples []silence.Sample) silence.Detection
}

// FileSplitter carves a recording at a boundary time.
type FileSplitter interface {
	SplitAtTime(ctx context.Context, inputPath string, splitTimeSeconds float64) (*split.Result, error)
}

// Outcome is the structured result of analyzing one recording. Exactly
// one of the three shapes applies: not analyzed (below the duration
// gate), analyzed without an actionable pattern, or analyzed and split.
type Outcome struct {
	SessionID string `json:"session_id"`

	Analyzed bool   `json:"analyzed"`
	Reason   string `json:"reason,omitempty"`
	// DurationSeconds is the recording's total duration at analysis time.
	DurationSeconds float64 `json:"duration"`

	SilenceDetected bool `json:"silence_detected"`

	// Split details, set only when SilenceDetected.
	OriginalSizeBytes      int64   `json:"original_size,omitempty"`
	MeetingSizeBytes       int64   `json:"meeting_size,omitempty"`
	SilenceSizeBytes       int64   `json:"silence_size,omitempty"`
	MeetingDurationSeconds float64 `json:"meeting_duration,omitempty"`
	SilenceDurationSeconds float64 `json:"total_silence_duration,omitempty"`
	SpaceSavedMB           float64 `json:"space_saved_mb,omitempty"`
	MeetingPath            string  `json:"meeting_path,omitempty"`
	SilencePath            string  `json:"silence_path,omitempty"`
}

// Service is the post-recording analyzer. It runs a single analysis to
// completion with no internal parallelism; probes are issued one
// subprocess at a time.
type Service struct {
	prober      MetadataProber
	sampler     ProfileSampler
	analyzer    PatternAnalyzer
	splitter    FileSplitter
	recorder    Recorder
	logger      *slog.Logger
	minDuration float64
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithMinDuration overrides the minimum recording duration eligible for
// analysis.
func WithMinDuration(seconds float64) ServiceOption {
	return func(s *Service) {
		if seconds > 0 {
			s.minDuration = seconds
		}
	}
}

// NewService creates a post-recording analyzer service.
func NewService(
	prober MetadataProber,
	sampler ProfileSampler,
	analyzer PatternAnalyzer,
	splitter FileSplitter,
	recorder Recorder,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		prober:      prober,
		sampler:     sampler,
		analyzer:    analyzer,
		splitter:    splitter,
		recorder:    recorder,
		logger:      logger,
		minDuration: DefaultMinDurationForAnalysis,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeRecording analyzes a finished recording and, when a trailing
// silence pattern is found, splits the file and reports the result to
// the recorder. Errors from the prober, sampler, analyzer or splitter
// propagate unmodified; the caller decides user-facing messaging.
func (s *Service) AnalyzeRecording(ctx context.Context, sessionID, filePath string) (*Outcome, error) {
	meta, err := s.prober.Metadata(ctx, filePath)
	if err != nil {
		return nil, err
	}

	if meta.DurationSeconds < s.minDuration {
		s.logger.Info("recording below analysis threshold",
			slog.String("session_id", sessionID),
			slog.Float64("duration", meta.DurationSeconds),
			slog.Float64("min_duration", s.minDuration),
		)
		return &Outcome{
			SessionID:       sessionID,
			Analyzed:        false,
			Reason:          fmt.Sprintf("Under %s duration", humanDuration(s.minDuration)),
			DurationSeconds: meta.DurationSeconds,
		}, nil
	}

	samples, err := s.sampler.Sample(ctx, filePath, meta.DurationSeconds)
	if err != nil {
		return nil, err
	}

	detection := s.analyzer.Analyze(samples)
	if !detection.Found {
		s.logger.Info("no trailing silence pattern",
			slog.String("session_id", sessionID),
			slog.String("reason", detection.Reason),
			slog.Int("samples", len(samples)),
		)
		return &Outcome{
			SessionID:       sessionID,
			Analyzed:        true,
			Reason:          detection.Reason,
			DurationSeconds: meta.DurationSeconds,
		}, nil
	}

	s.logger.Info("trailing silence detected",
		slog.String("session_id", sessionID),
		slog.Float64("meeting_end", detection.MeetingEndSeconds),
		slog.Float64("silence_duration", detection.SilenceDurationSeconds),
		slog.Float64("confidence", detection.ConfidenceRatio),
		slog.Float64("last_active_level_db", detection.LastActiveLevelDB),
	)

	result, err := s.splitter.SplitAtTime(ctx, filePath, detection.MeetingEndSeconds)
	if err != nil {
		return nil, err
	}

	summary := SplitSummary{
		OriginalDurationSeconds: meta.DurationSeconds,
		SplitTimeSeconds:        result.SplitTimeSeconds,
		SilencePath:             result.SilencePath,
		SpaceSavedBytes:         result.SpaceSavedBytes,
	}
	if err := s.recorder.RecordSplit(ctx, sessionID, summary); err != nil {
		return nil, fmt.Errorf("record split: %w", err)
	}

	return &Outcome{
		SessionID:              sessionID,
		Analyzed:               true,
		DurationSeconds:        meta.DurationSeconds,
		SilenceDetected:        true,
		OriginalSizeBytes:      result.OriginalSizeBytes,
		MeetingSizeBytes:       result.MeetingSizeBytes,
		SilenceSizeBytes:       result.SilenceSizeBytes,
		MeetingDurationSeconds: detection.MeetingEndSeconds,
		SilenceDurationSeconds: detection.SilenceDurationSeconds,
		SpaceSavedMB:           float64(result.SpaceSavedBytes) / (1024 * 1024),
		MeetingPath:            result.MeetingPath,
		SilencePath:            result.SilencePath,
	}, nil
}

// humanDuration renders a duration gate for outcome messages, e.g.
// 3600 -> "1 hour", 1800 -> "30 minutes".
func humanDuration(seconds float64) string {
	switch {
	case seconds == 3600:
		return "1 hour"
	case seconds >= 3600:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	default:
		return fmt.Sprintf("%.0f minutes", seconds/60)
	}
}
