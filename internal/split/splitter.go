// Package split carves a recording into a meeting segment and a silence
// segment at a given boundary time. The split is lossless (stream-copy)
// and recoverable: the original is backed up before any destructive step
// and restored if anything downstream fails.
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultBufferSeconds is how much audio past the boundary stays in the
// meeting segment, so trailing speech that continues slightly past the
// last active sample is never truncated.
const DefaultBufferSeconds = 120.0

// silenceMarker is the suffix inserted before the extension of a silence
// segment, e.g. recording.silence.opus. Downstream file classifiers skip
// files carrying it.
const silenceMarker = ".silence"

// Static errors for split operations.
var (
	// ErrInvalidInput is returned when the split input is missing, not a
	// regular file, or empty.
	ErrInvalidInput = errors.New("split: invalid input file")
	// ErrEmptySegment is returned when an extracted segment has zero bytes.
	ErrEmptySegment = errors.New("split: extracted segment is empty")
	// ErrInvalidSplitTime is returned when the boundary time is not positive.
	ErrInvalidSplitTime = errors.New("split: split time must be positive")
)

// Error wraps any failure of the split pipeline after which the original
// file was successfully restored from backup.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("split %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RestoreError is the most severe failure mode: the split failed AND
// restoring the original from backup failed too. The on-disk state of
// Path is unknown and must be flagged for manual review.
type RestoreError struct {
	Path       string
	BackupPath string
	SplitErr   error
	Err        error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("split %s failed (%v) and restore from %s failed (%v): file state unknown",
		e.Path, e.SplitErr, e.BackupPath, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// Result reports a completed split. Size fields are exact byte counts;
// any percentages or MB figures shown elsewhere are derived from them.
type Result struct {
	MeetingPath string
	SilencePath string
	// BackupPath is set only when the caller asked to keep the backup.
	BackupPath string

	OriginalSizeBytes int64
	MeetingSizeBytes  int64
	SilenceSizeBytes  int64
	SpaceSavedBytes   int64
	// CompressionRatio is SpaceSavedBytes / OriginalSizeBytes.
	CompressionRatio float64

	SplitTimeSeconds float64
	BufferSeconds    float64
}

// SegmentExtractor is the slice of the media prober the splitter needs:
// lossless extraction plus output validation.
type SegmentExtractor interface {
	ExtractSegment(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error
	ValidateAudio(ctx context.Context, path string) error
}

// Options configures a Splitter.
type Options struct {
	// BufferSeconds extends the meeting segment past the boundary.
	BufferSeconds float64
	// KeepBackup preserves the backup file after a successful split.
	KeepBackup bool
}

// DefaultOptions returns the default split options.
func DefaultOptions() Options {
	return Options{BufferSeconds: DefaultBufferSeconds}
}

// Splitter performs the backup → extract → swap → validate pipeline.
// Concurrent splits of the same path are undefined behavior; the caller
// must hand a file to at most one split at a time.
type Splitter struct {
	extractor SegmentExtractor
	opts      Options
	logger    *slog.Logger
}

// NewSplitter creates a Splitter. A zero BufferSeconds in opts falls back
// to DefaultBufferSeconds.
func NewSplitter(extractor SegmentExtractor, opts Options, logger *slog.Logger) *Splitter {
	if opts.BufferSeconds <= 0 {
		opts.BufferSeconds = DefaultBufferSeconds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

// SplitAtTime splits inputPath at the boundary: the meeting segment
// [0, splitTime+buffer] replaces the original file, and the silence
// segment [splitTime, end] lands in a sibling file marked so downstream
// classifiers can skip it. On any failure the original is restored from
// backup before the error is returned.
func (s *Splitter) SplitAtTime(ctx context.Context, inputPath string, splitTimeSeconds float64) (*Result, error) {
	if splitTimeSeconds <= 0 {
		return nil, ErrInvalidSplitTime
	}

	originalSize, err := validateInput(inputPath)
	if err != nil {
		return nil, err
	}

	tx, err := beginTransaction(inputPath)
	if err != nil {
		return nil, &Error{Path: inputPath, Err: err}
	}

	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	tmpMeetingPath := fmt.Sprintf("%s_meeting_%s%s", base, uuid.NewString()[:8], ext)
	silencePath := SilencePathFor(inputPath)

	s.logger.Info("splitting recording",
		slog.String("path", inputPath),
		slog.Float64("split_time", splitTimeSeconds),
		slog.Float64("buffer", s.opts.BufferSeconds),
		slog.Int64("original_bytes", originalSize),
	)

	// Meeting segment keeps a trailing buffer past the boundary.
	if err := s.extractor.ExtractSegment(ctx, inputPath, tmpMeetingPath, 0, splitTimeSeconds+s.opts.BufferSeconds); err != nil {
		return nil, s.fail(tx, fmt.Errorf("extract meeting segment: %w", err), tmpMeetingPath, silencePath)
	}

	// Silence segment starts at the boundary and runs to end of file, so
	// the buffer region exists in both outputs and no audio is lost.
	if err := s.extractor.ExtractSegment(ctx, inputPath, silencePath, splitTimeSeconds, 0); err != nil {
		return nil, s.fail(tx, fmt.Errorf("extract silence segment: %w", err), tmpMeetingPath, silencePath)
	}

	// Swap the meeting segment into place of the original.
	if err := os.Rename(tmpMeetingPath, inputPath); err != nil {
		return nil, s.fail(tx, fmt.Errorf("replace original with meeting segment: %w", err), tmpMeetingPath, silencePath)
	}

	meetingSize, silenceSize, err := s.validateOutputs(ctx, inputPath, silencePath)
	if err != nil {
		return nil, s.fail(tx, err, tmpMeetingPath, silencePath)
	}

	if err := tx.commit(s.opts.KeepBackup); err != nil {
		// Outputs are valid at this point; a leftover backup is a disk
		// hygiene problem, not a data-loss one.
		s.logger.Warn("split committed but backup cleanup failed",
			slog.String("backup", tx.backupPath),
			slog.String("error", err.Error()),
		)
	}

	result := &Result{
		MeetingPath:       inputPath,
		SilencePath:       silencePath,
		OriginalSizeBytes: originalSize,
		MeetingSizeBytes:  meetingSize,
		SilenceSizeBytes:  silenceSize,
		SpaceSavedBytes:   originalSize - meetingSize,
		CompressionRatio:  float64(originalSize-meetingSize) / float64(originalSize),
		SplitTimeSeconds:  splitTimeSeconds,
		BufferSeconds:     s.opts.BufferSeconds,
	}
	if s.opts.KeepBackup {
		result.BackupPath = tx.backupPath
	}

	s.logger.Info("split complete",
		slog.String("meeting", result.MeetingPath),
		slog.String("silence", result.SilencePath),
		slog.Int64("space_saved_bytes", result.SpaceSavedBytes),
		slog.Float64("compression_ratio", result.CompressionRatio),
	)

	return result, nil
}

// validateOutputs stats and probes both segments; either being empty or
// missing an audio stream fails the split.
func (s *Splitter) validateOutputs(ctx context.Context, meetingPath, silencePath string) (int64, int64, error) {
	meetingSize, err := nonEmptySize(meetingPath)
	if err != nil {
		return 0, 0, fmt.Errorf("meeting segment: %w", err)
	}
	silenceSize, err := nonEmptySize(silencePath)
	if err != nil {
		return 0, 0, fmt.Errorf("silence segment: %w", err)
	}

	if err := s.extractor.ValidateAudio(ctx, meetingPath); err != nil {
		return 0, 0, fmt.Errorf("meeting segment: %w", err)
	}
	if err := s.extractor.ValidateAudio(ctx, silencePath); err != nil {
		return 0, 0, fmt.Errorf("silence segment: %w", err)
	}

	return meetingSize, silenceSize, nil
}

// fail cleans up partial outputs and rolls the transaction back. It
// returns *Error when restoration succeeded and *RestoreError when it did
// not.
func (s *Splitter) fail(tx *transaction, cause error, partials ...string) error {
	for _, p := range partials {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove partial output",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := tx.rollback(); err != nil {
		restoreErr := &RestoreError{
			Path:       tx.originalPath,
			BackupPath: tx.backupPath,
			SplitErr:   cause,
			Err:        err,
		}
		s.logger.Error("split rollback failed, file state unknown",
			slog.String("path", tx.originalPath),
			slog.String("backup", tx.backupPath),
			slog.String("split_error", cause.Error()),
			slog.String("restore_error", err.Error()),
		)
		return restoreErr
	}

	if tx.cleanupErr != nil {
		s.logger.Warn("original restored but backup cleanup failed",
			slog.String("backup", tx.backupPath),
			slog.String("error", tx.cleanupErr.Error()),
		)
	}

	s.logger.Warn("split failed, original restored",
		slog.String("path", tx.originalPath),
		slog.String("error", cause.Error()),
	)
	return &Error{Path: tx.originalPath, Err: cause}
}

// validateInput confirms the input exists, is a regular file and is
// non-empty, returning its size.
func validateInput(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidInput, path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s: not a regular file", ErrInvalidInput, path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s: empty file", ErrInvalidInput, path)
	}
	return info.Size(), nil
}

// nonEmptySize returns the file size, failing on zero bytes.
func nonEmptySize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptySegment, path)
	}
	return info.Size(), nil
}

// SilencePathFor returns the sibling path a silence segment is written
// to: <name>.silence<ext>.
func SilencePathFor(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + silenceMarker + ext
}

// IsSilenceSegment reports whether the path follows the silence-segment
// naming convention. File classifiers use it to skip silence segments
// during further processing and upload.
func IsSilenceSegment(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasSuffix(strings.TrimSuffix(filepath.Base(path), ext), silenceMarker)
}
