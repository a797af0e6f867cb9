// Package media provides low-level audio probing and segment extraction.
// It wraps an external command-line media tool (ffmpeg/ffprobe); each
// operation spawns one short-lived subprocess and shares no state with
// other calls.
package media

import (
	"context"
	"errors"
	"os"
)

// Static errors for media operations.
var (
	// ErrNoAudioStream is returned when a file has no decodable audio track.
	ErrNoAudioStream = errors.New("media: no decodable audio stream")
	// ErrInvalidWindow is returned when a level probe window is not positive.
	ErrInvalidWindow = errors.New("media: probe window must be positive")
)

// DefaultLevelWindow is the width in seconds of the window used to measure
// the mean audio level at a point in the timeline.
const DefaultLevelWindow = 30.0

// Metadata describes an audio file as reported by the external tool.
// It is derived fresh from the file on every call and never cached.
type Metadata struct {
	// DurationSeconds is the total playable duration.
	DurationSeconds float64
	// SizeBytes is the container size on disk.
	SizeBytes int64
	// BitRateBPS is the overall bit rate in bits per second.
	BitRateBPS int64
}

// Prober defines the low-level media capability the analysis pipeline
// builds on: metadata, windowed loudness measurement, stream validation
// and lossless segment extraction.
type Prober interface {
	// Metadata returns duration, size and bit rate for the file.
	Metadata(ctx context.Context, path string) (Metadata, error)

	// LevelAt measures the mean audio level in dB over the window
	// [startSeconds, startSeconds+windowSeconds]. Callers decide how to
	// treat failures; the silence sampler deliberately maps them to a
	// quiet sentinel rather than aborting.
	LevelAt(ctx context.Context, path string, startSeconds, windowSeconds float64) (float64, error)

	// ValidateAudio returns ErrNoAudioStream if the file carries no
	// decodable audio track.
	ValidateAudio(ctx context.Context, path string) error

	// ExtractSegment stream-copies (no re-encode) the time range starting
	// at startSeconds into outputPath. A durationSeconds <= 0 extracts
	// through the end of the file.
	ExtractSegment(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error
}

// ProcessRegistrar tracks spawned subprocesses so the hosting application
// can forcibly terminate them on shutdown. The prober calls it when
// provided and proceeds normally when it is not.
type ProcessRegistrar interface {
	// Register is called after the subprocess has started.
	Register(p *os.Process)
	// Unregister is called once the subprocess has exited.
	Unregister(p *os.Process)
}
