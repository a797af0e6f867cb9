// Package silence implements post-recording trailing-silence detection:
// a sparse loudness sampler over the recording timeline and a pattern
// analyzer that decides where meeting content ends and silence begins.
package silence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tailcut/tailcut/internal/media"
)

// Phase identifies which sampling regime produced a sample. It is kept
// for diagnostics only; the analyzer does not use it.
type Phase int

const (
	// PhaseMeeting covers the dense early walk of the timeline.
	PhaseMeeting Phase = 1
	// PhaseTail covers the sparse walk past the two-hour mark.
	PhaseTail Phase = 2
)

// Sampling schedule. The early window is walked densely because meetings
// mostly end inside it; the tail is walked sparsely because a silence run
// long enough to matter will still be hit. An 8-hour file costs at most
// ~30 probes.
const (
	// meetingStart is where sampling begins, in seconds.
	meetingStart = 300.0
	// meetingEnd is where the dense phase stops, in seconds.
	meetingEnd = 7200.0
	// meetingStep is the dense-phase stride, in seconds.
	meetingStep = 300.0
	// tailStep is the sparse-phase stride past meetingEnd, in seconds.
	tailStep = 1800.0

	// quietSentinelDB is the level recorded when a probe fails. Sampling
	// is fail-open: one flaky probe must never abort a whole analysis,
	// so failures read as maximally quiet instead of propagating.
	quietSentinelDB = -100.0
)

// Sample is one point of the loudness profile.
type Sample struct {
	// TimeSeconds is the window start on the recording timeline.
	TimeSeconds float64
	// LevelDB is the measured mean level, or quietSentinelDB when the
	// probe failed.
	LevelDB float64
	// Phase records the sampling regime that produced the sample.
	Phase Phase
}

// LevelProber is the slice of the media prober the sampler needs.
type LevelProber interface {
	LevelAt(ctx context.Context, path string, startSeconds, windowSeconds float64) (float64, error)
}

// Sampler walks a recording's timeline and builds a sparse loudness
// profile. Probes are issued sequentially, one subprocess at a time.
type Sampler struct {
	prober LevelProber
	window float64
	logger *slog.Logger
}

// NewSampler creates a Sampler measuring each point over the given window
// in seconds. A window <= 0 uses media.DefaultLevelWindow.
func NewSampler(prober LevelProber, windowSeconds float64, logger *slog.Logger) *Sampler {
	if windowSeconds <= 0 {
		windowSeconds = media.DefaultLevelWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		prober: prober,
		window: windowSeconds,
		logger: logger,
	}
}

// Sample produces the loudness profile for a recording of the given total
// duration, ordered by increasing time. The only error it returns is
// context cancellation; individual probe failures are mapped to the quiet
// sentinel.
func (s *Sampler) Sample(ctx context.Context, path string, totalDurationSeconds float64) ([]Sample, error) {
	var samples []Sample

	denseEnd := meetingEnd
	if totalDurationSeconds < denseEnd {
		denseEnd = totalDurationSeconds
	}

	for t := meetingStart; t <= denseEnd; t += meetingStep {
		sample, err := s.sampleAt(ctx, path, t, PhaseMeeting)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	if totalDurationSeconds > meetingEnd {
		for t := meetingEnd + tailStep; t < totalDurationSeconds; t += tailStep {
			sample, err := s.sampleAt(ctx, path, t, PhaseTail)
			if err != nil {
				return nil, err
			}
			samples = append(samples, sample)
		}
		// Always land the final sample on the end of the file so the
		// detected silence run spans the full tail of the recording. The
		// measurement window is pulled back inside the file: a window
		// starting at EOF decodes no frames and the probe always fails,
		// which fail-open would turn into a manufactured silent sample.
		probeStart := totalDurationSeconds - s.window
		if probeStart < 0 {
			probeStart = 0
		}
		sample, err := s.sampleWindow(ctx, path, probeStart, totalDurationSeconds, PhaseTail)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	s.logger.Debug("loudness profile sampled",
		slog.String("path", path),
		slog.Int("samples", len(samples)),
		slog.Float64("total_duration", totalDurationSeconds),
	)

	return samples, nil
}

// sampleAt measures one point, applying the fail-open policy.
func (s *Sampler) sampleAt(ctx context.Context, path string, t float64, phase Phase) (Sample, error) {
	return s.sampleWindow(ctx, path, t, t, phase)
}

// sampleWindow measures the window starting at probeStart and records the
// result as a sample at timeSeconds, applying the fail-open policy.
func (s *Sampler) sampleWindow(ctx context.Context, path string, probeStart, timeSeconds float64, phase Phase) (Sample, error) {
	level, err := s.prober.LevelAt(ctx, path, probeStart, s.window)
	if err != nil {
		if ctx.Err() != nil {
			return Sample{}, fmt.Errorf("sampling cancelled: %w", ctx.Err())
		}
		s.logger.Warn("level probe failed, treating as silence",
			slog.String("path", path),
			slog.Float64("time", timeSeconds),
			slog.Float64("window_start", probeStart),
			slog.String("error", err.Error()),
		)
		level = quietSentinelDB
	}

	return Sample{TimeSeconds: timeSeconds, LevelDB: level, Phase: phase}, nil
}
