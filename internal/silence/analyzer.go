package silence

import "fmt"

// Default policy constants for the pattern analyzer.
const (
	// DefaultThresholdDB is the level above which a sample counts as
	// active meeting audio.
	DefaultThresholdDB = -40.0
	// DefaultMinSilenceDuration is the minimum trailing-silence run, in
	// seconds, worth splitting off.
	DefaultMinSilenceDuration = 600.0
	// DefaultMinTailRatio is the fraction of post-activity samples that
	// must be silent for the pattern to count as sustained silence.
	DefaultMinTailRatio = 0.8
)

// Detection is the outcome of analyzing a loudness profile.
// When Found is false, Reason explains why no actionable trailing-silence
// pattern exists.
type Detection struct {
	Found  bool
	Reason string

	// MeetingEndSeconds is the timestamp of the last active sample. It is
	// always a sampled timestamp, never interpolated.
	MeetingEndSeconds float64
	// SilenceDurationSeconds spans from the meeting end to the last sample.
	SilenceDurationSeconds float64
	// ConfidenceRatio is the fraction of tail samples classified silent.
	ConfidenceRatio float64
	// LastActiveLevelDB is the level of the last active sample.
	LastActiveLevelDB float64
	// SamplesAnalyzed is the total profile size.
	SamplesAnalyzed int
}

// Analyzer decides whether a loudness profile ends in sustained silence.
type Analyzer struct {
	// ThresholdDB classifies a sample as active when its level is
	// strictly greater than this value.
	ThresholdDB float64
	// MinSilenceDuration is the shortest trailing-silence run worth
	// reporting, in seconds.
	MinSilenceDuration float64
	// MinTailRatio gates acceptance on the fraction of silent samples
	// after the last activity.
	MinTailRatio float64
}

// NewAnalyzer creates an Analyzer with the given threshold and minimum
// silence duration, using the default tail ratio.
func NewAnalyzer(thresholdDB, minSilenceDurationSeconds float64) *Analyzer {
	return &Analyzer{
		ThresholdDB:        thresholdDB,
		MinSilenceDuration: minSilenceDurationSeconds,
		MinTailRatio:       DefaultMinTailRatio,
	}
}

// Analyze scans the profile for a sustained trailing-silence region and,
// if one exists, reports the boundary between meeting and silence.
// Samples must be ordered by increasing time.
func (a *Analyzer) Analyze(samples []Sample) Detection {
	lastActive := -1
	for i, s := range samples {
		if s.LevelDB > a.ThresholdDB {
			lastActive = i
		}
	}
	if lastActive == -1 {
		return Detection{Reason: "No active audio detected"}
	}

	tail := samples[lastActive+1:]
	if len(tail) == 0 {
		return Detection{Reason: "No samples after last activity"}
	}

	silent := 0
	for _, s := range tail {
		if s.LevelDB <= a.ThresholdDB {
			silent++
		}
	}
	ratio := float64(silent) / float64(len(tail))
	if ratio < a.MinTailRatio {
		return Detection{Reason: "Insufficient sustained silence detected"}
	}

	meetingEnd := samples[lastActive].TimeSeconds
	silenceDuration := samples[len(samples)-1].TimeSeconds - meetingEnd
	if silenceDuration < a.MinSilenceDuration {
		return Detection{
			Reason: fmt.Sprintf("Silence too short: %.1f minutes", silenceDuration/60),
		}
	}

	return Detection{
		Found:                  true,
		MeetingEndSeconds:      meetingEnd,
		SilenceDurationSeconds: silenceDuration,
		ConfidenceRatio:        ratio,
		LastActiveLevelDB:      samples[lastActive].LevelDB,
		SamplesAnalyzed:        len(samples),
	}
}
