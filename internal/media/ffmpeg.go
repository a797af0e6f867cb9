package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Compile-time check that FFmpegProber implements Prober.
var _ Prober = (*FFmpegProber)(nil)

// FFmpegProber implements Prober using the ffmpeg and ffprobe CLIs.
type FFmpegProber struct {
	ffmpegPath  string
	ffprobePath string
	registrar   ProcessRegistrar
}

// ProberOption is a function that configures an FFmpegProber.
type ProberOption func(*FFmpegProber)

// WithRegistrar injects a subprocess registrar so the host application can
// kill stuck media tool processes on shutdown.
func WithRegistrar(r ProcessRegistrar) ProberOption {
	return func(p *FFmpegProber) {
		p.registrar = r
	}
}

// NewFFmpegProber creates a new FFmpegProber.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegProber(ffmpegPath, ffprobePath string, opts ...ProberOption) *FFmpegProber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	p := &FFmpegProber{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeError represents a failed probe of a media file: the external tool
// could not be run, exited non-zero, or produced unparsable output.
type ProbeError struct {
	Path   string
	Output string
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v: %s", e.Path, e.Err, e.Output)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// FFmpegError represents an error from running ffmpeg, including the
// stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Metadata returns duration, size and bit rate via ffprobe.
func (p *FFmpegProber) Metadata(ctx context.Context, path string) (Metadata, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration,size,bit_rate",
		"-of", "default=noprint_wrappers=1",
		path,
	}

	stdout, stderr, err := p.run(ctx, p.ffprobePath, args)
	if err != nil {
		return Metadata{}, &ProbeError{Path: path, Output: stderr, Err: err}
	}

	meta, err := parseFormatMetadata(stdout)
	if err != nil {
		return Metadata{}, &ProbeError{Path: path, Output: stdout, Err: err}
	}
	return meta, nil
}

// meanVolumeRe matches the volumedetect summary ffmpeg writes to stderr,
// e.g. "[Parsed_volumedetect_0 @ 0x...] mean_volume: -32.7 dB".
var meanVolumeRe = regexp.MustCompile(`mean_volume:\s*(-?[\d.]+)\s*dB`)

// LevelAt measures the mean audio level over a window using ffmpeg's
// volumedetect filter. Only the window is decoded, so a probe is cheap
// even on multi-hour files.
func (p *FFmpegProber) LevelAt(ctx context.Context, path string, startSeconds, windowSeconds float64) (float64, error) {
	if windowSeconds <= 0 {
		return 0, ErrInvalidWindow
	}

	args := []string{
		"-hide_banner",
		"-ss", formatSeconds(startSeconds),
		"-t", formatSeconds(windowSeconds),
		"-i", path,
		"-af", "volumedetect",
		"-f", "null", "-",
	}

	// volumedetect writes its summary to stderr alongside the banner noise.
	_, stderr, err := p.run(ctx, p.ffmpegPath, args)
	if err != nil {
		return 0, &ProbeError{Path: path, Output: stderr, Err: err}
	}

	level, err := parseMeanVolume(stderr)
	if err != nil {
		return 0, &ProbeError{Path: path, Output: stderr, Err: err}
	}
	return level, nil
}

// ValidateAudio confirms the file contains at least one decodable audio
// stream via ffprobe.
func (p *FFmpegProber) ValidateAudio(ctx context.Context, path string) error {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	stdout, stderr, err := p.run(ctx, p.ffprobePath, args)
	if err != nil {
		return &ProbeError{Path: path, Output: stderr, Err: err}
	}

	if !strings.Contains(stdout, "audio") {
		return fmt.Errorf("%w: %s", ErrNoAudioStream, path)
	}
	return nil
}

// ExtractSegment stream-copies a time range into outputPath without
// re-encoding. A durationSeconds <= 0 copies through the end of the file.
func (p *FFmpegProber) ExtractSegment(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error {
	args := []string{
		"-y", // Overwrite output
		"-ss", formatSeconds(startSeconds),
	}
	if durationSeconds > 0 {
		args = append(args, "-t", formatSeconds(durationSeconds))
	}
	args = append(args,
		"-i", inputPath,
		"-c", "copy", // Copy streams without re-encoding
		outputPath,
	)

	_, stderr, err := p.run(ctx, p.ffmpegPath, args)
	if err != nil {
		return &FFmpegError{Args: args, Stderr: stderr, Err: err}
	}
	return nil
}

// run executes the tool and returns captured stdout and stderr. The
// subprocess is registered with the registrar for the duration of the call
// when one was provided.
func (p *FFmpegProber) run(ctx context.Context, tool string, args []string) (string, string, error) {
	// #nosec G204 - tool paths are set by the application, not user input
	cmd := exec.CommandContext(ctx, tool, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start %s: %w", tool, err)
	}

	if p.registrar != nil {
		p.registrar.Register(cmd.Process)
		defer p.registrar.Unregister(cmd.Process)
	}

	err := cmd.Wait()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return stdout.String(), stderr.String(), fmt.Errorf("%s cancelled: %w", tool, ctx.Err())
		}
		return stdout.String(), stderr.String(), err
	}

	return stdout.String(), stderr.String(), nil
}

// parseFormatMetadata parses ffprobe "key=value" format output into Metadata.
func parseFormatMetadata(output string) (Metadata, error) {
	var meta Metadata
	var haveDuration bool

	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "duration":
			d, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Metadata{}, fmt.Errorf("parse duration %q: %w", value, err)
			}
			meta.DurationSeconds = d
			haveDuration = true
		case "size":
			// N/A for piped input; tolerate and leave zero
			if s, err := strconv.ParseInt(value, 10, 64); err == nil {
				meta.SizeBytes = s
			}
		case "bit_rate":
			if b, err := strconv.ParseInt(value, 10, 64); err == nil {
				meta.BitRateBPS = b
			}
		}
	}

	if !haveDuration {
		return Metadata{}, fmt.Errorf("no duration in probe output: %q", output)
	}
	return meta, nil
}

// parseMeanVolume extracts the volumedetect mean_volume value from ffmpeg
// stderr output.
func parseMeanVolume(output string) (float64, error) {
	matches := meanVolumeRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		return 0, fmt.Errorf("no mean_volume in ffmpeg output")
	}

	level, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse mean_volume %q: %w", matches[1], err)
	}
	return level, nil
}

// formatSeconds renders a timestamp for ffmpeg arguments.
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
