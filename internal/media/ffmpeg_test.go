package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// checkFFmpeg skips test if ffmpeg or ffprobe is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestAudio creates a WAV file with toneSec seconds of a 440Hz sine
// followed by silenceSec seconds of silence.
func createTestAudio(t *testing.T, outputPath string, toneSec, silenceSec float64) {
	t.Helper()

	args := []string{
		"-y",
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:duration=%.3f", toneSec),
	}
	filter := "[0:a]"
	inputs := 1
	if silenceSec > 0 {
		args = append(args,
			"-f", "lavfi", "-i",
			fmt.Sprintf("anullsrc=channel_layout=mono:sample_rate=16000:duration=%.3f", silenceSec),
		)
		filter = "[0:a][1:a]"
		inputs = 2
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("%sconcat=n=%d:v=0:a=1[out]", filter, inputs),
		"-map", "[out]",
		"-ar", "16000", "-ac", "1",
		outputPath,
	)

	cmd := exec.Command("ffmpeg", args...)
	stderr, _ := cmd.CombinedOutput()
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Fatalf("failed to create test audio: %s", string(stderr))
	}
}

func TestParseFormatMetadata(t *testing.T) {
	tests := []struct {
		name         string
		output       string
		wantErr      bool
		wantDuration float64
		wantSize     int64
		wantBitRate  int64
	}{
		{
			name:         "complete output",
			output:       "duration=5736.421000\nsize=104857600\nbit_rate=146234\n",
			wantDuration: 5736.421,
			wantSize:     104857600,
			wantBitRate:  146234,
		},
		{
			name:         "missing size tolerated",
			output:       "duration=10.000000\nsize=N/A\nbit_rate=128000\n",
			wantDuration: 10,
			wantSize:     0,
			wantBitRate:  128000,
		},
		{
			name:    "missing duration fails",
			output:  "size=1024\nbit_rate=128000\n",
			wantErr: true,
		},
		{
			name:    "garbage duration fails",
			output:  "duration=abc\n",
			wantErr: true,
		},
		{
			name:    "empty output fails",
			output:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := parseFormatMetadata(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta.DurationSeconds != tt.wantDuration {
				t.Errorf("duration = %v, want %v", meta.DurationSeconds, tt.wantDuration)
			}
			if meta.SizeBytes != tt.wantSize {
				t.Errorf("size = %v, want %v", meta.SizeBytes, tt.wantSize)
			}
			if meta.BitRateBPS != tt.wantBitRate {
				t.Errorf("bit_rate = %v, want %v", meta.BitRateBPS, tt.wantBitRate)
			}
		})
	}
}

func TestParseMeanVolume(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{
			name:   "typical volumedetect output",
			output: "[Parsed_volumedetect_0 @ 0x5634] n_samples: 480000\n[Parsed_volumedetect_0 @ 0x5634] mean_volume: -32.7 dB\n[Parsed_volumedetect_0 @ 0x5634] max_volume: -12.1 dB\n",
			want:   -32.7,
		},
		{
			name:   "positive level",
			output: "mean_volume: 0.0 dB",
			want:   0,
		},
		{
			name:    "no mean_volume line",
			output:  "frame=0 fps=0.0 q=-0.0 size=N/A",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMeanVolume(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseMeanVolume() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelAt_InvalidWindow(t *testing.T) {
	prober := NewFFmpegProber("", "")

	_, err := prober.LevelAt(context.Background(), "any.opus", 0, 0)
	if err != ErrInvalidWindow {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestMetadata_MissingFile(t *testing.T) {
	checkFFmpeg(t)

	prober := NewFFmpegProber("", "")

	_, err := prober.Metadata(context.Background(), "/nonexistent/audio.opus")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Errorf("expected *ProbeError, got %T", err)
	}
}

func TestMetadata_RealFile(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tone.wav")
	createTestAudio(t, path, 5, 0)

	prober := NewFFmpegProber("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	meta, err := prober.Metadata(ctx, path)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta.DurationSeconds < 4.5 || meta.DurationSeconds > 5.5 {
		t.Errorf("duration = %v, want ~5", meta.DurationSeconds)
	}
	if meta.SizeBytes <= 0 {
		t.Errorf("size = %v, want > 0", meta.SizeBytes)
	}
}

func TestLevelAt_ToneVsSilence(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tone_then_silence.wav")
	createTestAudio(t, path, 5, 5)

	prober := NewFFmpegProber("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	toneLevel, err := prober.LevelAt(ctx, path, 0, 4)
	if err != nil {
		t.Fatalf("LevelAt (tone) failed: %v", err)
	}
	silenceLevel, err := prober.LevelAt(ctx, path, 6, 3)
	if err != nil {
		t.Fatalf("LevelAt (silence) failed: %v", err)
	}

	if toneLevel <= silenceLevel {
		t.Errorf("tone level %v should be louder than silence level %v", toneLevel, silenceLevel)
	}
	if silenceLevel > -60 {
		t.Errorf("silence level = %v, want below -60 dB", silenceLevel)
	}
}

func TestValidateAudio(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	audioPath := filepath.Join(tmpDir, "tone.wav")
	createTestAudio(t, audioPath, 2, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prober := NewFFmpegProber("", "")

	if err := prober.ValidateAudio(ctx, audioPath); err != nil {
		t.Errorf("ValidateAudio on real audio failed: %v", err)
	}

	// A text file has no audio stream
	textPath := filepath.Join(tmpDir, "not_audio.wav")
	if err := os.WriteFile(textPath, []byte("not really audio"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := prober.ValidateAudio(ctx, textPath); err == nil {
		t.Error("ValidateAudio on non-audio file should fail")
	}
}

func TestExtractSegment(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.wav")
	createTestAudio(t, inputPath, 10, 0)

	prober := NewFFmpegProber("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	t.Run("bounded range", func(t *testing.T) {
		outputPath := filepath.Join(tmpDir, "head.wav")
		if err := prober.ExtractSegment(ctx, inputPath, outputPath, 0, 4); err != nil {
			t.Fatalf("ExtractSegment failed: %v", err)
		}

		meta, err := prober.Metadata(ctx, outputPath)
		if err != nil {
			t.Fatalf("Metadata on segment failed: %v", err)
		}
		if meta.DurationSeconds < 3.5 || meta.DurationSeconds > 4.5 {
			t.Errorf("segment duration = %v, want ~4", meta.DurationSeconds)
		}
	})

	t.Run("open-ended range", func(t *testing.T) {
		outputPath := filepath.Join(tmpDir, "tail.wav")
		if err := prober.ExtractSegment(ctx, inputPath, outputPath, 6, 0); err != nil {
			t.Fatalf("ExtractSegment failed: %v", err)
		}

		meta, err := prober.Metadata(ctx, outputPath)
		if err != nil {
			t.Fatalf("Metadata on segment failed: %v", err)
		}
		if meta.DurationSeconds < 3.5 || meta.DurationSeconds > 4.5 {
			t.Errorf("segment duration = %v, want ~4", meta.DurationSeconds)
		}
	})
}

// trackingRegistrar records register/unregister calls for testing.
type trackingRegistrar struct {
	mu           sync.Mutex
	registered   int
	unregistered int
}

func (r *trackingRegistrar) Register(_ *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered++
}

func (r *trackingRegistrar) Unregister(_ *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered++
}

func TestProber_RegistrarHook(t *testing.T) {
	checkFFmpeg(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tone.wav")
	createTestAudio(t, path, 2, 0)

	registrar := &trackingRegistrar{}
	prober := NewFFmpegProber("", "", WithRegistrar(registrar))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := prober.Metadata(ctx, path); err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}

	registrar.mu.Lock()
	defer registrar.mu.Unlock()
	if registrar.registered != 1 || registrar.unregistered != 1 {
		t.Errorf("registrar calls = %d/%d, want 1/1", registrar.registered, registrar.unregistered)
	}
}
