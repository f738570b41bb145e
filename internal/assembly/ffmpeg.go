package assembly

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/dubcast/internal/procrunner"
)

// Audio quality constants for consistent output across all FFmpeg operations.
const (
	AudioBitrate    = "192k"
	AudioSampleRate = "44100"
	AudioChannels   = "2"
	AudioCodec      = "libmp3lame"
	AudioQuality    = "0" // LAME quality (0 = best)
	AudioResampler  = "aresample=resampler=soxr"
)

// ffmpegDeadline bounds every single ffmpeg invocation. It is applied on
// top of the caller's context, so a caller's own deadline can shorten the
// bound but not extend it.
const ffmpegDeadline = 10 * time.Minute

type Assembler interface {
	Assemble(ctx context.Context, segments []string, tmpDir string, output string) error
}

type FFmpegAssembler struct{}

func NewFFmpegAssembler() *FFmpegAssembler {
	return &FFmpegAssembler{}
}

func (a *FFmpegAssembler) Assemble(ctx context.Context, segments []string, tmpDir string, output string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no audio segments to assemble")
	}

	// Generate silence file (200ms)
	silencePath := filepath.Join(tmpDir, "silence.mp3")
	if err := generateSilence(ctx, silencePath); err != nil {
		return fmt.Errorf("generate silence: %w", err)
	}

	// Build concat list
	listPath := filepath.Join(tmpDir, "concat.txt")
	if err := buildConcatList(segments, silencePath, listPath); err != nil {
		return fmt.Errorf("build concat list: %w", err)
	}

	// Run FFmpeg concat
	if err := runFFmpegConcat(ctx, listPath, output); err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}

	return nil
}

func generateSilence(ctx context.Context, output string) error {
	return GenerateSilenceSeconds(ctx, output, 0.2)
}

// GenerateSilenceSeconds writes an MP3 file of seconds of silence,
// used both for inter-segment gaps and the synthesis stage's
// timing-reconciliation padding.
func GenerateSilenceSeconds(ctx context.Context, output string, seconds float64) error {
	_, err := procrunner.Run(ctx, ffmpegDeadline, "ffmpeg",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%s:cl=stereo", AudioSampleRate),
		"-t", fmt.Sprintf("%.3f", seconds),
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-y",
		output,
	)
	return err
}

func buildConcatList(segments []string, silencePath string, listPath string) error {
	var lines []string
	for i, seg := range segments {
		lines = append(lines, fmt.Sprintf("file '%s'", seg))
		// Add silence between segments (not after the last one)
		if i < len(segments)-1 {
			lines = append(lines, fmt.Sprintf("file '%s'", silencePath))
		}
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(listPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// ConvertToMP3 converts raw audio (PCM/LPCM/WAV) to MP3 via FFmpeg.
// The format parameter determines the input interpretation:
//   - "pcm":  raw 24kHz 16-bit signed little-endian mono
//   - "lpcm": raw 24kHz 16-bit signed little-endian mono (same as pcm)
//   - "wav":  standard WAV header (auto-detected by FFmpeg)
func ConvertToMP3(ctx context.Context, input string, format string, output string) error {
	var args []string
	switch format {
	case "pcm", "lpcm":
		args = []string{
			"-f", "s16le",
			"-ar", "24000",
			"-ac", "1",
			"-i", input,
			"-af", AudioResampler,
			"-c:a", AudioCodec,
			"-b:a", AudioBitrate,
			"-q:a", AudioQuality,
			"-ar", AudioSampleRate,
			"-ac", AudioChannels,
			"-y",
			output,
		}
	case "wav":
		args = []string{
			"-i", input,
			"-af", AudioResampler,
			"-c:a", AudioCodec,
			"-b:a", AudioBitrate,
			"-q:a", AudioQuality,
			"-ar", AudioSampleRate,
			"-ac", AudioChannels,
			"-y",
			output,
		}
	default:
		return fmt.Errorf("unsupported audio format for conversion: %s", format)
	}

	if _, err := procrunner.Run(ctx, ffmpegDeadline, "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg conversion (%s → mp3): %w", format, err)
	}
	return nil
}

// MuxVideo remuxes the original video's stream against a dubbed audio
// track: the video stream is copied untouched (-c:v copy), the audio is
// re-encoded to AAC, and the output is truncated to the shorter of the
// two inputs (-shortest), per the Video Muxer's contract.
func MuxVideo(ctx context.Context, videoPath, audioPath, output string) error {
	_, err := procrunner.Run(ctx, ffmpegDeadline, "ffmpeg",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", AudioBitrate,
		"-shortest",
		"-y",
		output,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg mux: %w", err)
	}
	return verifyNonEmpty(output)
}

// DecodeToWAV extracts and decodes an input media file's audio track to
// mono 16kHz WAV, the recognizer's required input format.
func DecodeToWAV(ctx context.Context, input, output string) error {
	_, err := procrunner.Run(ctx, ffmpegDeadline, "ffmpeg",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-y",
		output,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg decode: %w", err)
	}
	return nil
}

func runFFmpegConcat(ctx context.Context, listPath string, output string) error {
	_, err := procrunner.Run(ctx, ffmpegDeadline, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-af", AudioResampler,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-q:a", AudioQuality,
		"-ar", AudioSampleRate,
		"-ac", AudioChannels,
		"-y",
		output,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return verifyNonEmpty(output)
}

// ProbeDuration returns a media file's duration in seconds via ffprobe,
// used by the synthesis stage's timing reconciliation to compare the
// synthesized audio's length against the source transcript's span.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	res, err := procrunner.Run(ctx, ffmpegDeadline, "ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	var secs float64
	if _, err := fmt.Sscanf(strings.TrimSpace(res.Stdout), "%f", &secs); err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", res.Stdout, err)
	}
	return secs, nil
}

func verifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}
