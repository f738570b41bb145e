package synth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/assembly"
	"github.com/apresai/dubcast/internal/tts"
	"github.com/apresai/dubcast/internal/transcript"
)

// Options configures a synthesis run.
type Options struct {
	Provider tts.Provider
	Voice    tts.Voice

	MaxWorkers       int // bounded parallelism for chunk synthesis, errgroup.SetLimit
	MaxCharsPerChunk int // provider per-call character cap
	Prosody          ProsodyDefaults

	WorkDir string // scratch directory for stitched/reconciled output
}

// Result is the synthesized audio plus the reconciliation outcome.
type Result struct {
	Data        []byte
	Format      tts.AudioFormat
	SourceSecs  float64
	SynthSecs   float64
	PaddedSecs  float64 // silence added during reconciliation, 0 if none
	Overran     bool    // synthesized audio longer than source; not trimmed
}

const (
	defaultMaxWorkers       = 4
	defaultMaxCharsPerChunk = 4500
)

// Run synthesizes script's segments through opts.Provider/Voice, chunking
// on segment boundaries when the rendered text exceeds the provider's
// per-call cap, synthesizing chunks in parallel (bounded), stitching by
// byte concatenation, and reconciling the result's duration against the
// source's span, per spec.md §4.7.
func Run(ctx context.Context, script *transcript.Script, opts Options) (*Result, error) {
	if opts.Provider == nil {
		return nil, apierr.New(apierr.KindInternal, "synthesize", "no TTS provider configured", nil)
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	maxChars := opts.MaxCharsPerChunk
	if maxChars <= 0 {
		maxChars = defaultMaxCharsPerChunk
	}

	chunks := chunkSegments(script.Segments, maxChars)
	if len(chunks) == 0 {
		return nil, apierr.New(apierr.KindInvalidInput, "synthesize", "script has no segments to synthesize", nil)
	}

	results := make([]tts.AudioResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			ssml := BuildSSML(chunk, opts.Prosody, defaultMaxBreak)
			var res tts.AudioResult
			err := tts.WithRetry(gctx, func() error {
				var synthErr error
				res, synthErr = opts.Provider.Synthesize(gctx, ssml, opts.Voice)
				return synthErr
			})
			if err != nil {
				return apierr.New(apierr.KindUpstream, "synthesize", fmt.Sprintf("chunk %d synthesis failed", i), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stitched, format, err := stitch(ctx, results, opts.WorkDir)
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, "synthesize", "stitch chunk audio", err)
	}

	return reconcile(ctx, stitched, format, script, opts.WorkDir)
}

// chunkSegments groups segments into runs whose total text length is at
// most maxChars, never splitting a single segment across chunks; a
// segment longer than maxChars forms a chunk of its own.
func chunkSegments(segs []transcript.TimedSegment, maxChars int) [][]transcript.TimedSegment {
	var chunks [][]transcript.TimedSegment
	var current []transcript.TimedSegment
	size := 0

	for _, seg := range segs {
		segLen := len(seg.Text)
		if len(current) > 0 && size+segLen > maxChars {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, seg)
		size += segLen
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// stitch concatenates same-format audio streams byte-for-byte. If the
// provider mixed formats across chunks (should not happen in practice
// since a single Provider instance is used throughout), it decodes and
// re-encodes once at the boundary via FFmpeg rather than producing a
// malformed container.
func stitch(ctx context.Context, results []tts.AudioResult, workDir string) ([]byte, tts.AudioFormat, error) {
	if len(results) == 1 {
		return results[0].Data, results[0].Format, nil
	}

	format := results[0].Format
	uniform := true
	for _, r := range results {
		if r.Format != format {
			uniform = false
			break
		}
	}
	if uniform {
		var buf bytes.Buffer
		for _, r := range results {
			buf.Write(r.Data)
		}
		return buf.Bytes(), format, nil
	}

	return recodeAndConcat(ctx, results, workDir)
}

// recodeAndConcat handles the mixed-format fallback: each chunk is
// written out as MP3 (non-MP3 chunks are converted first), then
// concatenated via the Video Muxer's FFmpeg concat helper.
func recodeAndConcat(ctx context.Context, results []tts.AudioResult, workDir string) ([]byte, tts.AudioFormat, error) {
	var mp3Paths []string
	for i, r := range results {
		mp3Path := filepath.Join(workDir, fmt.Sprintf("chunk_%03d.mp3", i))

		if r.Format == tts.FormatMP3 {
			if err := os.WriteFile(mp3Path, r.Data, 0o644); err != nil {
				return nil, "", fmt.Errorf("write chunk %d: %w", i, err)
			}
		} else {
			rawPath := filepath.Join(workDir, fmt.Sprintf("chunk_%03d.raw", i))
			if err := os.WriteFile(rawPath, r.Data, 0o644); err != nil {
				return nil, "", fmt.Errorf("write chunk %d: %w", i, err)
			}
			if err := assembly.ConvertToMP3(ctx, rawPath, string(r.Format), mp3Path); err != nil {
				return nil, "", fmt.Errorf("recode chunk %d: %w", i, err)
			}
		}
		mp3Paths = append(mp3Paths, mp3Path)
	}

	out := filepath.Join(workDir, "stitched.mp3")
	if err := assembly.NewFFmpegAssembler().Assemble(ctx, mp3Paths, workDir, out); err != nil {
		return nil, "", fmt.Errorf("concat recoded chunks: %w", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, "", fmt.Errorf("read stitched output: %w", err)
	}
	return data, tts.FormatMP3, nil
}

// reconcile compares the synthesized audio's duration against the
// source script's total span and, if the synthesis came in short,
// appends the whole deficit as one run of silence at the end of the
// audio; the silence is not distributed across paragraph breaks. It never
// trims and never pitch-shifts, per spec.md §4.7.
func reconcile(ctx context.Context, data []byte, format tts.AudioFormat, script *transcript.Script, workDir string) (*Result, error) {
	if len(script.Segments) == 0 {
		return &Result{Data: data, Format: format}, nil
	}

	sourceSecs := script.Segments[len(script.Segments)-1].End - script.Segments[0].Start
	if sourceSecs <= 0 {
		sourceSecs = script.Segments[len(script.Segments)-1].Start
	}

	ext := string(format)
	audioPath := filepath.Join(workDir, "synth_raw."+ext)
	if err := os.WriteFile(audioPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write synth output: %w", err)
	}

	synthSecs, err := assembly.ProbeDuration(ctx, audioPath)
	if err != nil {
		// Duration probing is best-effort for reconciliation; a probe
		// failure should not fail the whole synthesis stage.
		return &Result{Data: data, Format: format, SourceSecs: sourceSecs}, nil
	}

	result := &Result{Data: data, Format: format, SourceSecs: sourceSecs, SynthSecs: synthSecs}

	deficit := sourceSecs - synthSecs
	if deficit <= 0 {
		result.Overran = synthSecs > sourceSecs
		return result, nil
	}

	padded, err := padWithSilence(ctx, audioPath, deficit, workDir)
	if err != nil {
		// Padding is a best-effort reconciliation step; surface the
		// unpadded audio rather than failing the stage outright.
		return result, nil
	}

	result.Data = padded
	result.PaddedSecs = deficit
	return result, nil
}

// padWithSilence appends deficit seconds of silence to audioPath,
// matching a natural paragraph break rather than trimming or stretching.
func padWithSilence(ctx context.Context, audioPath string, deficit float64, workDir string) ([]byte, error) {
	silencePath := filepath.Join(workDir, "reconcile_silence.mp3")
	if err := assembly.GenerateSilenceSeconds(ctx, silencePath, deficit); err != nil {
		return nil, err
	}

	out := filepath.Join(workDir, "synth_padded.mp3")
	if err := assembly.NewFFmpegAssembler().Assemble(ctx, []string{audioPath, silencePath}, workDir, out); err != nil {
		return nil, err
	}

	return os.ReadFile(out)
}
