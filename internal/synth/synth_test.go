package synth

import (
	"strings"
	"testing"
	"time"

	"github.com/apresai/dubcast/internal/transcript"

	"github.com/apresai/dubcast/internal/tts"
)

func TestChunkSegmentsNeverSplitsASegment(t *testing.T) {
	segs := []transcript.TimedSegment{
		{Start: 0, End: 1, Text: "one two three"},
		{Start: 1, End: 2, Text: strings.Repeat("x", 20)},
		{Start: 2, End: 3, Text: "short"},
	}

	chunks := chunkSegments(segs, 15)
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}

	var flattened []transcript.TimedSegment
	for _, c := range chunks {
		flattened = append(flattened, c...)
	}
	if len(flattened) != len(segs) {
		t.Fatalf("expected every segment to appear exactly once across chunks, got %d want %d", len(flattened), len(segs))
	}
	for i, seg := range flattened {
		if seg.Text != segs[i].Text {
			t.Errorf("segment %d reordered or altered: got %q want %q", i, seg.Text, segs[i].Text)
		}
	}

	// The 20-char segment alone exceeds the 15-char budget; it must still
	// land whole in its own chunk rather than being split.
	found := false
	for _, c := range chunks {
		if len(c) == 1 && c[0].Text == segs[1].Text {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the oversized segment to occupy its own chunk intact")
	}
}

func TestChunkSegmentsEmpty(t *testing.T) {
	chunks := chunkSegments(nil, 100)
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for no segments, got %d", len(chunks))
	}
}

func TestChunkSegmentsGroupsUnderBudget(t *testing.T) {
	segs := []transcript.TimedSegment{
		{Start: 0, End: 1, Text: "abc"},
		{Start: 1, End: 2, Text: "def"},
		{Start: 2, End: 3, Text: "ghi"},
	}
	chunks := chunkSegments(segs, 6)
	if len(chunks) != 2 {
		t.Fatalf("expected two chunks (abc+def under budget, ghi overflows), got %d: %+v", len(chunks), chunks)
	}
	if len(chunks[0]) != 2 || len(chunks[1]) != 1 {
		t.Errorf("unexpected chunk grouping: %+v", chunks)
	}
}

func TestBuildSSMLBreakClampedToMax(t *testing.T) {
	segs := []transcript.TimedSegment{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 20, End: 21, Text: "world"},
	}
	out := BuildSSML(segs, ProsodyDefaults{}, 2*time.Second)

	if !strings.Contains(out, `<break time="2.00s"/>`) {
		t.Errorf("expected break clamped to max 2s, got: %s", out)
	}
	if strings.Contains(out, `time="19`) {
		t.Errorf("break should not reflect the unclamped 19s gap: %s", out)
	}
}

func TestBuildSSMLProsodyAttributes(t *testing.T) {
	segs := []transcript.TimedSegment{{Start: 0, End: 1, Text: "hello"}}
	out := BuildSSML(segs, ProsodyDefaults{Rate: "90%", Pitch: "-2st"}, 0)

	if !strings.Contains(out, `rate="90%"`) || !strings.Contains(out, `pitch="-2st"`) {
		t.Errorf("expected prosody rate/pitch attributes, got: %s", out)
	}
}

func TestBuildSSMLStripsPauseGlyphsAndEscapes(t *testing.T) {
	segs := []transcript.TimedSegment{{Start: 0, End: 1, Text: "Tom & Jerry • ran  fast"}}
	out := BuildSSML(segs, ProsodyDefaults{}, 0)

	if strings.Contains(out, "•") {
		t.Errorf("expected pause glyph stripped, got: %s", out)
	}
	if !strings.Contains(out, "Tom &amp; Jerry") {
		t.Errorf("expected ampersand escaped, got: %s", out)
	}
	if strings.Contains(out, "ran  fast") {
		t.Errorf("expected collapsed whitespace, got: %s", out)
	}
}

func TestBuildSSMLSkipsEmptySegments(t *testing.T) {
	segs := []transcript.TimedSegment{
		{Start: 0, End: 1, Text: "   "},
		{Start: 1, End: 2, Text: "real text"},
	}
	out := BuildSSML(segs, ProsodyDefaults{}, 0)
	if strings.Count(out, "<prosody") != 1 {
		t.Errorf("expected the blank segment to be skipped, got: %s", out)
	}
}

func TestStitchUniformFormatByteConcat(t *testing.T) {
	results := []tts.AudioResult{
		{Data: []byte("abc"), Format: tts.FormatMP3},
		{Data: []byte("def"), Format: tts.FormatMP3},
	}
	data, format, err := stitch(nil, results, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != tts.FormatMP3 {
		t.Errorf("expected format preserved, got %v", format)
	}
	if string(data) != "abcdef" {
		t.Errorf("expected byte concat, got %q", string(data))
	}
}

func TestStitchSingleResultPassthrough(t *testing.T) {
	results := []tts.AudioResult{{Data: []byte("solo"), Format: tts.FormatWAV}}
	data, format, err := stitch(nil, results, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "solo" || format != tts.FormatWAV {
		t.Errorf("expected single-chunk passthrough unchanged, got %q/%v", string(data), format)
	}
}
