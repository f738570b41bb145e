package chunker

import (
	"strings"
	"testing"
)

func TestSplitRespectsSize(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	chunks, err := Split(text, 200, 20, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 250 { // size + small sentence-boundary slack
			t.Errorf("chunk %d too large: %d chars", i, len(c))
		}
	}
}

func TestSplitTooLarge(t *testing.T) {
	text := strings.Repeat("a", 1000)
	_, err := Split(text, 100, 0, 1)
	if err != ErrInputTooLarge {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
}

func TestSplitNeverSplitsTimestamp(t *testing.T) {
	text := "[0:00:00] hello there. [0:00:05] more words follow after this one. [0:00:10] final segment of text."
	chunks, err := Split(text, 40, 5, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, c := range chunks {
		if idx := strings.Index(c, ":00:"); idx > 0 && c[0] != '[' {
			// a timestamp mid-chunk is fine; what must never happen is a
			// timestamp bracket cut in half.
			if strings.Count(c, "[") != strings.Count(c, "]") {
				t.Errorf("chunk has a split timestamp: %q", c)
			}
		}
	}
}

func TestMergeRoundTrip(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 30)
	chunks, err := Split(text, 100, 15, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	merged := Merge(chunks, 15)
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if normalize(merged) != normalize(text) {
		t.Errorf("merge round-trip mismatch:\n got: %q\nwant: %q", normalize(merged), normalize(text))
	}
}

func TestMergeSingleChunk(t *testing.T) {
	got := Merge([]string{"only one chunk"}, 10)
	if got != "only one chunk" {
		t.Errorf("got %q", got)
	}
}
