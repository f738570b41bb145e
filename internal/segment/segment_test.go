package segment

import "testing"

// Mirrors spec.md §8 end-to-end scenario 1: a small recognized hit
// sequence with gaps of 0.05s and 1.30s between hits.
func TestBuildShortBreathMarker(t *testing.T) {
	hits := []Hit{
		{Word: "w1", Start: 0.00, End: 0.40},
		{Word: "w2", Start: 0.45, End: 0.80},
		{Word: "w3", Start: 2.10, End: 2.50},
	}

	s := Build(hits)
	if len(s.Segments) != 1 {
		t.Fatalf("expected a single segment (gap 1.30s is short-breath, not a line break), got %d: %+v", len(s.Segments), s.Segments)
	}
	got := s.Segments[0].Text
	want := "w1 w2 • w3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildParagraphBreak(t *testing.T) {
	hits := []Hit{
		{Word: "hello.", Start: 0.0, End: 0.5},
		{Word: "world", Start: 4.0, End: 4.5},
	}
	s := Build(hits)
	if len(s.Segments) != 2 {
		t.Fatalf("expected 2 segments across a paragraph break, got %d", len(s.Segments))
	}
	if s.Segments[1].Pause != "paragraph" {
		t.Errorf("expected second segment to carry a paragraph marker, got %q", s.Segments[1].Pause)
	}
}

func TestBuildSentenceEnd(t *testing.T) {
	hits := []Hit{
		{Word: "done.", Start: 0.0, End: 0.5},
		{Word: "next", Start: 1.6, End: 2.0},
	}
	s := Build(hits)
	if len(s.Segments) != 2 {
		t.Fatalf("expected a sentence-end line break, got %d segments", len(s.Segments))
	}
}

func TestBuildEmpty(t *testing.T) {
	s := Build(nil)
	if len(s.Segments) != 0 {
		t.Errorf("expected zero segments for empty input")
	}
}

func TestBuildSingleHitZeroDuration(t *testing.T) {
	// Boundary behavior from spec.md §8: single hit with end == start.
	hits := []Hit{{Word: "ok", Start: 1.0, End: 1.0}}
	s := Build(hits)
	if len(s.Segments) != 1 || s.Segments[0].End != s.Segments[0].Start {
		t.Fatalf("expected single zero-duration segment, got %+v", s.Segments)
	}
}
