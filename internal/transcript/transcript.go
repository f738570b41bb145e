// Package transcript defines the TimedSegment and Script types produced by
// the Segmenter and consumed by the Post-Editor, Translator, and TTS
// stages, plus the transcript file format of the external interface.
//
// Grounded on the teacher's internal/script/script.go Script/Segment types,
// generalized from speaker-tagged podcast dialogue to timed, single-track
// speech with start/end seconds per segment.
package transcript

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimedSegment is a span of recognized or synthesized speech.
type TimedSegment struct {
	Start      float64 // seconds, >= 0
	End        float64 // seconds, >= Start
	Text       string
	Confidence float64 // 0 if not applicable
	Pause      string  // "", "short", "long", "paragraph" — "paragraph" is a break before this segment; "short"/"long" are rendered as a marker after its text
}

// Header carries the transcript file's key: value metadata block.
type Header struct {
	Title            string
	ProcessedAt      time.Time
	PostEditorModel  string
	TranslatorModel  string
}

// Script is an ordered sequence of TimedSegments plus header metadata.
type Script struct {
	Header   Header
	Segments []TimedSegment
}

// Stats summarizes a Script for logging/telemetry, per spec.md §4.3.
type Stats struct {
	TotalWords      int
	MeanConfidence  float64
	ShortPauses     int
	LongPauses      int
	ParagraphBreaks int
	WordsPerMinute  float64
	PauseFraction   float64
}

const (
	pauseShort     = "short"
	pauseLong      = "long"
	pauseParagraph = "paragraph"
)

var timestampLine = regexp.MustCompile(`^\[(\d+):(\d{2}):(\d{2})\]\s?(.*)$`)

// Render produces the canonical transcript file text: a header block of
// "key: value" lines, a blank line, then body lines of the form
// "[H:MM:SS] words… [• ••]*" with paragraph breaks as blank lines.
func (s *Script) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "title: %s\n", s.Header.Title)
	fmt.Fprintf(&b, "processed_at: %s\n", s.Header.ProcessedAt.UTC().Format(time.RFC3339))
	if s.Header.PostEditorModel != "" {
		fmt.Fprintf(&b, "post_editor_model: %s\n", s.Header.PostEditorModel)
	}
	if s.Header.TranslatorModel != "" {
		fmt.Fprintf(&b, "translator_model: %s\n", s.Header.TranslatorModel)
	}
	b.WriteString("\n")

	for i, seg := range s.Segments {
		if seg.Pause == pauseParagraph && i > 0 {
			b.WriteString("\n")
		}
		ts := formatTimestamp(seg.Start)
		marker := ""
		switch seg.Pause {
		case pauseShort:
			marker = " •"
		case pauseLong:
			marker = " ••"
		}
		fmt.Fprintf(&b, "[%s] %s%s\n", ts, strings.TrimSpace(seg.Text), marker)
	}

	return b.String()
}

// Parse reads the canonical transcript format back into a Script. It is
// the inverse of Render: parse(render(s)) == s under canonical whitespace,
// per spec.md §8's round-trip invariant.
func Parse(raw string) (*Script, error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	s := &Script{}

	inHeader := true
	pendingParagraph := false

	for scanner.Scan() {
		line := scanner.Text()

		if inHeader {
			if strings.TrimSpace(line) == "" {
				inHeader = false
				continue
			}
			k, v, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("transcript: malformed header line %q", line)
			}
			k = strings.TrimSpace(k)
			v = strings.TrimSpace(v)
			switch k {
			case "title":
				s.Header.Title = v
			case "processed_at":
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					s.Header.ProcessedAt = t
				}
			case "post_editor_model":
				s.Header.PostEditorModel = v
			case "translator_model":
				s.Header.TranslatorModel = v
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			pendingParagraph = true
			continue
		}

		m := timestampLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("transcript: expected timestamp line, got %q", line)
		}
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		ss, _ := strconv.Atoi(m[3])
		start := float64(h*3600 + mm*60 + ss)
		text := m[4]

		pause := ""
		switch {
		case strings.HasSuffix(text, " ••"):
			pause = pauseLong
			text = strings.TrimSuffix(text, " ••")
		case strings.HasSuffix(text, " •"):
			pause = pauseShort
			text = strings.TrimSuffix(text, " •")
		}
		if pendingParagraph && len(s.Segments) > 0 {
			pause = pauseParagraph
		}
		pendingParagraph = false

		s.Segments = append(s.Segments, TimedSegment{
			Start: start,
			Text:  strings.TrimSpace(text),
			Pause: pause,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transcript: scan: %w", err)
	}

	// end times are not encoded in the text form; the in-memory Script
	// retains them separately when produced by the Segmenter. A
	// parse-only Script leaves End at zero for all but the interval
	// inference below, which sets each segment's End to the next
	// segment's Start (or itself for the last one), preserving the
	// ordering invariant seg[i].End <= seg[i+1].Start.
	for i := range s.Segments {
		if i+1 < len(s.Segments) {
			s.Segments[i].End = s.Segments[i+1].Start
		} else {
			s.Segments[i].End = s.Segments[i].Start
		}
	}

	return s, nil
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}

// ComputeStats derives the Segmenter's summary statistics.
func ComputeStats(s *Script) Stats {
	var st Stats
	if len(s.Segments) == 0 {
		return st
	}

	var confSum float64
	var confN int
	var pauseSeconds float64
	totalSpan := s.Segments[len(s.Segments)-1].End - s.Segments[0].Start

	for i, seg := range s.Segments {
		st.TotalWords += len(strings.Fields(seg.Text))
		if seg.Confidence > 0 {
			confSum += seg.Confidence
			confN++
		}
		switch seg.Pause {
		case pauseShort:
			st.ShortPauses++
		case pauseLong:
			st.LongPauses++
		case pauseParagraph:
			st.ParagraphBreaks++
		}
		if i > 0 {
			gap := seg.Start - s.Segments[i-1].End
			if gap > 0 {
				pauseSeconds += gap
			}
		}
	}

	if confN > 0 {
		st.MeanConfidence = confSum / float64(confN)
	}
	if totalSpan > 0 {
		st.WordsPerMinute = float64(st.TotalWords) / (totalSpan / 60)
		st.PauseFraction = pauseSeconds / totalSpan
	}
	return st
}

// Validate checks the segment-ordering invariant of spec.md §8: consecutive
// segments satisfy seg[i].Start <= seg[i+1].Start and seg[i].End <= seg[i+1].Start.
func (s *Script) Validate() error {
	for i := 1; i < len(s.Segments); i++ {
		prev, cur := s.Segments[i-1], s.Segments[i]
		if cur.Start < prev.Start {
			return fmt.Errorf("transcript: segment %d starts before segment %d", i, i-1)
		}
		if prev.End > cur.Start {
			return fmt.Errorf("transcript: segment %d overlaps segment %d", i-1, i)
		}
	}
	for i, seg := range s.Segments {
		if seg.End < seg.Start {
			return fmt.Errorf("transcript: segment %d has end < start", i)
		}
		if strings.TrimSpace(seg.Text) == "" {
			return fmt.Errorf("transcript: segment %d has empty text", i)
		}
	}
	return nil
}

// Timestamps returns the multiset of segment start times, used by the
// post-editor's timestamp-preservation check and the translator's
// non-decreasing order check (spec.md §8).
func (s *Script) Timestamps() []float64 {
	out := make([]float64, len(s.Segments))
	for i, seg := range s.Segments {
		out[i] = seg.Start
	}
	return out
}
