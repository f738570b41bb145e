// Package segment implements the Timed Segmenter & pause detector of
// spec.md §4.3: it turns recognizer word/time hits into a timestamped,
// pause-annotated Script.
//
// Grounded on the teacher's internal/script/format.go threshold-table
// style (a map keyed by category, switched by range here on a sorted
// threshold table) and on the recognizer-hit shape surveyed from
// other_examples/rishikanthc-Scriberr's TranscriptSegment/TranscriptWord.
package segment

import (
	"strings"
	"unicode"

	"github.com/apresai/dubcast/internal/transcript"
)

// Hit is one recognized word, per spec.md §6 "Recognizer-hit contract".
type Hit struct {
	Word       string
	Start      float64
	End        float64
	Confidence float64
}

// Gap thresholds, in seconds, per spec.md §4.3's processing-description
// table (SPEC_FULL.md §9 Open Question #2 resolves the doc/sample
// discrepancy in favor of these numbers).
const (
	gapNone            = 0.6
	gapShortBreath     = 1.5
	gapLongBreath      = 3.0
	gapSentenceMinimum = 1.0
	softLineLimit      = 100
)

var terminalPunct = map[rune]bool{'.': true, '!': true, '?': true, '…': true}

// Build converts recognizer hits into a Script: lines of the form
// "[h:mm:ss] words…" with embedded pause markers, per the line policy in
// spec.md §4.3.
func Build(hits []Hit) *transcript.Script {
	s := &transcript.Script{}
	if len(hits) == 0 {
		return s
	}

	var (
		lineWords []string
		lineStart = hits[0].Start
		lineEnd   float64
		paragraph bool
	)

	flush := func() {
		if len(lineWords) == 0 {
			return
		}
		text := strings.Join(lineWords, " ")
		pause := ""
		if paragraph {
			pause = "paragraph"
		}
		s.Segments = append(s.Segments, transcript.TimedSegment{
			Start: lineStart,
			End:   lineEnd,
			Text:  text,
			Pause: pause,
		})
		lineWords = nil
		paragraph = false
	}

	for i, h := range hits {
		lineWords = append(lineWords, h.Word)
		lineEnd = h.End

		if i+1 >= len(hits) {
			continue
		}
		next := hits[i+1]
		gap := next.Start - h.End
		if gap < 0 {
			gap = 0
		}

		endsWithTerminal := endsInTerminalPunct(h.Word)

		switch {
		case gap >= gapLongBreath:
			// Paragraph break: flush current line, blank line before next.
			flush()
			paragraph = true
			lineStart = next.Start
		case gap >= gapSentenceMinimum && endsWithTerminal:
			// Sentence end: break to a new timestamped line.
			flush()
			lineStart = next.Start
		case gap >= gapShortBreath:
			lineWords = append(lineWords, "••")
		case gap >= gapNone:
			lineWords = append(lineWords, "•")
		}

		if currentLineLen(lineWords) > softLineLimit {
			flush()
			lineStart = next.Start
		}
	}
	flush()
	return s
}

func currentLineLen(words []string) int {
	n := 0
	for _, w := range words {
		n += len(w) + 1
	}
	return n
}

func endsInTerminalPunct(word string) bool {
	r := lastRune(word)
	return terminalPunct[r]
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		if !unicode.IsSpace(r) {
			last = r
		}
	}
	return last
}

// MarkerForGap classifies a single gap per the pause table, for callers
// (e.g. TTS break-duration derivation) that need the category without
// running the full line-building pass.
func MarkerForGap(gap float64) string {
	switch {
	case gap >= gapLongBreath:
		return "paragraph"
	case gap >= gapShortBreath:
		return "long"
	case gap >= gapNone:
		return "short"
	default:
		return ""
	}
}
