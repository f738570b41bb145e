// Package synth implements the TTS Provider's SSML generation, chunked
// parallel synthesis, and timing reconciliation (spec.md §4.7), on top of
// the internal/tts Provider abstraction.
//
// Grounded on the teacher's internal/tts/gemini.go and internal/tts/
// vertex.go request-building style for per-call text construction, and
// internal/pipeline.ProbeDuration (ffprobe via exec.Command) for the
// duration comparison driving timing reconciliation — reworked here onto
// internal/assembly.ProbeDuration / internal/procrunner.
package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/apresai/dubcast/internal/transcript"
)

// defaultMaxBreak bounds the SSML break duration emitted between
// segments; concrete providers may clamp further to their own limits.
const defaultMaxBreak = 10 * time.Second

// ProsodyDefaults carries a voice's default speaking rate and pitch, used
// to fill in each segment's <prosody> element.
type ProsodyDefaults struct {
	Rate  string // e.g. "100%", "" = provider default
	Pitch string // e.g. "0st", "" = provider default
}

// BuildSSML renders one <speak> document covering segs, with per-segment
// <prosody> and inter-segment <break> elements sized to the gap to the
// next segment's start time (clamped to maxBreak), per spec.md §4.7.
// Inline pause markers ("•", "••") that the segmenter leaves in
// TimedSegment.Text are stripped by normalizeText along with whitespace
// normalization, so they are never spoken.
func BuildSSML(segs []transcript.TimedSegment, defaults ProsodyDefaults, maxBreak time.Duration) string {
	if maxBreak <= 0 {
		maxBreak = defaultMaxBreak
	}

	var b strings.Builder
	b.WriteString("<speak>")
	for i, seg := range segs {
		text := normalizeText(seg.Text)
		if text == "" {
			continue
		}

		b.WriteString("<prosody")
		if defaults.Rate != "" {
			fmt.Fprintf(&b, ` rate="%s"`, defaults.Rate)
		}
		if defaults.Pitch != "" {
			fmt.Fprintf(&b, ` pitch="%s"`, defaults.Pitch)
		}
		b.WriteString(">")
		b.WriteString(escapeSSML(text))
		b.WriteString("</prosody>")

		if i+1 < len(segs) {
			gap := segs[i+1].Start - seg.End
			if gap < 0 {
				gap = 0
			}
			d := time.Duration(gap * float64(time.Second))
			if d > maxBreak {
				d = maxBreak
			}
			if d > 0 {
				fmt.Fprintf(&b, `<break time="%.2fs"/>`, d.Seconds())
			}
		}
	}
	b.WriteString("</speak>")
	return b.String()
}

// normalizeText collapses whitespace and strips the literal pause glyphs
// a transcript render might still carry if called on raw parsed text.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "••", "")
	s = strings.ReplaceAll(s, "•", "")
	return strings.Join(strings.Fields(s), " ")
}

func escapeSSML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}
