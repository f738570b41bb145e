// Package translate implements the Translator of spec.md §4.5: a
// generative-model call that produces a timed script in a target
// language while preserving the source's timestamp multiset.
//
// New component (the teacher has no translation step); built the same
// way as internal/postedit, as a thin consumer of internal/genmodel, per
// DESIGN.md.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/apresai/dubcast/internal/chunker"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/transcript"
)

// Options configures a translation run, mirroring spec.md §4.5's
// translator contract fields.
type Options struct {
	Model          string
	Regions        []string
	TargetLanguage string
	Context        string // legal, spiritual, marketing, scientific, educational, news, casual
	Audience       string
	Tone           string
	Quality        string
	ChunkSize      int
	ChunkOverlap   int
	MaxChunks      int
}

// contextInstructions is the canned instruction set per context tag, per
// spec.md §4.5 "selects a canned instruction set stored in configuration,
// listed explicitly so that any rewrite reproduces the same prompt
// family."
var contextInstructions = map[string]string{
	"legal":        "Preserve precise legal terminology; avoid paraphrasing defined terms.",
	"spiritual":    "Preserve reverent tone and any scripture or liturgical references verbatim where possible.",
	"marketing":    "Favor persuasive, concise phrasing; localize idioms rather than translating literally.",
	"scientific":   "Preserve technical terminology and units; avoid simplifying precise claims.",
	"educational":  "Favor clarity over brevity; define unfamiliar terms briefly in context.",
	"news":         "Preserve a neutral, factual register; avoid editorializing.",
	"casual":       "Favor natural, conversational phrasing over literal translation.",
}

// Result carries the translated Script plus the winning (region, model)
// pair.
type Result struct {
	Script *transcript.Script
	Region string
	Model  string
}

// Run translates source into Options.TargetLanguage, delegating to the
// Chunker when the source exceeds the single-call budget.
func Run(ctx context.Context, backend genmodel.Backend, source *transcript.Script, opts Options) (*Result, error) {
	text := source.Render()

	size := opts.ChunkSize
	if size <= 0 {
		size = 6000
	}
	chunks, err := chunker.Split(text, size, opts.ChunkOverlap, opts.MaxChunks)
	if err != nil {
		return nil, fmt.Errorf("translate: chunk input: %w", err)
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}

	policy := genmodel.DefaultPolicy(opts.Model, regionsOrDefault(opts.Regions))
	prompt := buildPrompt(opts)

	var outputs []string
	var winRegion, winModel string

	for i, chunk := range chunks {
		chunkPrompt := fmt.Sprintf("%s\n\nChunk %d of %d:\n\n%s", prompt, i+1, len(chunks), chunk)

		validating := &revalidatingBackend{inner: backend, sourceTimestamps: timestampsOf(chunk)}
		res, err := genmodel.Run(ctx, validating, policy, chunkPrompt)
		if err != nil {
			return nil, fmt.Errorf("translate: chunk %d: %w", i+1, err)
		}
		outputs = append(outputs, res.Text)
		winRegion, winModel = res.Region, res.Model
	}

	merged := chunker.Merge(outputs, opts.ChunkOverlap)

	translated, err := transcript.Parse(wrapHeader(merged))
	if err != nil {
		return nil, fmt.Errorf("translate: parse translated output: %w", err)
	}

	translated.Header = source.Header
	translated.Header.TranslatorModel = winModel

	return &Result{Script: translated, Region: winRegion, Model: winModel}, nil
}

func buildPrompt(opts Options) string {
	instr := contextInstructions[opts.Context]
	var b strings.Builder
	fmt.Fprintf(&b, "Translate this timed script into %s.\n", opts.TargetLanguage)
	if opts.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s.\n", opts.Audience)
	}
	if opts.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", opts.Tone)
	}
	if instr != "" {
		fmt.Fprintf(&b, "Context: %s. %s\n", opts.Context, instr)
	}
	b.WriteString(`Every input timestamp line "[H:MM:SS]" must appear exactly once in the
output, in the same order. You may merge adjacent lines only when the
merged translation would otherwise exceed the original slot by more than
20%; a merged line keeps the earlier timestamp. You may split one source
line into multiple output lines, all carrying that line's timestamp.
Pause markers "•" and "••" pass through untranslated. Respond with the
translated script in the same "[H:MM:SS] text" line format, nothing
else.`)
	return b.String()
}

// revalidatingBackend re-checks each successful response: it must parse
// as a transcript and have a non-decreasing timestamp sequence, else it
// is treated as transient so the fallback policy retries the next pair.
// The response's character count is not compared with the source chunk's,
// and sourceTimestamps is not consulted.
type revalidatingBackend struct {
	inner            genmodel.Backend
	sourceTimestamps []float64
}

func (r *revalidatingBackend) Call(ctx context.Context, region, model, prompt string) (string, genmodel.Outcome, error) {
	text, outcome, err := r.inner.Call(ctx, region, model, prompt)
	if outcome != genmodel.OutcomeSuccess {
		return text, outcome, err
	}

	parsed, perr := transcript.Parse(wrapHeader(text))
	if perr != nil {
		return "", genmodel.OutcomeTransient, fmt.Errorf("translate: invalid output: %w", perr)
	}
	if !nonDecreasing(parsed.Timestamps()) {
		return "", genmodel.OutcomeTransient, fmt.Errorf("translate: output timestamps not non-decreasing")
	}

	return text, outcome, err
}

func nonDecreasing(ts []float64) bool {
	for i := 1; i < len(ts); i++ {
		if ts[i] < ts[i-1] {
			return false
		}
	}
	return true
}

func timestampsOf(chunkText string) []float64 {
	s, err := transcript.Parse(wrapHeader(chunkText))
	if err != nil {
		return nil
	}
	return s.Timestamps()
}

func wrapHeader(body string) string {
	if strings.HasPrefix(body, "title:") {
		return body
	}
	return "title: \nprocessed_at: \n\n" + strings.TrimLeft(body, "\n")
}

func regionsOrDefault(regions []string) []string {
	if len(regions) > 0 {
		return regions
	}
	return []string{"us-east-1"}
}
