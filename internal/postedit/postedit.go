// Package postedit implements the Script Post-Editor of spec.md §4.5: a
// generative-model call over a raw timed script that cleans punctuation,
// capitalization, and line breaks while preserving every timestamp and
// segment order.
//
// Grounded on the teacher's internal/script/review.go Reviewer (heuristic
// Phase A + LLM Phase B revision), adapted into a re-validation-on-failure
// loop against internal/genmodel rather than a standalone review pass.
package postedit

import (
	"context"
	"fmt"
	"strings"

	"github.com/apresai/dubcast/internal/chunker"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/transcript"
)

// Options configures a post-edit run.
type Options struct {
	Model       string // "" / "auto" or an explicit tier
	Regions     []string
	ChunkSize   int
	ChunkOverlap int
	MaxChunks   int
}

const systemPrompt = `You are a transcript editor. You receive a timed script with lines of the
form "[H:MM:SS] words...". Clean up punctuation and capitalization and
improve line breaks for readability. You MUST preserve every timestamp
exactly and MUST NOT reorder, add, or remove segments. Respond with the
edited script in the same "[H:MM:SS] text" line format, nothing else.`

// Result carries the edited Script plus the winning (region, model) pair
// for reproducibility, per spec.md §4.5 step 5.
type Result struct {
	Script *transcript.Script
	Region string
	Model  string
}

// Run post-edits raw, delegating to the Chunker when raw exceeds the
// single-call budget, and merging the per-chunk outputs back together.
func Run(ctx context.Context, backend genmodel.Backend, raw *transcript.Script, opts Options) (*Result, error) {
	text := raw.Render()

	size := opts.ChunkSize
	if size <= 0 {
		size = 8000
	}

	chunks, err := chunker.Split(text, size, opts.ChunkOverlap, opts.MaxChunks)
	if err != nil {
		return nil, fmt.Errorf("postedit: chunk input: %w", err)
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}

	policy := genmodel.DefaultPolicy(opts.Model, regionsOrDefault(opts.Regions))

	var outputs []string
	var winRegion, winModel string

	for i, chunk := range chunks {
		prompt := fmt.Sprintf("Edit this script chunk (%d of %d):\n\n%s", i+1, len(chunks), chunk)

		res, err := runWithRevalidation(ctx, backend, policy, prompt)
		if err != nil {
			return nil, fmt.Errorf("postedit: chunk %d: %w", i+1, err)
		}
		outputs = append(outputs, res.Text)
		winRegion, winModel = res.Region, res.Model
	}

	merged := chunker.Merge(outputs, opts.ChunkOverlap)

	edited, err := transcript.Parse(wrapHeader(merged))
	if err != nil {
		return nil, fmt.Errorf("postedit: parse edited output: %w", err)
	}
	if err := edited.Validate(); err != nil {
		return nil, fmt.Errorf("postedit: edited output failed validation: %w", err)
	}
	if !sameTimestamps(raw, edited) {
		return nil, fmt.Errorf("postedit: edited output changed timestamps")
	}

	edited.Header = raw.Header
	edited.Header.PostEditorModel = winModel

	return &Result{Script: edited, Region: winRegion, Model: winModel}, nil
}

// runWithRevalidation wraps genmodel.Run with the re-validation-as-
// transient-error rule of spec.md §9: "Generative-model responses as
// authoritative script: always re-validated by the Script parser before
// acceptance; invalid output is treated as a transient error."
func runWithRevalidation(ctx context.Context, backend genmodel.Backend, policy genmodel.Policy, prompt string) (*genmodel.Result, error) {
	validating := &revalidatingBackend{inner: backend}
	return genmodel.Run(ctx, validating, policy, prompt)
}

type revalidatingBackend struct{ inner genmodel.Backend }

func (r *revalidatingBackend) Call(ctx context.Context, region, model, prompt string) (string, genmodel.Outcome, error) {
	text, outcome, err := r.inner.Call(ctx, region, model, prompt)
	if outcome != genmodel.OutcomeSuccess {
		return text, outcome, err
	}
	if _, perr := transcript.Parse(wrapHeader(text)); perr != nil {
		return "", genmodel.OutcomeTransient, fmt.Errorf("postedit: invalid script output: %w", perr)
	}
	return text, outcome, err
}

func wrapHeader(body string) string {
	if strings.HasPrefix(body, "title:") {
		return body
	}
	return "title: \nprocessed_at: \n\n" + strings.TrimLeft(body, "\n")
}

func sameTimestamps(a, b *transcript.Script) bool {
	ta, tb := a.Timestamps(), b.Timestamps()
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

func regionsOrDefault(regions []string) []string {
	if len(regions) > 0 {
		return regions
	}
	return []string{"us-east-1"}
}
