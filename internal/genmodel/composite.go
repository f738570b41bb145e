package genmodel

import (
	"context"
	"errors"
	"fmt"
)

var errEmptyResponse = errors.New("genmodel: empty response")

func errModelUnavailable(model string) error {
	return fmt.Errorf("genmodel: model %q not available on this backend", model)
}

// CompositeBackend routes each AutoCandidates tier (or explicit model id)
// to whichever concrete backend serves it, so a single Policy/Run call
// can fall back across vendors as well as regions, per spec.md §4.5:
// "recommended-fast"/"recommended-detailed" (and explicit Claude ids) go
// to Anthropic direct, "latest-fast" (and explicit Gemini ids) go to
// Gemini direct, "legacy-fallback" (and explicit Nova ids) go to Bedrock.
// This is what makes the auto-expansion ladder a genuine cross-vendor
// fallback rather than a single vendor's four model tiers.
type CompositeBackend struct {
	anthropic *AnthropicBackend
	gemini    *GeminiBackend
	bedrock   *BedrockBackend
}

// NewDefaultBackend wires the three backends together, reading
// ANTHROPIC_API_KEY/GEMINI_API_KEY/AWS credentials from the environment.
func NewDefaultBackend() *CompositeBackend {
	return &CompositeBackend{
		anthropic: NewAnthropicBackend(""),
		gemini:    NewGeminiBackend(""),
		bedrock:   NewBedrockBackend(),
	}
}

func (c *CompositeBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	if _, ok := anthropicModels[model]; ok {
		return c.anthropic.Call(ctx, region, model, prompt)
	}
	if _, ok := geminiModels[model]; ok {
		return c.gemini.Call(ctx, region, model, prompt)
	}
	if _, ok := bedrockModels[model]; ok {
		return c.bedrock.Call(ctx, region, model, prompt)
	}
	return "", OutcomeModelUnavailable, errModelUnavailable(model)
}
