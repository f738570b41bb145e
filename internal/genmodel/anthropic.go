package genmodel

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicModels maps this package's tier/model names onto concrete
// Claude model ids, mirroring the teacher's script/claude.go claudeModels
// table.
var anthropicModels = map[string]string{
	"recommended-fast":     "claude-haiku-4-5-20251001",
	"recommended-detailed": "claude-sonnet-4-5-20250929",
	"haiku":                "claude-haiku-4-5-20251001",
	"sonnet":               "claude-sonnet-4-5-20250929",
}

const anthropicMaxTokens = 8192

// AnthropicBackend calls the Claude API directly, ignoring the region
// argument: the direct Anthropic API is not region-partitioned the way
// Bedrock is, so every region in a Policy's region list resolves to the
// same endpoint here. Serves the "recommended-fast"/"recommended-detailed"
// tiers of the fallback policy (spec.md §4.5); "latest-fast" goes to
// GeminiBackend and "legacy-fallback" to BedrockBackend, whose region
// dimension is the one spec.md §4.5's fallback actually exercises.
type AnthropicBackend struct {
	apiKey string // "" uses ANTHROPIC_API_KEY from the environment
}

func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	return &AnthropicBackend{apiKey: apiKey}
}

func (b *AnthropicBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	modelID, ok := anthropicModels[model]
	if !ok {
		return "", OutcomeModelUnavailable, errModelUnavailable(model)
	}

	var client anthropic.Client
	if b.apiKey != "" {
		client = anthropic.NewClient(option.WithAPIKey(b.apiKey))
	} else {
		client = anthropic.NewClient()
	}

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicError(err), err
	}

	text := extractAnthropicText(message)
	if text == "" {
		return "", OutcomeTransient, errEmptyResponse
	}
	return text, OutcomeSuccess, nil
}

func extractAnthropicText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

func classifyAnthropicError(err error) Outcome {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not_found_error") || strings.Contains(msg, "model"):
		return OutcomeModelUnavailable
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "timeout"):
		return OutcomeTransient
	default:
		return OutcomeTransient
	}
}
