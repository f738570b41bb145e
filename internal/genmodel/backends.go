package genmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// DispatchBackend routes a call to the concrete backend that owns the
// requested model tier, so a single genmodel.Run invocation can expand
// "auto" across Claude, Gemini, and Nova exactly as spec.md §4.5's
// candidate list implies (each tier is a different vendor in practice).
type DispatchBackend struct {
	Claude *ClaudeBackend
	Gemini *GeminiBackend
	Nova   *NovaBackend
}

func (d *DispatchBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	switch model {
	case "recommended-fast", "recommended-detailed":
		if d.Claude == nil {
			return "", OutcomeModelUnavailable, fmt.Errorf("dispatch: no Claude backend configured")
		}
		return d.Claude.Call(ctx, region, model, prompt)
	case "latest-fast":
		if d.Gemini == nil {
			return "", OutcomeModelUnavailable, fmt.Errorf("dispatch: no Gemini backend configured")
		}
		return d.Gemini.Call(ctx, region, model, prompt)
	case "legacy-fallback":
		if d.Nova == nil {
			return "", OutcomeModelUnavailable, fmt.Errorf("dispatch: no Nova backend configured")
		}
		return d.Nova.Call(ctx, region, model, prompt)
	default:
		return "", OutcomeModelUnavailable, fmt.Errorf("dispatch: unknown model tier %q", model)
	}
}

// ClaudeBackend adapts Anthropic's Messages API to the Backend interface,
// grounded on the teacher's internal/script/claude.go Generate() (model
// table, system+user prompt split, text extraction) with the retry loop
// itself removed — genmodel.Run owns retries now.
type ClaudeBackend struct {
	APIKey      string
	System      string
	MaxTokens   int64
	Temperature float64
}

var claudeModelIDs = map[string]string{
	"recommended-fast":     "claude-haiku-4-5-20251001",
	"recommended-detailed": "claude-sonnet-4-5-20250929",
}

func (b *ClaudeBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	modelID, ok := claudeModelIDs[model]
	if !ok {
		return "", OutcomeModelUnavailable, fmt.Errorf("claude: unknown model tier %q", model)
	}

	var client anthropic.Client
	if b.APIKey != "" {
		client = anthropic.NewClient(option.WithAPIKey(b.APIKey))
	} else {
		client = anthropic.NewClient()
	}

	maxTokens := b.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	temp := b.Temperature
	if temp == 0 {
		temp = 0.7
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temp),
		System:      []anthropic.TextBlockParam{{Text: b.System}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", classifyAnthropicError(err), err
	}

	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return "", OutcomeTransient, fmt.Errorf("claude: empty response")
	}
	return text, OutcomeSuccess, nil
}

func classifyAnthropicError(err error) Outcome {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not_found_error") || strings.Contains(msg, "model:"):
		return OutcomeModelUnavailable
	case strings.Contains(msg, "rate_limit") || strings.Contains(msg, "overloaded") || strings.Contains(msg, "timeout"):
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}

// NovaBackend adapts AWS Bedrock's Converse API to the Backend interface,
// grounded on the teacher's internal/script/nova.go (bedrockruntime
// client, region-scoped config, Converse call). Unlike the teacher, which
// loads one fixed-region client, this backend opens a region-scoped
// client per call so genmodel.Run's region dimension is real, per
// SPEC_FULL.md §4.5.
type NovaBackend struct {
	System string
}

var novaModelIDs = map[string]string{
	"legacy-fallback": "us.amazon.nova-2-lite-v1:0",
}

func (b *NovaBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	modelID, ok := novaModelIDs[model]
	if !ok {
		return "", OutcomeModelUnavailable, fmt.Errorf("nova: unknown model tier %q", model)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return "", OutcomeRegionUnavailable, fmt.Errorf("nova: load aws config for region %s: %w", region, err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)

	out, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		System:  []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: b.System}},
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
			},
		},
	})
	if err != nil {
		return "", classifyBedrockError(err), err
	}

	text := extractNovaText(out)
	if text == "" {
		return "", OutcomeTransient, fmt.Errorf("nova: empty response")
	}
	return text, OutcomeSuccess, nil
}

func extractNovaText(out *bedrockruntime.ConverseOutput) string {
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var parts []string
	for _, block := range msgOutput.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			parts = append(parts, tb.Value)
		}
	}
	return strings.Join(parts, "")
}

func classifyBedrockError(err error) Outcome {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resourcenotfound") || strings.Contains(msg, "validationexception"):
		return OutcomeModelUnavailable
	case strings.Contains(msg, "throttl") || strings.Contains(msg, "timeout") || strings.Contains(msg, "servererror"):
		return OutcomeTransient
	case strings.Contains(msg, "unrecognizedclientexception") || strings.Contains(msg, "could not connect"):
		return OutcomeRegionUnavailable
	default:
		return OutcomeFatal
	}
}

// GeminiBackend adapts the Gemini AI Studio generateContent REST endpoint,
// grounded on the teacher's internal/tts/gemini.go doRequest pattern
// (raw net/http, RetryableError-by-status-code), reused here for text
// generation instead of TTS.
type GeminiBackend struct {
	System     string
	HTTPClient *http.Client
}

var geminiModelIDs = map[string]string{
	"latest-fast": "gemini-2.5-flash",
}

const geminiTextEndpointBase = "https://generativelanguage.googleapis.com/v1beta/models/"

type geminiTextRequest struct {
	SystemInstruction *geminiTextContent `json:"systemInstruction,omitempty"`
	Contents          []geminiTextContent `json:"contents"`
}

type geminiTextContent struct {
	Parts []geminiTextPart `json:"parts"`
}

type geminiTextPart struct {
	Text string `json:"text"`
}

type geminiTextResponse struct {
	Candidates []struct {
		Content geminiTextContent `json:"content"`
	} `json:"candidates"`
}

func (b *GeminiBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	modelID, ok := geminiModelIDs[model]
	if !ok {
		return "", OutcomeModelUnavailable, fmt.Errorf("gemini: unknown model tier %q", model)
	}

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	reqBody := geminiTextRequest{
		Contents: []geminiTextContent{{Parts: []geminiTextPart{{Text: prompt}}}},
	}
	if b.System != "" {
		reqBody.SystemInstruction = &geminiTextContent{Parts: []geminiTextPart{{Text: b.System}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", OutcomeFatal, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := geminiTextEndpointBase + modelID + ":generateContent?key=" + os.Getenv("GEMINI_API_KEY")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", OutcomeFatal, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", OutcomeTransient, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", OutcomeModelUnavailable, fmt.Errorf("gemini: model not found: %s", string(respBody))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return "", OutcomeTransient, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode != http.StatusOK:
		return "", OutcomeFatal, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed geminiTextResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", OutcomeTransient, fmt.Errorf("gemini: parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", OutcomeTransient, fmt.Errorf("gemini: empty response")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, OutcomeSuccess, nil
}
