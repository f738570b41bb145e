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
)

// geminiModels maps this package's tier/model names onto concrete Gemini
// model ids, mirroring the teacher's script/gemini.go geminiModels table.
var geminiModels = map[string]string{
	"latest-fast":  "gemini-2.5-flash",
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

const geminiGenerateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// GeminiBackend calls the Gemini generateContent REST endpoint directly,
// ignoring region like AnthropicBackend does (AI Studio is not
// region-partitioned). Serves the "latest-fast" tier of the fallback
// policy, grounded on the teacher's script/gemini.go request/response
// shape and tts/gemini.go's raw-HTTP adapter conventions.
type GeminiBackend struct {
	apiKey     string
	httpClient *http.Client
}

func NewGeminiBackend(apiKey string) *GeminiBackend {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return &GeminiBackend{apiKey: apiKey, httpClient: &http.Client{Timeout: 120 * time.Second}}
}

type geminiTextRequest struct {
	Contents []geminiTextContent `json:"contents"`
}

type geminiTextContent struct {
	Parts []geminiTextPart `json:"parts"`
}

type geminiTextPart struct {
	Text string `json:"text"`
}

type geminiTextResponse struct {
	Candidates []geminiTextCandidate `json:"candidates"`
}

type geminiTextCandidate struct {
	Content geminiTextContent `json:"content"`
}

func (g *GeminiBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	modelID, ok := geminiModels[model]
	if !ok {
		return "", OutcomeModelUnavailable, errModelUnavailable(model)
	}

	reqBody := geminiTextRequest{Contents: []geminiTextContent{{Parts: []geminiTextPart{{Text: prompt}}}}}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", OutcomeFatal, fmt.Errorf("genmodel: marshal gemini request: %w", err)
	}

	url := fmt.Sprintf(geminiGenerateEndpoint+"?key=%s", modelID, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", OutcomeFatal, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", OutcomeTransient, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", OutcomeTransient, err
	}

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		return "", OutcomeTransient, fmt.Errorf("genmodel: gemini status %d: %s", res.StatusCode, string(respBody))
	}
	if res.StatusCode == http.StatusNotFound {
		return "", OutcomeModelUnavailable, fmt.Errorf("genmodel: gemini model unavailable: %s", string(respBody))
	}
	if res.StatusCode != http.StatusOK {
		return "", OutcomeFatal, fmt.Errorf("genmodel: gemini status %d: %s", res.StatusCode, string(respBody))
	}

	var parsed geminiTextResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", OutcomeTransient, fmt.Errorf("genmodel: parse gemini response: %w", err)
	}
	text := extractGeminiText(parsed)
	if text == "" {
		return "", OutcomeTransient, errEmptyResponse
	}
	return text, OutcomeSuccess, nil
}

func extractGeminiText(resp geminiTextResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "")
}
