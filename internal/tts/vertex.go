package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
)

const (
	vertexDefaultModel        = "gemini-2.5-flash-tts"
	vertexDefaultRegion       = "us-central1"
	vertexExpressEndpointBase = "https://aiplatform.googleapis.com/v1/publishers/google/models/"
)

// VertexProvider implements Provider against the Vertex AI API
// (aiplatform.googleapis.com) for Gemini TTS. Same voice names and
// request format as the AI Studio GeminiProvider, but with Vertex's
// higher rate limits. Two auth modes are supported:
//
//   - OAuth2 via Application Default Credentials (project+region
//     required), used when cfg.APIKey is empty.
//   - "express mode": a Google Cloud API key against the same
//     aiplatform.googleapis.com host, used when cfg.APIKey is set —
//     no gcloud ADC setup required, at the cost of a separate quota.
type VertexProvider struct {
	project    string
	region     string
	model      string
	apiKey     string // non-empty selects express mode
	httpClient *http.Client
}

func NewVertexProvider(cfg ProviderConfig) (*VertexProvider, error) {
	model := vertexDefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	client := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 70 * time.Second,
			IdleConnTimeout:       10 * time.Second,
			DisableKeepAlives:     true,
		},
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("VERTEX_AI_API_KEY")
	}
	if apiKey != "" {
		return &VertexProvider{model: model, apiKey: apiKey, httpClient: client}, nil
	}

	project := os.Getenv("GCP_PROJECT")
	if project == "" {
		return nil, fmt.Errorf("GCP_PROJECT environment variable is required for gemini-vertex TTS provider (or set VERTEX_AI_API_KEY for express mode)")
	}
	region := os.Getenv("GCP_REGION")
	if region == "" {
		region = vertexDefaultRegion
	}

	return &VertexProvider{project: project, region: region, model: model, httpClient: client}, nil
}

func (p *VertexProvider) Name() string { return "gemini-vertex" }

func (p *VertexProvider) express() bool { return p.apiKey != "" }

func (p *VertexProvider) endpoint() string {
	if p.express() {
		return vertexExpressEndpointBase + p.model + ":generateContent"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		p.region, p.project, p.region, p.model)
}

// getAccessToken obtains an OAuth2 token via Application Default Credentials.
func (p *VertexProvider) getAccessToken(ctx context.Context) (string, error) {
	ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("get default token source: %w (hint: run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS)", err)
	}
	token, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token.AccessToken, nil
}

func (p *VertexProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: text}}},
		},
		GenerationConfig: geminiGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: geminiSpeechConfig{
				VoiceConfig: &geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voice.ID},
				},
			},
		},
	}

	data, err := p.doRequest(ctx, req)
	if err != nil {
		return AudioResult{}, err
	}
	return AudioResult{Data: data, Format: FormatPCM}, nil
}

func (p *VertexProvider) doRequest(ctx context.Context, reqBody geminiRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal Vertex request: %w", err)
	}

	url := p.endpoint()
	if p.express() {
		url += "?key=" + p.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if !p.express() {
		token, err := p.getAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &RetryableError{StatusCode: 0, Body: fmt.Sprintf("network error: %v", err)}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests ||
		res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(res.Body)
		bodyStr := string(errBody)

		if p.express() && res.StatusCode == http.StatusTooManyRequests {
			bodyLower := strings.ToLower(bodyStr)
			if strings.Contains(bodyLower, "resource_exhausted") &&
				(strings.Contains(bodyLower, "per day") || strings.Contains(bodyLower, "per_day") || strings.Contains(bodyLower, "rpd")) {
				return nil, fmt.Errorf("vertex express TTS daily quota exhausted (RPD limit); try again tomorrow or switch provider")
			}
		}

		var retryAfter time.Duration
		if ra := res.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &RetryableError{StatusCode: res.StatusCode, Body: bodyStr, RetryAfter: retryAfter}
	}

	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("Vertex AI API error (status %d): %s", res.StatusCode, string(errBody))
	}

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read Vertex response: %w", err)
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse Vertex response: %w", err)
	}

	if len(resp.Candidates) == 0 ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].InlineData == nil {
		return nil, fmt.Errorf("Vertex response contained no audio data")
	}

	audioB64 := resp.Candidates[0].Content.Parts[0].InlineData.Data
	audioBytes, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return nil, fmt.Errorf("decode Vertex audio base64: %w", err)
	}
	return audioBytes, nil
}

func (p *VertexProvider) Close() error { return nil }

func (p *VertexProvider) Voices() []VoiceProfile {
	return []VoiceProfile{
		{Provider: "gemini-vertex", VoiceID: "Charon", LanguageTag: "en-US", Gender: "male", QualityTier: QualityEnhanced, Tone: "authoritative", PricePerKChar: 0.012},
		{Provider: "gemini-vertex", VoiceID: "Leda", LanguageTag: "en-US", Gender: "female", QualityTier: QualityEnhanced, Tone: "energetic", PricePerKChar: 0.012},
		{Provider: "gemini-vertex", VoiceID: "Fenrir", LanguageTag: "en-US", Gender: "male", QualityTier: QualityEnhanced, Tone: "energetic", PricePerKChar: 0.012},
		{Provider: "gemini-vertex", VoiceID: "Kore", LanguageTag: "en-US", Gender: "female", QualityTier: QualityEnhanced, Tone: "authoritative", PricePerKChar: 0.012},
		{Provider: "gemini-vertex", VoiceID: "Aoede", LanguageTag: "en-US", Gender: "female", QualityTier: QualityEnhanced, Tone: "neutral", PricePerKChar: 0.012},
		{Provider: "gemini-vertex", VoiceID: "Puck", LanguageTag: "en-US", Gender: "male", QualityTier: QualityEnhanced, Tone: "energetic", PricePerKChar: 0.012},
	}
}

var _ Provider = (*VertexProvider)(nil)
