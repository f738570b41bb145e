package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	geminiDefaultTTSModel = "gemini-2.5-pro-preview-tts"
	geminiEndpointBase    = "https://generativelanguage.googleapis.com/v1beta/models/"
)

// geminiRequest is the top-level request to the Gemini generateContent TTS endpoint.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig *geminiVoiceConfig `json:"voiceConfig,omitempty"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

// geminiResponse is the generateContent response structure.
type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiRespContent `json:"content"`
}

type geminiRespContent struct {
	Parts []geminiRespPart `json:"parts"`
}

type geminiRespPart struct {
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded PCM
}

// GeminiProvider implements Provider using the Gemini AI Studio TTS endpoint.
type GeminiProvider struct {
	apiKey     string
	httpClient *http.Client
	model      string
}

func NewGeminiProvider(cfg ProviderConfig) *GeminiProvider {
	model := geminiDefaultTTSModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	return &GeminiProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 300 * time.Second},
		model:      model,
	}
}

// endpoint returns the full API URL for this provider's model.
func (p *GeminiProvider) endpoint() string {
	return geminiEndpointBase + p.model + ":generateContent"
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: text}}},
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

func (p *GeminiProvider) doRequest(ctx context.Context, reqBody geminiRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal Gemini request: %w", err)
	}

	url := p.endpoint() + "?key=" + p.apiKey

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send Gemini request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests ||
		res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(res.Body)
		return nil, &RetryableError{
			StatusCode: res.StatusCode,
			Body:       string(errBody),
		}
	}

	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("Gemini API error (status %d): %s", res.StatusCode, string(errBody))
	}

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read Gemini response: %w", err)
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse Gemini response: %w", err)
	}

	if len(resp.Candidates) == 0 ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].InlineData == nil {
		return nil, fmt.Errorf("Gemini response contained no audio data")
	}

	audioB64 := resp.Candidates[0].Content.Parts[0].InlineData.Data
	audioBytes, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return nil, fmt.Errorf("decode Gemini audio base64: %w", err)
	}

	return audioBytes, nil
}

func (p *GeminiProvider) Close() error { return nil }

func (p *GeminiProvider) Voices() []VoiceProfile {
	return []VoiceProfile{
		{Provider: "gemini", VoiceID: "Charon", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStandard, Tone: "authoritative", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Leda", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "energetic", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Fenrir", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStandard, Tone: "energetic", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Achernar", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "warm", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Achird", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStandard, Tone: "warm", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Aoede", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "neutral", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Autonoe", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "energetic", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Callirrhoe", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "neutral", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Enceladus", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStandard, Tone: "neutral", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Gacrux", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStandard, Tone: "authoritative", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Kore", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "authoritative", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Puck", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStandard, Tone: "energetic", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Sulafat", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "warm", PricePerKChar: 0.01},
		{Provider: "gemini", VoiceID: "Zephyr", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStandard, Tone: "neutral", PricePerKChar: 0.01},
	}
}
