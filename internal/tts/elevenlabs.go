package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	elevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsOutputFormat = "mp3_44100_128"
)

type elevenLabsRequest struct {
	Text          string                `json:"text"`
	ModelID       string                `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSetup `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSetup struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// ElevenLabsProvider implements Provider against the ElevenLabs
// text-to-speech REST API.
type ElevenLabsProvider struct {
	apiKey     string
	model      string
	stability  float64
	httpClient *http.Client
}

func NewElevenLabsProvider(cfg ProviderConfig) *ElevenLabsProvider {
	model := elevenLabsDefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	stability := cfg.Stability
	if stability == 0 {
		stability = 0.5
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &ElevenLabsProvider{
		apiKey:     apiKey,
		model:      model,
		stability:  stability,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &elevenLabsVoiceSetup{
			Stability:       p.stability,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
			Speed:           1.0,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return AudioResult{}, fmt.Errorf("marshal ElevenLabs request: %w", err)
	}

	url := fmt.Sprintf("%s/%s?output_format=%s", elevenLabsAPIBaseURL, voice.ID, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return AudioResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return AudioResult{}, fmt.Errorf("send ElevenLabs request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests ||
		res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(res.Body)
		return AudioResult{}, &RetryableError{StatusCode: res.StatusCode, Body: string(errBody)}
	}

	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return AudioResult{}, fmt.Errorf("ElevenLabs API error (status %d): %s", res.StatusCode, string(errBody))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioResult{}, fmt.Errorf("read ElevenLabs response: %w", err)
	}
	return AudioResult{Data: data, Format: FormatMP3}, nil
}

func (p *ElevenLabsProvider) Close() error { return nil }

func (p *ElevenLabsProvider) Voices() []VoiceProfile {
	return []VoiceProfile{
		{Provider: "elevenlabs", VoiceID: "JBFqnCBsd6RMkjVDRZzb", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStudio, Tone: "authoritative", PricePerKChar: 0.18},
		{Provider: "elevenlabs", VoiceID: "EXAVITQu4vr4xnSDxMaL", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStudio, Tone: "warm", PricePerKChar: 0.18},
		{Provider: "elevenlabs", VoiceID: "pNInz6obpgDQGcFmaJgB", LanguageTag: "en-US", Gender: "male", QualityTier: QualityStudio, Tone: "neutral", PricePerKChar: 0.18},
		{Provider: "elevenlabs", VoiceID: "21m00Tcm4TlvDq8ikWAM", LanguageTag: "en-US", Gender: "female", QualityTier: QualityStudio, Tone: "energetic", PricePerKChar: 0.18},
	}
}
