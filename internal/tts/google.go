package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// GoogleProvider implements Provider using Google Cloud TTS (Chirp 3 HD).
type GoogleProvider struct {
	client *texttospeech.Client
	speed  float64
	pitch  float64
}

func NewGoogleProvider(cfg ProviderConfig) (*GoogleProvider, error) {
	client, err := texttospeech.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}

	return &GoogleProvider{client: client, speed: cfg.Speed, pitch: cfg.Pitch}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageFromVoiceID(voice.ID),
			Name:         voice.ID,
		},
		AudioConfig: p.audioConfig(),
	}

	resp, err := p.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return AudioResult{}, fmt.Errorf("google tts synthesize: %w", err)
	}

	return AudioResult{Data: resp.AudioContent, Format: FormatMP3}, nil
}

func (p *GoogleProvider) audioConfig() *texttospeechpb.AudioConfig {
	cfg := &texttospeechpb.AudioConfig{AudioEncoding: texttospeechpb.AudioEncoding_MP3}
	if p.speed != 0 {
		cfg.SpeakingRate = p.speed
	}
	if p.pitch != 0 {
		cfg.Pitch = p.pitch
	}
	return cfg
}

func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// languageFromVoiceID derives the BCP-47 tag Google expects from a voice
// name of the form "<lang>-<region>-...", e.g. "en-US-Chirp3-HD-Charon".
func languageFromVoiceID(id string) string {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) < 2 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

func (p *GoogleProvider) Voices() []VoiceProfile {
	return []VoiceProfile{
		{Provider: "google", VoiceID: "en-US-Chirp3-HD-Charon", LanguageTag: "en-US", Gender: "male", QualityTier: QualityPremium, Tone: "authoritative", PricePerKChar: 0.016},
		{Provider: "google", VoiceID: "en-US-Chirp3-HD-Leda", LanguageTag: "en-US", Gender: "female", QualityTier: QualityPremium, Tone: "energetic", PricePerKChar: 0.016},
		{Provider: "google", VoiceID: "en-US-Chirp3-HD-Fenrir", LanguageTag: "en-US", Gender: "male", QualityTier: QualityPremium, Tone: "warm", PricePerKChar: 0.016},
		{Provider: "google", VoiceID: "en-US-Chirp3-HD-Kore", LanguageTag: "en-US", Gender: "female", QualityTier: QualityPremium, Tone: "authoritative", PricePerKChar: 0.016},
		{Provider: "google", VoiceID: "en-US-Chirp3-HD-Aoede", LanguageTag: "en-US", Gender: "female", QualityTier: QualityPremium, Tone: "energetic", PricePerKChar: 0.016},
		{Provider: "google", VoiceID: "en-GB-Chirp3-HD-Puck", LanguageTag: "en-GB", Gender: "male", QualityTier: QualityPremium, Tone: "energetic", PricePerKChar: 0.016},
	}
}
