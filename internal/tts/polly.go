package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// pollyVoiceLang maps voice IDs to their language codes.
var pollyVoiceLang = map[string]types.LanguageCode{
	"Matthew":  types.LanguageCodeEnUs,
	"Ruth":     types.LanguageCodeEnUs,
	"Stephen":  types.LanguageCodeEnUs,
	"Danielle": types.LanguageCodeEnUs,
	"Amy":      types.LanguageCodeEnGb,
	"Olivia":   types.LanguageCodeEnAu,
	"Kajal":    types.LanguageCodeEnIn,
}

// PollyProvider implements Provider using AWS Polly (Generative engine).
type PollyProvider struct {
	client *polly.Client
}

func NewPollyProvider(cfg ProviderConfig) (*PollyProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load AWS config for Polly: %w", err)
	}

	return &PollyProvider{client: polly.NewFromConfig(awsCfg)}, nil
}

func (p *PollyProvider) Name() string { return "polly" }

func (p *PollyProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	lang, ok := pollyVoiceLang[voice.ID]
	if !ok {
		lang = types.LanguageCodeEnUs
	}

	input := &polly.SynthesizeSpeechInput{
		Engine:       types.EngineGenerative,
		OutputFormat: types.OutputFormatMp3,
		SampleRate:   strPtr("24000"),
		Text:         &text,
		TextType:     types.TextTypeText,
		VoiceId:      types.VoiceId(voice.ID),
		LanguageCode: lang,
	}

	resp, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return AudioResult{}, fmt.Errorf("Polly synthesize: %w", err)
	}
	defer resp.AudioStream.Close()

	data, err := io.ReadAll(resp.AudioStream)
	if err != nil {
		return AudioResult{}, fmt.Errorf("Polly read audio: %w", err)
	}

	return AudioResult{Data: data, Format: FormatMP3}, nil
}

func (p *PollyProvider) Close() error { return nil }

func strPtr(s string) *string { return &s }

func (p *PollyProvider) Voices() []VoiceProfile {
	return []VoiceProfile{
		{Provider: "polly", VoiceID: "Matthew", LanguageTag: "en-US", Gender: "male", QualityTier: QualityEnhanced, Tone: "authoritative", PricePerKChar: 0.03},
		{Provider: "polly", VoiceID: "Ruth", LanguageTag: "en-US", Gender: "female", QualityTier: QualityEnhanced, Tone: "neutral", PricePerKChar: 0.03},
		{Provider: "polly", VoiceID: "Stephen", LanguageTag: "en-US", Gender: "male", QualityTier: QualityEnhanced, Tone: "warm", PricePerKChar: 0.03},
		{Provider: "polly", VoiceID: "Danielle", LanguageTag: "en-US", Gender: "female", QualityTier: QualityEnhanced, Tone: "energetic", PricePerKChar: 0.03},
		{Provider: "polly", VoiceID: "Amy", LanguageTag: "en-GB", Gender: "female", QualityTier: QualityEnhanced, Tone: "neutral", PricePerKChar: 0.03},
		{Provider: "polly", VoiceID: "Olivia", LanguageTag: "en-AU", Gender: "female", QualityTier: QualityEnhanced, Tone: "warm", PricePerKChar: 0.03},
		{Provider: "polly", VoiceID: "Kajal", LanguageTag: "en-IN", Gender: "female", QualityTier: QualityEnhanced, Tone: "neutral", PricePerKChar: 0.03},
	}
}
