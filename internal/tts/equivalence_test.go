package tts

import "testing"

func profile(provider, voiceID, lang, gender string, tier QualityTier, tone string, price float64) VoiceProfile {
	return VoiceProfile{
		Provider:      provider,
		VoiceID:       voiceID,
		LanguageTag:   lang,
		Gender:        gender,
		QualityTier:   tier,
		Tone:          tone,
		PricePerKChar: price,
	}
}

func newTestCatalog() *Catalog {
	c := &Catalog{byProvider: map[string][]VoiceProfile{
		"elevenlabs": {
			profile("elevenlabs", "en-warm", "en-US", "female", QualityPremium, "warm", 0.30),
			profile("elevenlabs", "es-warm", "es-ES", "female", QualityPremium, "warm", 0.30),
		},
		"google": {
			profile("google", "en-standard", "en-US", "female", QualityStandard, "neutral", 0.04),
			profile("google", "en-enhanced", "en-US", "female", QualityEnhanced, "warm", 0.10),
		},
		"polly": {
			profile("polly", "en-neural", "en-US", "male", QualityEnhanced, "neutral", 0.06),
		},
	}}
	return c
}

func TestLookupExactMatch(t *testing.T) {
	c := newTestCatalog()
	v, ok := c.Lookup("google", "en-enhanced")
	if !ok {
		t.Fatal("expected en-enhanced to be found")
	}
	if v.Provider != "google" || v.VoiceID != "en-enhanced" {
		t.Errorf("unexpected voice: %+v", v)
	}
}

func TestLookupMissingVoice(t *testing.T) {
	c := newTestCatalog()
	if _, ok := c.Lookup("google", "does-not-exist"); ok {
		t.Error("expected lookup to fail for an unknown voice id")
	}
}

func TestEquivalentReflexiveSameProvider(t *testing.T) {
	c := newTestCatalog()
	target := profile("google", "en-enhanced", "en-US", "female", QualityEnhanced, "warm", 0.10)
	v, ok := c.Equivalent(target, "google")
	if !ok || v.VoiceID != "en-enhanced" {
		t.Errorf("expected reflexive lookup to return the same voice, got %+v ok=%v", v, ok)
	}
}

func TestEquivalentCrossProviderPrefersMatchingGenderAndTone(t *testing.T) {
	c := newTestCatalog()
	target := profile("elevenlabs", "en-warm", "en-US", "female", QualityPremium, "warm", 0.30)
	v, ok := c.Equivalent(target, "google")
	if !ok {
		t.Fatal("expected an equivalent voice on google")
	}
	if v.VoiceID != "en-enhanced" {
		t.Errorf("expected en-enhanced (matching gender+warm tone) to win over en-standard, got %q", v.VoiceID)
	}
}

func TestSelectCostFirstPicksCheapestInLanguage(t *testing.T) {
	c := newTestCatalog()
	provider, v, ok := c.Select([]string{"elevenlabs", "google", "polly"}, "en-US", "", "", true)
	if !ok {
		t.Fatal("expected a match")
	}
	if provider != "google" || v.VoiceID != "en-standard" {
		t.Errorf("expected cheapest en-US voice (google/en-standard), got %s/%s", provider, v.VoiceID)
	}
}

func TestSelectQualityFirstPrefersHigherTier(t *testing.T) {
	c := newTestCatalog()
	provider, v, ok := c.Select([]string{"google", "polly"}, "en-US", "", "", false)
	if !ok {
		t.Fatal("expected a match")
	}
	if v.QualityTier != QualityEnhanced {
		t.Errorf("expected the enhanced-tier voice to win over standard, got %s/%s (%s)", provider, v.VoiceID, v.QualityTier)
	}
}

func TestSelectNoProviderSupportsLanguage(t *testing.T) {
	c := newTestCatalog()
	_, _, ok := c.Select([]string{"elevenlabs", "google", "polly"}, "ja-JP", "", "", true)
	if ok {
		t.Error("expected no match for a language none of the providers offer")
	}
}

func TestSelectWithSeedUsesEquivalentsOnly(t *testing.T) {
	c := newTestCatalog()
	// Seeded from an es-ES voice; only elevenlabs offers Spanish here, so
	// the search across en-US-only providers should exclude them from the
	// result since their equivalents won't match the seed's language tag.
	provider, v, ok := c.Select([]string{"elevenlabs", "google"}, "es-ES", "elevenlabs", "es-warm", true)
	if !ok {
		t.Fatal("expected the seed voice itself to match")
	}
	if provider != "elevenlabs" || v.VoiceID != "es-warm" {
		t.Errorf("expected the seed voice to win since no other provider has Spanish, got %s/%s", provider, v.VoiceID)
	}
}
