package tts

// Catalog is the process-lifetime union of every configured provider's
// voice list, used for equivalence search across providers (spec.md
// §3's ProviderCatalog, §4.6's nearest-voice selection).
type Catalog struct {
	byProvider map[string][]VoiceProfile
}

// NewCatalog builds a Catalog from a set of providers, reading each
// one's Voices() once (process start or explicit refresh).
func NewCatalog(providers []Provider) *Catalog {
	c := &Catalog{byProvider: make(map[string][]VoiceProfile)}
	for _, p := range providers {
		c.byProvider[p.Name()] = p.Voices()
	}
	return c
}

// Voices returns every voice profile the Catalog holds for provider,
// optionally filtered to languageTag (empty = no filter) — backs the
// HTTP surface's provider/voice listing endpoints.
func (c *Catalog) Voices(provider, languageTag string) []VoiceProfile {
	var out []VoiceProfile
	for _, v := range c.byProvider[provider] {
		if languageTag == "" || v.LanguageTag == languageTag {
			out = append(out, v)
		}
	}
	return out
}

// Providers returns the names of every provider the Catalog has voices
// for, in no defined order.
func (c *Catalog) Providers() []string {
	out := make([]string, 0, len(c.byProvider))
	for name := range c.byProvider {
		out = append(out, name)
	}
	return out
}

// Lookup returns the exact VoiceProfile for (provider, voiceID), or
// false if it does not exist — the explicit-selection path must fail
// with VoiceNotFound rather than silently remap.
func (c *Catalog) Lookup(provider, voiceID string) (VoiceProfile, bool) {
	for _, v := range c.byProvider[provider] {
		if v.VoiceID == voiceID {
			return v, true
		}
	}
	return VoiceProfile{}, false
}

// Equivalent finds the nearest voice to target on a different provider,
// per spec.md §4.6: same language, then same gender, then same quality
// tier, then same tone, breaking ties by lower price. Reflexive on
// identity — if target.Provider == provider and the voice exists there,
// it is returned unchanged.
func (c *Catalog) Equivalent(target VoiceProfile, provider string) (VoiceProfile, bool) {
	if target.Provider == provider {
		if v, ok := c.Lookup(provider, target.VoiceID); ok {
			return v, true
		}
	}

	candidates := c.byProvider[provider]
	if len(candidates) == 0 {
		return VoiceProfile{}, false
	}

	best := candidates[0]
	bestScore := -1
	for _, v := range candidates {
		score := matchScore(target, v)
		if score > bestScore || (score == bestScore && v.PricePerKChar < best.PricePerKChar) {
			best = v
			bestScore = score
		}
	}
	return best, true
}

var qualityRank = map[QualityTier]int{
	QualityStandard: 0,
	QualityEnhanced: 1,
	QualityPremium:  2,
	QualityStudio:   3,
}

// Select implements spec.md §4.6's provider-selection policy for
// provider=auto: across providerNames, gather every voice matching
// languageTag (and, if seedProvider/seedVoiceID are set, its
// cross-provider equivalents rather than every voice in that language),
// then rank by costFirst ("cheapest provider that supports the requested
// language and has the requested voice id or its equivalent") or, when
// costFirst is false, by quality tier first and price as the tie-break
// within that tier ("prefer higher-tier voices within the same cost
// band"). Returns VoiceNotFound-equivalent (false) if no provider in
// providerNames offers the language at all.
func (c *Catalog) Select(providerNames []string, languageTag, seedProvider, seedVoiceID string, costFirst bool) (string, VoiceProfile, bool) {
	var candidates []VoiceProfile
	var candidateProviders []string

	var seed VoiceProfile
	haveSeed := false
	if seedProvider != "" && seedVoiceID != "" {
		seed, haveSeed = c.Lookup(seedProvider, seedVoiceID)
	}

	for _, name := range providerNames {
		if haveSeed {
			if v, ok := c.Equivalent(seed, name); ok && v.LanguageTag == languageTag {
				candidates = append(candidates, v)
				candidateProviders = append(candidateProviders, name)
			}
			continue
		}
		for _, v := range c.byProvider[name] {
			if v.LanguageTag == languageTag {
				candidates = append(candidates, v)
				candidateProviders = append(candidateProviders, name)
			}
		}
	}
	if len(candidates) == 0 {
		return "", VoiceProfile{}, false
	}

	bestIdx := 0
	for i := 1; i < len(candidates); i++ {
		if costFirst {
			if candidates[i].PricePerKChar < candidates[bestIdx].PricePerKChar {
				bestIdx = i
			}
			continue
		}
		ri, rb := qualityRank[candidates[i].QualityTier], qualityRank[candidates[bestIdx].QualityTier]
		if ri > rb || (ri == rb && candidates[i].PricePerKChar < candidates[bestIdx].PricePerKChar) {
			bestIdx = i
		}
	}
	return candidateProviders[bestIdx], candidates[bestIdx], true
}

// matchScore ranks a candidate voice against the target, one point per
// matching dimension in priority order (language > gender > tier > tone)
// — weighted so a language match always outranks a gender+tier+tone
// match without one, etc.
func matchScore(target, candidate VoiceProfile) int {
	score := 0
	if candidate.LanguageTag == target.LanguageTag {
		score += 1000
	}
	if candidate.Gender == target.Gender {
		score += 100
	}
	if candidate.QualityTier == target.QualityTier {
		score += 10
	}
	if candidate.Tone == target.Tone {
		score += 1
	}
	return score
}
