package orchestrator

import "github.com/apresai/dubcast/internal/tts"

// Per-unit rate cards for stages whose cost isn't already priced by a
// provider's own VoiceProfile (recognize, post-edit, translate), per
// spec.md §4.9's "quote line when a stage begins, actual line when it
// ends." These are flat estimates — the teacher's PodcastItem carried
// only a single EstimatedCostUSD field with no rate table, so there is
// no teacher rate card to ground these on; approximated from typical
// per-minute ASR pricing and per-1k-token generative pricing, and called
// out in DESIGN.md.
const (
	recognizeRatePerSecond = 0.00015
	genmodelRatePer1kChars = 0.003
)

func recognizeQuote(estimatedSeconds float64) (units, rate, amount float64) {
	return estimatedSeconds, recognizeRatePerSecond, estimatedSeconds * recognizeRatePerSecond
}

func genmodelQuote(charCount int) (units, rate, amount float64) {
	u := float64(charCount) / 1000
	return u, genmodelRatePer1kChars, u * genmodelRatePer1kChars
}

func synthesizeQuote(profile tts.VoiceProfile, charCount int) (units, rate, amount float64) {
	u := float64(charCount) / 1000
	return u, profile.PricePerKChar, tts.Quote(profile, charCount)
}
