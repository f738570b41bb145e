// Package genmodel implements the shared (region, model) × attempt
// fallback policy of spec.md §4.5, consumed by both the Script
// Post-Editor and the Translator.
//
// Grounded on the teacher's internal/script/claude.go Generate() and
// internal/script/nova.go Generate(), which each hand-roll an identical
// attempt/backoff retry loop around a single backend; this package
// generalizes that duplicated loop into one declarative driver, per the
// teacher's own Design Notes precedent ("Retry/fallback ... implemented
// as a declarative policy table").
package genmodel

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Outcome classifies a call attempt's result for the fallback driver.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomeModelUnavailable  // model-not-found / model-deprecated: skip to next model
	OutcomeRegionUnavailable // region-unavailable: skip to next region
	OutcomeFatal
)

// ErrExhausted is returned when every (region, model) pair has been tried
// without success.
var ErrExhausted = errors.New("genmodel: fallback policy exhausted all (region, model) pairs")

// Backend performs one generative-model call for a given model id in a
// given region, classifying the result via Outcome.
type Backend interface {
	// Call invokes the backend and returns the raw text response plus an
	// Outcome describing how the attempt should be treated.
	Call(ctx context.Context, region, model string, prompt string) (text string, outcome Outcome, err error)
}

// Candidate is one entry in the auto-expansion candidate list, or the
// caller's single explicit model id.
type Candidate struct {
	Model string
	Tier  string // "recommended-fast", "latest-fast", "recommended-detailed", "legacy-fallback"
}

// AutoCandidates is the ordered candidate list spec.md §4.5 names for the
// "auto" sentinel.
var AutoCandidates = []Candidate{
	{Model: "recommended-fast", Tier: "recommended-fast"},
	{Model: "latest-fast", Tier: "latest-fast"},
	{Model: "recommended-detailed", Tier: "recommended-detailed"},
	{Model: "legacy-fallback", Tier: "legacy-fallback"},
}

// Policy configures one fallback run.
type Policy struct {
	Model           string   // explicit model id, or "auto"
	Regions         []string // ordered region list
	MaxAttemptsPerPair int   // k in spec.md §4.5 step 3
	InitialBackoff  time.Duration
	BackoffMultiplier float64
	MaxBackoff      time.Duration
}

// DefaultPolicy mirrors the teacher's backoff constants (2s initial,
// doubling, 30s cap) for the generative-model fallback driver, with 3
// attempts per (region, model) pair rather than internal/tts's
// defaultMaxAttempts=5.
func DefaultPolicy(model string, regions []string) Policy {
	return Policy{
		Model:              model,
		Regions:            regions,
		MaxAttemptsPerPair: 3,
		InitialBackoff:     2 * time.Second,
		BackoffMultiplier:  2,
		MaxBackoff:         30 * time.Second,
	}
}

// Result records the winning attempt for reproducibility, per spec.md
// §4.5 step 5 ("Record the winning pair in the Job").
type Result struct {
	Text   string
	Region string
	Model  string
}

// Run executes the fallback policy: for each (region, model) pair in the
// Cartesian product taken region-major, attempt the call up to
// MaxAttemptsPerPair times with jittered exponential backoff; on
// model-unavailable move to the next model, on region-unavailable move to
// the next region.
func Run(ctx context.Context, backend Backend, policy Policy, prompt string) (*Result, error) {
	candidates := candidateModels(policy.Model)

	for _, region := range policy.Regions {
		for _, cand := range candidates {
			text, ok, err := attemptPair(ctx, backend, policy, region, cand.Model, prompt)
			if ok {
				return &Result{Text: text, Region: region, Model: cand.Model}, nil
			}
			if err != nil && isRegionUnavailable(err) {
				break // next region
			}
			// model-unavailable or exhausted attempts: fall through to next model
			_ = err
		}
	}

	return nil, ErrExhausted
}

type regionUnavailableError struct{ err error }

func (e *regionUnavailableError) Error() string { return e.err.Error() }
func (e *regionUnavailableError) Unwrap() error { return e.err }

func isRegionUnavailable(err error) bool {
	var r *regionUnavailableError
	return errors.As(err, &r)
}

// attemptPair retries a single (region, model) pair up to
// MaxAttemptsPerPair times on transient errors, returning ok=true on
// success.
func attemptPair(ctx context.Context, backend Backend, policy Policy, region, model, prompt string) (string, bool, error) {
	backoff := policy.InitialBackoff

	for attempt := 0; attempt < policy.MaxAttemptsPerPair; attempt++ {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}

		text, outcome, err := backend.Call(ctx, region, model, prompt)
		switch outcome {
		case OutcomeSuccess:
			return text, true, nil
		case OutcomeRegionUnavailable:
			return "", false, &regionUnavailableError{err: err}
		case OutcomeModelUnavailable, OutcomeFatal:
			return "", false, err
		case OutcomeTransient:
			if attempt == policy.MaxAttemptsPerPair-1 {
				return "", false, err
			}
			if sleepErr := sleepWithJitter(ctx, backoff); sleepErr != nil {
				return "", false, sleepErr
			}
			backoff = nextBackoff(backoff, policy.BackoffMultiplier, policy.MaxBackoff)
		}
	}

	return "", false, errors.New("genmodel: attempts exhausted")
}

func nextBackoff(cur time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(cur) * multiplier)
	if next > max {
		next = max
	}
	return next
}

// sleepWithJitter sleeps for d plus up to 25% jitter, honoring context
// cancellation — cancellation during backoff is a checkpoint per spec.md §5.
func sleepWithJitter(ctx context.Context, d time.Duration) error {
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d + jitter):
		return nil
	}
}

func candidateModels(model string) []Candidate {
	if model == "" || model == "auto" {
		return AutoCandidates
	}
	return []Candidate{{Model: model, Tier: "explicit"}}
}
