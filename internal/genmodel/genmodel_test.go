package genmodel

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedBackend struct {
	calls   int
	outcome []Outcome
	text    string
}

func (b *scriptedBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	idx := b.calls
	b.calls++
	if idx >= len(b.outcome) {
		return "", OutcomeFatal, errors.New("no more scripted outcomes")
	}
	o := b.outcome[idx]
	if o == OutcomeSuccess {
		return b.text, o, nil
	}
	return "", o, errors.New("scripted failure")
}

func fastPolicy(model string, regions []string) Policy {
	p := DefaultPolicy(model, regions)
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 2 * time.Millisecond
	return p
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	backend := &scriptedBackend{outcome: []Outcome{OutcomeSuccess}, text: "ok"}
	res, err := Run(context.Background(), backend, fastPolicy("explicit-model", []string{"us-east-1"}), "prompt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "ok" || res.Region != "us-east-1" || res.Model != "explicit-model" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRunFallsBackOnModelUnavailable(t *testing.T) {
	backend := &scriptedBackend{
		outcome: []Outcome{OutcomeModelUnavailable, OutcomeSuccess},
		text:    "second model wins",
	}
	res, err := Run(context.Background(), backend, fastPolicy("auto", []string{"us-east-1"}), "prompt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Model != AutoCandidates[1].Model {
		t.Errorf("expected second auto candidate to win, got %q", res.Model)
	}
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	backend := &scriptedBackend{
		outcome: []Outcome{OutcomeTransient, OutcomeTransient, OutcomeSuccess},
		text:    "third attempt",
	}
	policy := fastPolicy("explicit-model", []string{"us-east-1"})
	policy.MaxAttemptsPerPair = 3
	res, err := Run(context.Background(), backend, policy, "prompt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "third attempt" {
		t.Errorf("got %q", res.Text)
	}
}

func TestRunExhaustsAllPairs(t *testing.T) {
	backend := &scriptedBackend{outcome: []Outcome{}} // every call returns fatal "no more scripted outcomes"
	_, err := Run(context.Background(), backend, fastPolicy("explicit-model", []string{"us-east-1", "us-west-2"}), "prompt")
	if err == nil {
		t.Fatal("expected an error when all pairs fail")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	backend := &scriptedBackend{outcome: []Outcome{OutcomeTransient, OutcomeTransient, OutcomeTransient}}
	policy := fastPolicy("explicit-model", []string{"us-east-1"})
	policy.InitialBackoff = 50 * time.Millisecond
	policy.MaxAttemptsPerPair = 5

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, backend, policy, "prompt")
	if !errors.Is(err, context.Canceled) && err != ErrExhausted {
		t.Errorf("expected cancellation or exhaustion, got %v", err)
	}
}
