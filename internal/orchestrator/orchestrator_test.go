package orchestrator

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/artifact"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/job"
	"github.com/apresai/dubcast/internal/tts"
)

// fixedBackend is a genmodel.Backend that always succeeds with the same
// text, regardless of prompt — enough to drive postedit/translate through
// their re-validation wrappers without a real model call.
type fixedBackend struct {
	text string
}

func (b *fixedBackend) Call(ctx context.Context, region, model, prompt string) (string, genmodel.Outcome, error) {
	return b.text, genmodel.OutcomeSuccess, nil
}

func TestJobRegistryLifecycle(t *testing.T) {
	r := NewJobRegistry()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	j1 := job.New(job.KindTranscribe, job.Request{URL: "http://a"})
	j2 := job.New(job.KindTranscribe, job.Request{URL: "http://b"})
	r.Insert(j1, ctx1, cancel1)
	r.Insert(j2, ctx2, cancel2)

	got, ok := r.Get(j1.ID)
	if !ok || got.ID != j1.ID {
		t.Fatalf("expected to find job1, got %+v ok=%v", got, ok)
	}

	list := r.List()
	if len(list) != 2 || list[0].ID != j2.ID {
		t.Fatalf("expected newest-first order with job2 first, got %+v", list)
	}

	gotCtx, ok := r.Context(j1.ID)
	if !ok || gotCtx != ctx1 {
		t.Fatalf("expected the stored context back for job1")
	}

	r.Cancel(j1.ID)
	select {
	case <-ctx1.Done():
	default:
		t.Fatal("expected Cancel to cancel job1's stored context")
	}
	select {
	case <-ctx2.Done():
		t.Fatal("expected job2's context to be unaffected by job1's cancel")
	default:
	}

	r.Delete(j2.ID)
	if _, ok := r.Get(j2.ID); ok {
		t.Fatal("expected job2 to be gone after Delete")
	}
	if len(r.List()) != 1 {
		t.Fatalf("expected one job remaining after delete, got %d", len(r.List()))
	}

	r.Cancel("no-such-job") // must not panic
}

func TestRecognizeQuote(t *testing.T) {
	units, rate, amount := recognizeQuote(120)
	if units != 120 || rate != recognizeRatePerSecond {
		t.Errorf("unexpected units/rate: %v/%v", units, rate)
	}
	if want := 120 * recognizeRatePerSecond; amount != want {
		t.Errorf("got amount %v want %v", amount, want)
	}
}

func TestGenmodelQuote(t *testing.T) {
	units, rate, amount := genmodelQuote(2000)
	if units != 2 || rate != genmodelRatePer1kChars {
		t.Errorf("unexpected units/rate: %v/%v", units, rate)
	}
	if want := 2 * genmodelRatePer1kChars; amount != want {
		t.Errorf("got amount %v want %v", amount, want)
	}
}

func TestSynthesizeQuote(t *testing.T) {
	profile := tts.VoiceProfile{PricePerKChar: 0.05}
	units, rate, amount := synthesizeQuote(profile, 500)
	if units != 0.5 || rate != 0.05 {
		t.Errorf("unexpected units/rate: %v/%v", units, rate)
	}
	if want := tts.Quote(profile, 500); amount != want {
		t.Errorf("got amount %v want %v", amount, want)
	}
}

func TestSubmitValidatesMissingURL(t *testing.T) {
	o, err := New(context.Background(), Config{TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = o.Submit(job.Request{Kind: job.KindDub})

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindInvalidInput {
		t.Fatalf("expected InvalidInput validation error, got %v", err)
	}
}

func TestCancelIsNoOpForUnknownJob(t *testing.T) {
	o, err := New(context.Background(), Config{TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Cancel("does-not-exist"); err != nil {
		t.Errorf("expected Cancel of an unknown job to succeed, got %v", err)
	}
}

func TestSubmitRunsTranslateJobThroughWorkerPool(t *testing.T) {
	backend := &fixedBackend{text: "title: \nprocessed_at: \n\n[0:00:00] hola mundo\n"}
	o, err := New(context.Background(), Config{TempDir: t.TempDir(), Backend: backend, Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := o.Submit(job.Request{
		Kind:           job.KindTranslate,
		TranscriptText: "title: \nprocessed_at: \n\n[0:00:00] hello world\n",
		TargetLanguage: "es",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var snap job.Snapshot
	for time.Now().Before(deadline) {
		snap, err = o.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if snap.Status == job.StatusCompleted || snap.Status == job.StatusFailed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if snap.Status != job.StatusCompleted {
		t.Fatalf("expected job to complete, got status=%s err=%v", snap.Status, snap.Err)
	}
	if _, ok := snap.ArtifactPaths[string(artifact.KindTranslated)]; !ok {
		t.Errorf("expected a translated artifact path in the snapshot, got %+v", snap.ArtifactPaths)
	}
}

func TestRunTranslateOnlyProducesTranslatedArtifact(t *testing.T) {
	backend := &fixedBackend{text: "title: \nprocessed_at: \n\n[0:00:00] hola mundo\n"}
	o, err := New(context.Background(), Config{TempDir: t.TempDir(), Backend: backend})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := job.Request{
		Kind:           job.KindTranslate,
		TranscriptText: "title: \nprocessed_at: \n\n[0:00:00] hello world\n",
		TargetLanguage: "es",
	}
	j := job.New(job.KindTranslate, req)
	j.Start()

	if err := o.runTranslateOnly(context.Background(), j); err != nil {
		t.Fatalf("runTranslateOnly: %v", err)
	}

	path, ok := j.Artifact(string(artifact.KindTranslated))
	if !ok {
		t.Fatal("expected a translated artifact to be recorded")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(data), "hola mundo") {
		t.Errorf("expected translated text in artifact, got %q", string(data))
	}
	if j.Ledger.Total() <= 0 {
		t.Error("expected a non-zero ledger total after translate")
	}
	if j.WinningModel == "" {
		t.Error("expected the winning model to be recorded")
	}
}

func TestRunTranslateOnlyFailsWhenBudgetExceeded(t *testing.T) {
	backend := &fixedBackend{text: "title: \nprocessed_at: \n\n[0:00:00] hola mundo\n"}
	o, err := New(context.Background(), Config{TempDir: t.TempDir(), Backend: backend})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	longText := "title: \nprocessed_at: \n\n[0:00:00] " + strings.Repeat("hello ", 500) + "\n"
	req := job.Request{
		Kind:           job.KindTranslate,
		TranscriptText: longText,
		TargetLanguage: "es",
		MaxCostUSD:     0.000001,
	}
	j := job.New(job.KindTranslate, req)
	j.Start()

	err = o.runTranslateOnly(context.Background(), j)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindInsufficientBudget {
		t.Fatalf("expected InsufficientBudget error, got %v", err)
	}
}

func TestDeleteRemovesRegistryEntryAndArtifacts(t *testing.T) {
	backend := &fixedBackend{text: "title: \nprocessed_at: \n\n[0:00:00] hola mundo\n"}
	o, err := New(context.Background(), Config{TempDir: t.TempDir(), Backend: backend})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := job.Request{
		Kind:           job.KindTranslate,
		TranscriptText: "title: \nprocessed_at: \n\n[0:00:00] hi\n",
		TargetLanguage: "es",
	}
	j := job.New(job.KindTranslate, req)
	j.Start()
	if err := o.runTranslateOnly(context.Background(), j); err != nil {
		t.Fatalf("runTranslateOnly: %v", err)
	}
	j.Complete()

	jobCtx, cancel := context.WithCancel(context.Background())
	o.registry.Insert(j, jobCtx, cancel)

	path, _ := j.Artifact(string(artifact.KindTranslated))

	if err := o.Delete(j.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := o.registry.Get(j.ID); ok {
		t.Error("expected the job to be gone from the registry after Delete")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected the artifact file removed after Delete, stat err=%v", err)
	}
}

func TestResolveVoiceExplicitProviderVoiceNotFound(t *testing.T) {
	o, err := New(context.Background(), Config{
		TempDir:   t.TempDir(),
		Catalog:   tts.NewCatalog(nil),
		Providers: tts.NewProviderSet(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := job.Request{TTSProvider: "google", VoiceID: "missing-voice"}
	_, _, _, err = o.resolveVoice(req, "en-US")

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindInvalidInput {
		t.Fatalf("expected InvalidInput VoiceNotFound error, got %v", err)
	}
}

func TestResolveVoiceAutoNoProviderSupportsLanguage(t *testing.T) {
	o, err := New(context.Background(), Config{
		TempDir:          t.TempDir(),
		Catalog:          tts.NewCatalog(nil),
		Providers:        tts.NewProviderSet(),
		TTSProviderNames: []string{"google", "polly"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := job.Request{TTSProvider: "auto"}
	_, _, _, err = o.resolveVoice(req, "zz-ZZ")

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindInvalidInput {
		t.Fatalf("expected InvalidInput error for an unsupported language, got %v", err)
	}
}
