package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/job"
	"github.com/apresai/dubcast/internal/orchestrator"
)

var errTest = apierr.New(apierr.KindUpstream, "synthesize", "synthesis backend unavailable", nil)

// fixedBackend is a genmodel.Backend that always succeeds with the same
// text, regardless of prompt.
type fixedBackend struct{ text string }

func (b *fixedBackend) Call(ctx context.Context, region, model, prompt string) (string, genmodel.Outcome, error) {
	return b.text, genmodel.OutcomeSuccess, nil
}

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	backend := &fixedBackend{text: "title: \nprocessed_at: \n\n[0:00:00] hola mundo\n"}
	o, err := orchestrator.New(context.Background(), orchestrator.Config{TempDir: t.TempDir(), Backend: backend})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	return o
}

func waitForTerminal(t *testing.T, o *orchestrator.Orchestrator, id string) job.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var snap job.Snapshot
	for time.Now().Before(deadline) {
		var err error
		snap, err = o.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		switch snap.Status {
		case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status, last snapshot: %+v", id, snap)
	return snap
}

func TestTaskManagerStartJobRunsThroughOrchestrator(t *testing.T) {
	o := newTestOrchestrator(t)
	tm := NewTaskManager(o, nil, nil, nil, context.Background())

	req := job.Request{
		Kind:           job.KindTranslate,
		TranscriptText: "title: \nprocessed_at: \n\n[0:00:00] hello world\n",
		TargetLanguage: "es",
	}
	id, err := tm.StartJob(context.Background(), req, "")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty job id")
	}

	snap := waitForTerminal(t, o, id)
	if snap.Status != job.StatusCompleted {
		t.Fatalf("expected job to complete, got status=%s err=%v", snap.Status, snap.Err)
	}
}

func TestTaskManagerStartJobRejectsInvalidRequest(t *testing.T) {
	o := newTestOrchestrator(t)
	tm := NewTaskManager(o, nil, nil, nil, context.Background())

	_, err := tm.StartJob(context.Background(), job.Request{Kind: job.KindDub}, "")
	if err == nil {
		t.Fatal("expected Submit validation to reject a dub request with no url")
	}
}

func TestTaskManagerCancelJobIsNoOpForUnknownJob(t *testing.T) {
	o := newTestOrchestrator(t)
	tm := NewTaskManager(o, nil, nil, nil, context.Background())

	if err := tm.CancelJob("does-not-exist"); err != nil {
		t.Errorf("expected Cancel of an unknown job to succeed, got %v", err)
	}
}

func TestEstimateCostIsPositiveForKnownProviders(t *testing.T) {
	cost := EstimateCost("haiku", "elevenlabs", 1000, 2000, 60)
	if cost <= 0 {
		t.Errorf("expected a positive cost estimate, got %v", cost)
	}
}

func TestEstimateCostZeroForUnknownModelAndProvider(t *testing.T) {
	cost := EstimateCost("unknown-model", "unknown-provider", 1000, 2000, 60)
	if cost != 0 {
		t.Errorf("expected zero cost for unknown model/provider, got %v", cost)
	}
}

func TestSnapshotResultIncludesErrorWhenFailed(t *testing.T) {
	snap := job.Snapshot{
		ID:     "job-1",
		Kind:   job.KindTranslate,
		Status: job.StatusFailed,
		Err:    errTest,
	}
	result := snapshotResult(snap)
	if result["error"] != errTest.Error() {
		t.Errorf("expected error field %q, got %v", errTest.Error(), result["error"])
	}
	if result["status"] != string(job.StatusFailed) {
		t.Errorf("expected status failed, got %v", result["status"])
	}
}

func TestSnapshotResultFieldsForCompletedJob(t *testing.T) {
	o := newTestOrchestrator(t)
	id, err := o.Submit(job.Request{
		Kind:           job.KindTranslate,
		TranscriptText: "title: \nprocessed_at: \n\n[0:00:00] hi\n",
		TargetLanguage: "es",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitForTerminal(t, o, id)

	result := snapshotResult(snap)
	if result["job_id"] != snap.ID {
		t.Errorf("expected job_id %q, got %v", snap.ID, result["job_id"])
	}
	if result["status"] != string(job.StatusCompleted) {
		t.Errorf("expected status completed, got %v", result["status"])
	}
	if _, ok := result["artifacts"]; !ok {
		t.Errorf("expected artifacts in snapshot result, got %+v", result)
	}
}

func TestJSONResultMarshalsValue(t *testing.T) {
	res, err := jsonResult(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("jsonResult: %v", err)
	}
	if res == nil {
		t.Fatal("expected a non-nil tool result")
	}
}

func TestJSONResultErrorsOnUnmarshalableValue(t *testing.T) {
	res, err := jsonResult(map[string]any{"bad": func() {}})
	if err != nil {
		t.Fatalf("jsonResult should report marshal failures via the tool result, not an error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a non-nil error tool result")
	}
}

func TestToolDefsIncludesCoreJobTools(t *testing.T) {
	defs := ToolDefs()
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"server_info", "submit_dub_job", "get_job", "list_jobs", "cancel_job", "list_voices"} {
		if !names[want] {
			t.Errorf("expected a %q tool definition, got %+v", want, names)
		}
	}
}

func TestAuthFromContextDefaultsToUnauthenticated(t *testing.T) {
	result := AuthFromContext(context.Background())
	if result.Authenticated {
		t.Error("expected an empty context to report unauthenticated")
	}
}

func TestWithAuthResultRoundTrips(t *testing.T) {
	ctx := WithAuthResult(context.Background(), AuthResult{Authenticated: true, UserID: "u1"})
	result := AuthFromContext(ctx)
	if !result.Authenticated || result.UserID != "u1" {
		t.Errorf("expected authenticated result for u1, got %+v", result)
	}
}

func TestDefaultConfigReadsEnv(t *testing.T) {
	t.Setenv("DYNAMODB_TABLE", "my-table")
	t.Setenv("AWS_REGION", "eu-west-1")
	cfg := DefaultConfig()
	if cfg.TableName != "my-table" || cfg.AWSRegion != "eu-west-1" {
		t.Errorf("expected env overrides to apply, got %+v", cfg)
	}
}
