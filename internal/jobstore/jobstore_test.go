package jobstore

import (
	"testing"
	"time"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/job"
)

func TestSnapshotToItemRoundTrip(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := job.Snapshot{
		ID:            "job-123",
		Kind:          job.KindDub,
		Status:        job.StatusCompleted,
		Stage:         "mux",
		Percent:       100,
		ArtifactPaths: map[string]string{"audio": "/data/job-123/audio.es.mp3"},
		WinningModel:  "claude-3",
		WinningRegion: "us-east-1",
		CostTotal:     1.23,
		CreatedAt:     created,
		StartedAt:     created.Add(time.Second),
		EndedAt:       created.Add(time.Minute),
	}

	item, err := snapshotToItem(snap)
	if err != nil {
		t.Fatalf("snapshotToItem: %v", err)
	}
	if item.PK != "JOB#job-123" || item.SK != "METADATA" {
		t.Errorf("unexpected key: PK=%q SK=%q", item.PK, item.SK)
	}
	if item.GSI1PK != "JOBS" {
		t.Errorf("expected GSI1PK=JOBS, got %q", item.GSI1PK)
	}
	wantGSI1SK := created.UTC().Format(time.RFC3339) + "#job-123"
	if item.GSI1SK != wantGSI1SK {
		t.Errorf("unexpected GSI1SK: got %q want %q", item.GSI1SK, wantGSI1SK)
	}

	back := itemToSnapshot(item)
	if back.ID != snap.ID || back.Kind != snap.Kind || back.Status != snap.Status {
		t.Errorf("round trip mismatch: got %+v", back)
	}
	if back.Stage != snap.Stage || back.Percent != snap.Percent {
		t.Errorf("round trip mismatch stage/percent: got %+v", back)
	}
	if back.ArtifactPaths["audio"] != snap.ArtifactPaths["audio"] {
		t.Errorf("expected artifact paths to round trip, got %+v", back.ArtifactPaths)
	}
	if back.CostTotal != snap.CostTotal {
		t.Errorf("expected cost total to round trip, got %v", back.CostTotal)
	}
	if back.CostItems != nil {
		t.Errorf("expected CostItems to remain nil after reconstruction, got %+v", back.CostItems)
	}
	if !back.CreatedAt.Equal(snap.CreatedAt) {
		t.Errorf("expected CreatedAt to round trip, got %v want %v", back.CreatedAt, snap.CreatedAt)
	}
}

func TestSnapshotToItemWithError(t *testing.T) {
	snap := job.Snapshot{
		ID:     "job-456",
		Kind:   job.KindTranscribe,
		Status: job.StatusFailed,
		Err:    apierr.New(apierr.KindUpstream, "recognize", "provider timed out", nil),
	}

	item, err := snapshotToItem(snap)
	if err != nil {
		t.Fatalf("snapshotToItem: %v", err)
	}
	if item.ErrKind != string(apierr.KindUpstream) || item.ErrStage != "recognize" {
		t.Errorf("unexpected error fields: %+v", item)
	}

	back := itemToSnapshot(item)
	if back.Err == nil || back.Err.Message != "provider timed out" {
		t.Errorf("expected error to round trip, got %+v", back.Err)
	}
}

func TestItemToSnapshotEmptyArtifactPaths(t *testing.T) {
	item := Item{JobID: "job-789", Kind: string(job.KindTranslate), Status: string(job.StatusQueued)}
	snap := itemToSnapshot(item)
	if snap.ArtifactPaths != nil {
		t.Errorf("expected nil artifact paths when none were stored, got %+v", snap.ArtifactPaths)
	}
}

func TestJobKeyShape(t *testing.T) {
	key := jobKey("abc")
	pk, ok := key["PK"]
	if !ok {
		t.Fatal("expected a PK attribute")
	}
	_ = pk
	if _, ok := key["SK"]; !ok {
		t.Fatal("expected an SK attribute")
	}
}
