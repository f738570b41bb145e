package mcpserver

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/dubcast/internal/job"
	"github.com/apresai/dubcast/internal/jobstore"
	"github.com/apresai/dubcast/internal/orchestrator"
)

// TaskManager fronts an Orchestrator for the MCP transport: it submits
// job.Requests, then watches each job to completion so it can mirror
// state into jobstore (when configured) and record per-user usage,
// the way the teacher's TaskManager watched its own pipeline.Run calls
// to completion to update Store and Storage.
type TaskManager struct {
	orch    *orchestrator.Orchestrator
	jobs    *jobstore.Store // optional durable mirror
	auth    *Store          // optional usage/auth bookkeeping
	log     *slog.Logger
	baseCtx context.Context
}

// NewTaskManager creates a TaskManager. jobs and auth may both be nil, in
// which case jobs live only in the Orchestrator's in-memory registry and
// no usage is recorded.
func NewTaskManager(orch *orchestrator.Orchestrator, jobs *jobstore.Store, auth *Store, logger *slog.Logger, baseCtx context.Context) *TaskManager {
	return &TaskManager{orch: orch, jobs: jobs, auth: auth, log: logger, baseCtx: baseCtx}
}

// StartJob submits req to the Orchestrator and returns its id immediately.
// A background goroutine watches the job through to a terminal state.
func (tm *TaskManager) StartJob(ctx context.Context, req job.Request, userID string) (string, error) {
	ctx, span := tracer.Start(ctx, "taskmanager.start_job")
	defer span.End()

	id, err := tm.orch.Submit(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return "", err
	}
	span.SetAttributes(attribute.String("job_id", id), attribute.String("kind", string(req.Kind)))

	go tm.watch(id, req, userID)
	return id, nil
}

// watch polls the Orchestrator until the job reaches a terminal status,
// mirroring each transition into jobs (if configured) and recording usage
// on completion. Polling, not a push callback, because Orchestrator.Status
// is the only externally visible progress surface — the same contract
// internal/cli's submitAndWait and internal/httpapi's handlers poll.
func (tm *TaskManager) watch(id string, req job.Request, userID string) {
	ctx := tm.baseCtx
	snap, err := tm.orch.Status(id)
	if err != nil {
		return
	}
	if tm.jobs != nil {
		if err := tm.jobs.CreateJob(ctx, snap); err != nil {
			tm.log.WarnContext(ctx, "jobstore create failed", "job_id", id, "error", err)
		}
	}

	ticker := time.NewTicker(750 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		snap, err := tm.orch.Status(id)
		if err != nil {
			return
		}

		if tm.jobs != nil {
			if err := tm.jobs.UpdateProgress(ctx, id, snap.Stage, snap.Percent); err != nil {
				tm.log.WarnContext(ctx, "jobstore update failed", "job_id", id, "error", err)
			}
		}

		switch snap.Status {
		case job.StatusCompleted:
			if tm.jobs != nil {
				if err := tm.jobs.CompleteJob(ctx, snap); err != nil {
					tm.log.WarnContext(ctx, "jobstore complete failed", "job_id", id, "error", err)
				}
			}
			tm.recordUsage(ctx, id, userID, req, snap)
			return
		case job.StatusFailed:
			if tm.jobs != nil {
				if err := tm.jobs.FailJob(ctx, id, snap.Err); err != nil {
					tm.log.WarnContext(ctx, "jobstore fail-mark failed", "job_id", id, "error", err)
				}
			}
			return
		case job.StatusCancelled:
			if tm.jobs != nil {
				if err := tm.jobs.CancelJob(ctx, id); err != nil {
					tm.log.WarnContext(ctx, "jobstore cancel-mark failed", "job_id", id, "error", err)
				}
			}
			return
		}
	}
}

// recordUsage estimates and stores the cost of a completed job, best
// effort: a usage-tracking failure must never undo a completed dub.
func (tm *TaskManager) recordUsage(ctx context.Context, id, userID string, req job.Request, snap job.Snapshot) {
	if userID == "" || tm.auth == nil {
		return
	}
	model := req.PostEditModel
	ttsProvider := req.TTSProvider
	inputChars := len(req.TranscriptText) + len(req.ScriptText)
	ttsChars := len(req.ScriptText)
	durationSec := int(snap.EndedAt.Sub(snap.StartedAt).Seconds())

	if err := tm.auth.RecordUsage(ctx, id, userID, model, ttsProvider, inputChars, ttsChars, durationSec); err != nil {
		tm.log.WarnContext(ctx, "record usage failed", "job_id", id, "user_id", userID, "error", err)
	}
}

// CancelJob requests cooperative cancellation of a job.
func (tm *TaskManager) CancelJob(id string) error {
	return tm.orch.Cancel(id)
}
