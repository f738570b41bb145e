// Package orchestrator implements the Orchestrator / job state machine of
// spec.md §4.1: submit/status/cancel/fetch/list/delete over a Job owned
// exclusively by the worker that runs its pipeline.
//
// Modeled on the teacher's pipeline.Run (stage sequencing, PipelineError,
// progress.Callback emission, signal.NotifyContext cancellation) and
// mcpserver.TaskManager (async dispatch, per-job cancel func, tracer.Start
// span per run), generalized from a single-shot CLI function plus an
// unbounded-goroutine task manager into a fixed-size worker pool
// (spec.md §5: default 5, one worker per Job) draining a job queue.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/artifact"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/recognizer"
	"github.com/apresai/dubcast/internal/tts"
	"github.com/apresai/dubcast/internal/job"
)

var tracer = otel.Tracer("dubcast-orchestrator")

// Config wires the Orchestrator's collaborators and tunables.
type Config struct {
	Workers int    // fixed worker-pool size, default 5 (spec.md §5)
	TempDir string // artifact.Store base directory

	Recognizer recognizer.Recognizer
	Backend    genmodel.Backend // shared genmodel.Backend for post-edit + translate
	Providers  *tts.ProviderSet
	Catalog    *tts.Catalog

	// TTSProviderNames lists the providers considered by provider=auto
	// selection (spec.md §4.6), typically every provider the deployment
	// has credentials for.
	TTSProviderNames []string

	QueueCapacity int // buffered job-queue size, default 256

	Log *slog.Logger
}

// Orchestrator owns the Job registry, the artifact store, and a
// fixed-size worker pool draining a job queue.
type Orchestrator struct {
	cfg       Config
	registry  *JobRegistry
	artifacts *artifact.Store
	queue     chan string
	baseCtx   context.Context
	log       *slog.Logger
}

// New constructs an Orchestrator and starts its worker pool. ctx is the
// process-lifetime context (cancelled on shutdown); every job's own
// context is derived from it so an orchestrator shutdown cancels every
// in-flight job cooperatively.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	store, err := artifact.New(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: init artifact store: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		registry:  NewJobRegistry(),
		artifacts: store,
		queue:     make(chan string, cfg.QueueCapacity),
		baseCtx:   ctx,
		log:       cfg.Log,
	}

	for i := 0; i < cfg.Workers; i++ {
		go o.worker(i)
	}

	return o, nil
}

func (o *Orchestrator) worker(id int) {
	for jobID := range o.queue {
		o.runJob(jobID)
	}
}

// Submit validates req, creates a queued Job, and schedules it onto the
// worker pool, returning its id immediately (spec.md §4.1).
func (o *Orchestrator) Submit(req job.Request) (string, error) {
	if verr := req.Validate(req.Kind); verr != nil {
		return "", verr
	}

	j := job.New(req.Kind, req)
	jobCtx, cancel := context.WithCancel(o.baseCtx)
	o.registry.Insert(j, jobCtx, cancel)

	// Submit must return immediately even if the queue is momentarily
	// full; a blocked send here would make submit() synchronous with
	// the worker pool's throughput, which the HTTP surface's "202
	// Accepted with the id" contract forbids.
	go func() {
		select {
		case o.queue <- j.ID:
		case <-jobCtx.Done():
		}
	}()

	return j.ID, nil
}

// Status returns a consistent snapshot of a Job.
func (o *Orchestrator) Status(id string) (job.Snapshot, error) {
	j, ok := o.registry.Get(id)
	if !ok {
		return job.Snapshot{}, apierr.New(apierr.KindNotFound, "status", fmt.Sprintf("job %q not found", id), nil)
	}
	return j.Snapshot(), nil
}

// Cancel requests cooperative cancellation of a Job. It succeeds even if
// the job has already terminated or is unknown, per spec.md §4.1.
func (o *Orchestrator) Cancel(id string) error {
	o.registry.Cancel(id)
	return nil
}

// Fetch opens a stream for one of a Job's produced artifacts.
func (o *Orchestrator) Fetch(id string, kind artifact.Kind) (*os.File, int64, error) {
	j, ok := o.registry.Get(id)
	if !ok {
		return nil, 0, apierr.New(apierr.KindNotFound, "fetch", fmt.Sprintf("job %q not found", id), nil)
	}
	path, ok := j.Artifact(string(kind))
	if !ok {
		return nil, 0, apierr.New(apierr.KindNotFound, "fetch", fmt.Sprintf("artifact %q not ready for job %q", kind, id), nil)
	}
	f, size, err := o.artifacts.Open(path)
	if err != nil {
		return nil, 0, apierr.New(apierr.KindInternal, "fetch", "open artifact", err)
	}
	return f, size, nil
}

// List returns Job snapshots, most recent first, applying statusFilter
// (empty = all) and limit/offset pagination.
func (o *Orchestrator) List(limit, offset int, statusFilter job.Status) []job.Snapshot {
	all := o.registry.List()

	var filtered []*job.Job
	for _, j := range all {
		if statusFilter != "" && j.Snapshot().Status != statusFilter {
			continue
		}
		filtered = append(filtered, j)
	}

	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]job.Snapshot, 0, end-offset)
	for _, j := range filtered[offset:end] {
		out = append(out, j.Snapshot())
	}
	return out
}

// Delete removes a Job's record and every referenced artifact file,
// cancelling it first if still in flight (spec.md §4.1/§4.12).
func (o *Orchestrator) Delete(id string) error {
	if _, ok := o.registry.Get(id); !ok {
		return apierr.New(apierr.KindNotFound, "delete", fmt.Sprintf("job %q not found", id), nil)
	}
	o.registry.Delete(id)
	if err := o.artifacts.RemoveJobDir(id); err != nil {
		return apierr.New(apierr.KindInternal, "delete", "remove job directory", err)
	}
	return nil
}
