package orchestrator

import (
	"context"
	"sync"

	"github.com/apresai/dubcast/internal/job"
)

// entry pairs a Job with the cancel func for its per-job context, the
// generalization of the teacher's TaskManager.cancels map (spec.md
// §4.1 expansion).
type entry struct {
	job    *job.Job
	ctx    context.Context
	cancel context.CancelFunc
}

// JobRegistry is the single authoritative Job store (spec.md §5: "single
// writer per job; the indexing structure ... requires mutual-exclusion on
// insert/delete; status snapshots may be taken without blocking writers
// by copy-out"). Reads of an individual Job's fields go through
// Job.Snapshot, which takes its own lock, so List/Status never block the
// owning worker beyond that per-Job critical section.
type JobRegistry struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string // insertion order, for List's recency default
}

// NewJobRegistry returns an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{entries: make(map[string]entry)}
}

// Insert registers a newly-created Job with its per-job context and
// cancellation func.
func (r *JobRegistry) Insert(j *job.Job, ctx context.Context, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[j.ID] = entry{job: j, ctx: ctx, cancel: cancel}
	r.order = append(r.order, j.ID)
}

// Get returns the Job for id, or false if unknown.
func (r *JobRegistry) Get(id string) (*job.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.job, true
}

// Context returns the per-job cancellation context for id.
func (r *JobRegistry) Context(id string) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// Cancel invokes the stored cancel func for id, a no-op if id is unknown
// (spec.md §4.1: "cancel ... returns success even if the job has already
// terminated").
func (r *JobRegistry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.cancel()
	}
}

// Delete removes id from the registry, canceling its context first so no
// worker keeps running against a deleted job.
func (r *JobRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.cancel()
		delete(r.entries, id)
	}
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// List returns every Job in insertion order, newest first, for the
// caller to filter/paginate/snapshot.
func (r *JobRegistry) List() []*job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*job.Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if e, ok := r.entries[r.order[i]]; ok {
			out = append(out, e.job)
		}
	}
	return out
}
