// Package job defines the Job entity and its state machine (spec.md §3,
// §4.1), generalizing the teacher's mcpserver.PodcastItem /JobStatus enum
// from a single podcast-generation task to the four dub-pipeline job
// kinds (transcribe, translate, synthesize, dub).
package job

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/ledger"
)

// Kind is the pipeline variant a Job runs, per spec.md §3.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindTranslate  Kind = "translate"
	KindSynthesize Kind = "synthesize"
	KindDub        Kind = "dub"
)

// Status is a Job's state-machine state. Transitions are restricted to
// queued -> running -> {completed, failed, cancelled}; terminal states are
// immutable (spec.md §4.1, §8 "status monotonicity").
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage names used across progress reporting and artifact bookkeeping.
const (
	StageDownload   = "download"
	StageDecode     = "decode"
	StageRecognize  = "recognize"
	StageSegment    = "segment"
	StagePostEdit   = "post_edit"
	StageTranslate  = "translate"
	StageSynthesize = "synthesize"
	StageMux        = "mux"
	StageComplete   = "complete"
)

// DubStageWeights is the weighted-sum progress table for job kind "dub",
// per spec.md §4.9.
var DubStageWeights = map[string]int{
	StageDownload:   5,
	StageDecode:     5,
	StageRecognize:  20,
	StageSegment:    5,
	StagePostEdit:   10,
	StageTranslate:  10,
	StageSynthesize: 30,
	StageMux:        15,
}

// Request is the intake payload validated by submit(), covering the union
// of fields the HTTP surface and the CLI collect (spec.md §6).
type Request struct {
	Kind Kind

	URL             string
	TestMode        bool
	BreathDetection bool
	LanguageTag     string

	PostEditEnabled bool
	PostEditModel   string // "" or "auto" expands per the fallback policy

	TranslateEnabled bool
	TargetLanguage   string
	Context          string // legal, spiritual, marketing, scientific, educational, news, casual
	Audience         string
	Tone             string
	Quality          string

	SynthesizeEnabled bool
	TTSProvider       string // explicit id, or "auto"
	TTSCostFirst      bool
	VoiceID           string
	OutputFormat      string

	MuxEnabled bool

	MaxCostUSD float64 // 0 = unbounded

	// Pre-supplied artifacts for translate-only/synthesize-only requests
	// that operate over an already-produced transcript/script.
	TranscriptText string
	ScriptText     string
}

// Job is the mutable record the Orchestrator owns exclusively.
type Job struct {
	mu sync.Mutex

	ID      string
	Kind    Kind
	Status  Status
	Stage   string
	Percent int // 0-100, non-decreasing within a run

	Request Request
	Ledger  *ledger.Ledger

	ArtifactPaths map[string]string // artifact kind -> path under the job directory

	WinningModel  string // the (region, model) pair that succeeded, for reproducibility
	WinningRegion string

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time

	Err *apierr.Error
}

// NewID generates a URL-safe, globally-unique job id using ULID
// (Crockford base32, 26 chars), matching the teacher's NewPodcastID.
func NewID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// New creates a queued Job for the given validated request.
func New(kind Kind, req Request) *Job {
	return &Job{
		ID:            NewID(),
		Kind:          kind,
		Status:        StatusQueued,
		Request:       req,
		Ledger:        ledger.New(),
		ArtifactPaths: map[string]string{},
		CreatedAt:     time.Now(),
	}
}

// Start transitions queued -> running. Returns false if the job was
// already picked up or terminal (e.g. cancelled before a worker claimed it).
func (j *Job) Start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusQueued {
		return false
	}
	j.Status = StatusRunning
	j.StartedAt = time.Now()
	return true
}

// AdvanceStage records a new current stage and sub-progress (0-100),
// recomputing the weighted overall Percent from the job kind's stage
// table (DubStageWeights for dub; shorter tables of their own for the
// other kinds).
func (j *Job) AdvanceStage(stage string, subPercent int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusRunning {
		return
	}
	j.Stage = stage

	pct := weightedPercent(j.Kind, stage, subPercent)
	if pct > j.Percent {
		j.Percent = pct
	}
}

func weightedPercent(kind Kind, stage string, subPercent int) int {
	if subPercent < 0 {
		subPercent = 0
	}
	if subPercent > 100 {
		subPercent = 100
	}

	weights := stagesForKind(kind)
	var total, doneWeight int
	for _, w := range weights {
		total += w.weight
	}
	if total == 0 {
		return 0
	}

	found := false
	for _, w := range weights {
		if w.name == stage {
			doneWeight += w.weight * subPercent / 100
			found = true
			break
		}
		doneWeight += w.weight
	}
	if !found {
		return 0
	}
	return doneWeight * 100 / total
}

type stageWeight struct {
	name   string
	weight int
}

func stagesForKind(kind Kind) []stageWeight {
	switch kind {
	case KindTranscribe:
		return []stageWeight{
			{StageDownload, 10}, {StageDecode, 10}, {StageRecognize, 60}, {StageSegment, 20},
		}
	case KindTranslate:
		return []stageWeight{{StageTranslate, 100}}
	case KindSynthesize:
		return []stageWeight{{StageSynthesize, 100}}
	default: // KindDub
		return []stageWeight{
			{StageDownload, DubStageWeights[StageDownload]},
			{StageDecode, DubStageWeights[StageDecode]},
			{StageRecognize, DubStageWeights[StageRecognize]},
			{StageSegment, DubStageWeights[StageSegment]},
			{StagePostEdit, DubStageWeights[StagePostEdit]},
			{StageTranslate, DubStageWeights[StageTranslate]},
			{StageSynthesize, DubStageWeights[StageSynthesize]},
			{StageMux, DubStageWeights[StageMux]},
		}
	}
}

// Complete transitions running -> completed.
func (j *Job) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusRunning {
		return
	}
	j.Status = StatusCompleted
	j.Stage = StageComplete
	j.Percent = 100
	j.EndedAt = time.Now()
}

// Fail transitions running -> failed, recording the structured error.
func (j *Job) Fail(err *apierr.Error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusRunning {
		return
	}
	j.Status = StatusFailed
	j.Err = err
	j.EndedAt = time.Now()
}

// Cancel transitions any non-terminal state to cancelled. Safe to call on
// an already-terminal job (no-op), matching spec.md's "cancel ... returns
// success even if the job has already terminated".
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isTerminal() {
		return
	}
	j.Status = StatusCancelled
	j.EndedAt = time.Now()
}

func (j *Job) isTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the job has reached an immutable end state.
func (j *Job) IsTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.isTerminal()
}

// SetArtifact records the path of a produced artifact.
func (j *Job) SetArtifact(kind, path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ArtifactPaths[kind] = path
}

// Artifact returns the path for an artifact kind, and whether it exists.
func (j *Job) Artifact(kind string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.ArtifactPaths[kind]
	return p, ok
}

// RecordWinner stores the fallback policy's winning (region, model) pair,
// per spec.md §4.5 "visible in the final artifact header".
func (j *Job) RecordWinner(region, model string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.WinningRegion = region
	j.WinningModel = model
}

// Snapshot is a copy-out read of a Job's fields, safe to hand to a status
// reader without blocking the owning worker (spec.md §5).
type Snapshot struct {
	ID            string
	Kind          Kind
	Status        Status
	Stage         string
	Percent       int
	ArtifactPaths map[string]string
	WinningModel  string
	WinningRegion string
	CostTotal     float64
	CostItems     []ledgerItemSnapshot
	CreatedAt     time.Time
	StartedAt     time.Time
	EndedAt       time.Time
	Err           *apierr.Error
}

type ledgerItemSnapshot struct {
	Stage  string
	Amount float64
	Actual bool
}

// Snapshot copies out a consistent view of the Job for status/list reads.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths := make(map[string]string, len(j.ArtifactPaths))
	for k, v := range j.ArtifactPaths {
		paths[k] = v
	}

	var items []ledgerItemSnapshot
	for _, it := range j.Ledger.Items() {
		items = append(items, ledgerItemSnapshot{Stage: it.Stage, Amount: it.Amount, Actual: it.Actual})
	}

	return Snapshot{
		ID:            j.ID,
		Kind:          j.Kind,
		Status:        j.Status,
		Stage:         j.Stage,
		Percent:       j.Percent,
		ArtifactPaths: paths,
		WinningModel:  j.WinningModel,
		WinningRegion: j.WinningRegion,
		CostTotal:     j.Ledger.Total(),
		CostItems:     items,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		EndedAt:       j.EndedAt,
		Err:           j.Err,
	}
}

// Validate checks a Request for intake, returning an InvalidRequest-kind
// error on malformed input per spec.md §4.1's submit() contract.
func (r *Request) Validate(kind Kind) *apierr.Error {
	if kind != KindTranslate && kind != KindSynthesize && r.URL == "" {
		return apierr.New(apierr.KindInvalidInput, "submit", "url is required", nil)
	}
	if kind == KindTranslate && r.TranscriptText == "" {
		return apierr.New(apierr.KindInvalidInput, "submit", "transcript is required for translate jobs", nil)
	}
	if kind == KindSynthesize && r.ScriptText == "" {
		return apierr.New(apierr.KindInvalidInput, "submit", "script is required for synthesize jobs", nil)
	}
	if (kind == KindTranslate || (kind == KindDub && r.TranslateEnabled)) && r.TargetLanguage == "" {
		return apierr.New(apierr.KindInvalidInput, "submit", "target_lang is required when translation is enabled", nil)
	}
	if r.MaxCostUSD < 0 {
		return apierr.New(apierr.KindInvalidInput, "submit", "max_cost_usd must be >= 0", nil)
	}
	if r.TTSProvider != "" && r.TTSProvider != "auto" && r.VoiceID == "" {
		return apierr.New(apierr.KindInvalidInput, "submit", "voice_id is required with an explicit provider", nil)
	}
	return nil
}

// DescribeError is a small helper for logging, avoiding a nil-pointer
// format verb surprise when Err is nil.
func (j *Job) DescribeError() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s: %s", j.Err.Stage, j.Err.Kind, j.Err.Message)
}
