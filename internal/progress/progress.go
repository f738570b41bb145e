package progress

import "time"

// Stage identifies which pipeline stage is active. Renamed from the
// teacher's podcast stages (ingest/script/tts/assembly) to the dub
// pipeline's stages (spec.md §4.1).
type Stage string

const (
	StageDownload   Stage = "download"
	StageDecode     Stage = "decode"
	StageRecognize  Stage = "recognize"
	StageSegment    Stage = "segment"
	StagePostEdit   Stage = "post_edit"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
	StageMux        Stage = "mux"
	StageComplete   Stage = "complete"
)

// Event carries progress information from the pipeline to the renderer.
type Event struct {
	JobID        string
	Stage        Stage
	Message      string
	Percent      float64 // 0.0–1.0, weighted per job kind (internal/job.AdvanceStage)
	SubPercent   int     // 0-100 within the current stage
	Elapsed      time.Duration
	Error        error
	// OutputFile is set on StageComplete with the final artifact path.
	OutputFile string
	// Duration is the media duration string (e.g. "12:34"), set on StageComplete.
	Duration string
	// SizeMB is the output file size in MB, set on StageComplete.
	SizeMB float64
	// LogFile is the log file path, set on StageComplete.
	LogFile string
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// NewEvent creates an Event with common fields populated.
func NewEvent(jobID string, stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		JobID:   jobID,
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}
