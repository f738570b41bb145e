package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/artifact"
	"github.com/apresai/dubcast/internal/assembly"
	"github.com/apresai/dubcast/internal/download"
	"github.com/apresai/dubcast/internal/job"
	"github.com/apresai/dubcast/internal/postedit"
	"github.com/apresai/dubcast/internal/segment"
	"github.com/apresai/dubcast/internal/synth"
	"github.com/apresai/dubcast/internal/transcript"
	"github.com/apresai/dubcast/internal/translate"
	"github.com/apresai/dubcast/internal/tts"
)

// runJob is the body of a worker's loop iteration: it claims the job,
// runs its stage sequence to completion, failure, or cancellation, and
// guarantees scratch-directory cleanup on every exit path (spec.md
// §4.1/§4.12), mirroring the teacher's runPipeline's deferred cleanup.
func (o *Orchestrator) runJob(jobID string) {
	j, ok := o.registry.Get(jobID)
	if !ok {
		return
	}
	ctx, ok := o.registry.Context(jobID)
	if !ok {
		return
	}
	if !j.Start() {
		return
	}

	ctx, span := tracer.Start(ctx, "orchestrator.run_job", trace.WithAttributes(
		attribute.String("job_id", jobID),
		attribute.String("kind", string(j.Kind)),
	))
	defer span.End()

	scratchDir, err := os.MkdirTemp(o.cfg.TempDir, "job-"+jobID+"-*")
	if err != nil {
		j.Fail(apierr.New(apierr.KindInternal, "setup", "create scratch directory", err))
		return
	}
	defer os.RemoveAll(scratchDir)

	runErr := o.runPipeline(ctx, j, scratchDir)
	switch {
	case runErr == nil:
		j.Complete()
	case ctx.Err() != nil:
		j.Cancel()
	default:
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "pipeline failed")
		j.Fail(apierr.Of("pipeline", runErr))
	}
}

// runPipeline dispatches to the stage sequence for the job's kind, per
// spec.md §4.1's "dub is the superset" stage list.
func (o *Orchestrator) runPipeline(ctx context.Context, j *job.Job, scratchDir string) error {
	switch j.Kind {
	case job.KindTranslate:
		return o.runTranslateOnly(ctx, j)
	case job.KindSynthesize:
		return o.runSynthesizeOnly(ctx, j, scratchDir)
	default: // KindTranscribe, KindDub
		script, mediaPath, err := o.runTranscribe(ctx, j, scratchDir)
		if err != nil {
			return err
		}
		if j.Kind == job.KindTranscribe {
			return nil
		}
		return o.runDubRest(ctx, j, scratchDir, script, mediaPath)
	}
}

// runTranscribe executes stages (b) download through (e) segment,
// producing the timed Script and writing the transcript artifact. It
// returns the original downloaded media path too, since a later mux
// stage in a dub job needs it.
func (o *Orchestrator) runTranscribe(ctx context.Context, j *job.Job, scratchDir string) (*transcript.Script, string, error) {
	req := j.Request

	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	j.AdvanceStage(job.StageDownload, 0)
	mediaPath, err := download.Fetch(ctx, req.URL, scratchDir, download.DefaultOptions())
	if err != nil {
		return nil, "", err
	}
	j.AdvanceStage(job.StageDownload, 100)

	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	j.AdvanceStage(job.StageDecode, 0)
	wavPath := filepath.Join(scratchDir, "audio.wav")
	if err := assembly.DecodeToWAV(ctx, mediaPath, wavPath); err != nil {
		return nil, "", apierr.New(apierr.KindInternal, "decode", "decode to wav", err)
	}
	j.AdvanceStage(job.StageDecode, 100)

	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	j.AdvanceStage(job.StageRecognize, 0)
	durationSecs, _ := assembly.ProbeDuration(ctx, wavPath)
	units, rate, amount := recognizeQuote(durationSecs)
	if j.Ledger.WouldExceed(req.MaxCostUSD, amount) {
		return nil, "", apierr.New(apierr.KindInsufficientBudget, "recognize", "projected cost exceeds max_cost_usd", nil)
	}
	j.Ledger.AddQuote(job.StageRecognize, units, rate)

	if o.cfg.Recognizer == nil {
		return nil, "", apierr.New(apierr.KindInternal, "recognize", "no recognizer configured", nil)
	}
	hits, err := o.cfg.Recognizer.Transcribe(ctx, wavPath, req.LanguageTag, req.BreathDetection, func(pct float64) {
		j.AdvanceStage(job.StageRecognize, int(pct))
	})
	if err != nil {
		return nil, "", apierr.Of("recognize", err)
	}
	j.Ledger.AddActual(job.StageRecognize, units, rate)
	j.AdvanceStage(job.StageRecognize, 100)

	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	j.AdvanceStage(job.StageSegment, 0)
	segHits := make([]segment.Hit, len(hits))
	for i, h := range hits {
		segHits[i] = segment.Hit{Word: h.Word, Start: h.Start, End: h.End, Confidence: h.Confidence}
	}
	script := segment.Build(segHits)
	script.Header.Title = req.URL
	script.Header.ProcessedAt = time.Now()
	j.AdvanceStage(job.StageSegment, 100)

	path, err := o.artifacts.Path(j.ID, artifact.KindTranscript, "", "")
	if err != nil {
		return nil, "", apierr.New(apierr.KindInternal, "segment", "resolve transcript path", err)
	}
	if err := os.WriteFile(path, []byte(script.Render()), 0o644); err != nil {
		return nil, "", apierr.New(apierr.KindInternal, "segment", "write transcript artifact", err)
	}
	j.SetArtifact(string(artifact.KindTranscript), path)

	return script, mediaPath, nil
}

// runDubRest executes the optional stages (f) post-edit, (g) translate,
// (h) synthesize, (i) mux, each gated by the request's *Enabled flags and
// the cost-enforcement check of spec.md §4.1.
func (o *Orchestrator) runDubRest(ctx context.Context, j *job.Job, scratchDir string, script *transcript.Script, mediaPath string) error {
	req := j.Request
	current := script

	if req.PostEditEnabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.AdvanceStage(job.StagePostEdit, 0)

		units, rate, amount := genmodelQuote(len(current.Render()))
		if j.Ledger.WouldExceed(req.MaxCostUSD, amount) {
			return apierr.New(apierr.KindInsufficientBudget, "post_edit", "projected cost exceeds max_cost_usd", nil)
		}
		j.Ledger.AddQuote(job.StagePostEdit, units, rate)

		res, err := postedit.Run(ctx, o.cfg.Backend, current, postedit.Options{Model: req.PostEditModel})
		if err != nil {
			return apierr.Of("post_edit", err)
		}
		j.Ledger.AddActual(job.StagePostEdit, units, rate)
		j.RecordWinner(res.Region, res.Model)
		current = res.Script

		path, err := o.artifacts.Path(j.ID, artifact.KindScript, "", "")
		if err != nil {
			return apierr.New(apierr.KindInternal, "post_edit", "resolve script path", err)
		}
		if err := os.WriteFile(path, []byte(current.Render()), 0o644); err != nil {
			return apierr.New(apierr.KindInternal, "post_edit", "write script artifact", err)
		}
		j.SetArtifact(string(artifact.KindScript), path)
		j.AdvanceStage(job.StagePostEdit, 100)
	}

	synthLang := req.LanguageTag
	if req.TranslateEnabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.AdvanceStage(job.StageTranslate, 0)

		units, rate, amount := genmodelQuote(len(current.Render()))
		if j.Ledger.WouldExceed(req.MaxCostUSD, amount) {
			return apierr.New(apierr.KindInsufficientBudget, "translate", "projected cost exceeds max_cost_usd", nil)
		}
		j.Ledger.AddQuote(job.StageTranslate, units, rate)

		res, err := translate.Run(ctx, o.cfg.Backend, current, translate.Options{
			TargetLanguage: req.TargetLanguage,
			Context:        req.Context,
			Audience:       req.Audience,
			Tone:           req.Tone,
			Quality:        req.Quality,
		})
		if err != nil {
			return apierr.Of("translate", err)
		}
		j.Ledger.AddActual(job.StageTranslate, units, rate)
		j.RecordWinner(res.Region, res.Model)
		current = res.Script
		synthLang = req.TargetLanguage

		path, err := o.artifacts.Path(j.ID, artifact.KindTranslated, req.TargetLanguage, "")
		if err != nil {
			return apierr.New(apierr.KindInternal, "translate", "resolve translation path", err)
		}
		if err := os.WriteFile(path, []byte(current.Render()), 0o644); err != nil {
			return apierr.New(apierr.KindInternal, "translate", "write translation artifact", err)
		}
		j.SetArtifact(string(artifact.KindTranslated), path)
		j.AdvanceStage(job.StageTranslate, 100)
	}

	var audioPath string
	if req.SynthesizeEnabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.AdvanceStage(job.StageSynthesize, 0)

		provider, voice, profile, err := o.resolveVoice(req, synthLang)
		if err != nil {
			return err
		}

		charCount := 0
		for _, seg := range current.Segments {
			charCount += len(seg.Text)
		}
		units, rate, amount := synthesizeQuote(profile, charCount)
		if j.Ledger.WouldExceed(req.MaxCostUSD, amount) {
			return apierr.New(apierr.KindInsufficientBudget, "synthesize", "projected cost exceeds max_cost_usd", nil)
		}
		j.Ledger.AddQuote(job.StageSynthesize, units, rate)

		res, err := synth.Run(ctx, current, synth.Options{
			Provider: provider,
			Voice:    voice,
			WorkDir:  scratchDir,
		})
		if err != nil {
			return apierr.Of("synthesize", err)
		}
		j.Ledger.AddActual(job.StageSynthesize, units, rate)

		path, err := o.artifacts.Path(j.ID, artifact.KindAudio, synthLang, string(res.Format))
		if err != nil {
			return apierr.New(apierr.KindInternal, "synthesize", "resolve audio path", err)
		}
		if err := os.WriteFile(path, res.Data, 0o644); err != nil {
			return apierr.New(apierr.KindInternal, "synthesize", "write audio artifact", err)
		}
		j.SetArtifact(string(artifact.KindAudio), path)
		audioPath = path
		j.AdvanceStage(job.StageSynthesize, 100)
	}

	if req.MuxEnabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.AdvanceStage(job.StageMux, 0)
		if audioPath == "" {
			return apierr.New(apierr.KindInvalidInput, "mux", "mux requested without synthesized audio", nil)
		}
		if mediaPath == "" {
			return apierr.New(apierr.KindInvalidInput, "mux", "mux requested without a source video", nil)
		}

		outPath, err := o.artifacts.Path(j.ID, artifact.KindVideo, synthLang, "mp4")
		if err != nil {
			return apierr.New(apierr.KindInternal, "mux", "resolve output path", err)
		}
		if err := assembly.MuxVideo(ctx, mediaPath, audioPath, outPath); err != nil {
			return apierr.New(apierr.KindUpstream, "mux", "mux video", err)
		}
		j.SetArtifact(string(artifact.KindVideo), outPath)
		j.AdvanceStage(job.StageMux, 100)
	}

	return nil
}

// runTranslateOnly implements job kind "translate": translate a
// caller-supplied transcript without running the recognizer stages.
func (o *Orchestrator) runTranslateOnly(ctx context.Context, j *job.Job) error {
	req := j.Request
	source, err := transcript.Parse(req.TranscriptText)
	if err != nil {
		return apierr.New(apierr.KindInvalidInput, "translate", "parse transcript", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	j.AdvanceStage(job.StageTranslate, 0)

	units, rate, amount := genmodelQuote(len(req.TranscriptText))
	if j.Ledger.WouldExceed(req.MaxCostUSD, amount) {
		return apierr.New(apierr.KindInsufficientBudget, "translate", "projected cost exceeds max_cost_usd", nil)
	}
	j.Ledger.AddQuote(job.StageTranslate, units, rate)

	res, err := translate.Run(ctx, o.cfg.Backend, source, translate.Options{
		TargetLanguage: req.TargetLanguage,
		Context:        req.Context,
		Audience:       req.Audience,
		Tone:           req.Tone,
		Quality:        req.Quality,
	})
	if err != nil {
		return apierr.Of("translate", err)
	}
	j.Ledger.AddActual(job.StageTranslate, units, rate)
	j.RecordWinner(res.Region, res.Model)

	path, err := o.artifacts.Path(j.ID, artifact.KindTranslated, req.TargetLanguage, "")
	if err != nil {
		return apierr.New(apierr.KindInternal, "translate", "resolve translation path", err)
	}
	if err := os.WriteFile(path, []byte(res.Script.Render()), 0o644); err != nil {
		return apierr.New(apierr.KindInternal, "translate", "write translation artifact", err)
	}
	j.SetArtifact(string(artifact.KindTranslated), path)
	j.AdvanceStage(job.StageTranslate, 100)
	return nil
}

// runSynthesizeOnly implements job kind "synthesize": synthesize a
// caller-supplied script without running the upstream pipeline stages.
func (o *Orchestrator) runSynthesizeOnly(ctx context.Context, j *job.Job, scratchDir string) error {
	req := j.Request
	script, err := transcript.Parse(req.ScriptText)
	if err != nil {
		return apierr.New(apierr.KindInvalidInput, "synthesize", "parse script", err)
	}

	lang := req.LanguageTag
	if lang == "" {
		lang = req.TargetLanguage
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	j.AdvanceStage(job.StageSynthesize, 0)

	provider, voice, profile, err := o.resolveVoice(req, lang)
	if err != nil {
		return err
	}

	charCount := 0
	for _, seg := range script.Segments {
		charCount += len(seg.Text)
	}
	units, rate, amount := synthesizeQuote(profile, charCount)
	if j.Ledger.WouldExceed(req.MaxCostUSD, amount) {
		return apierr.New(apierr.KindInsufficientBudget, "synthesize", "projected cost exceeds max_cost_usd", nil)
	}
	j.Ledger.AddQuote(job.StageSynthesize, units, rate)

	res, err := synth.Run(ctx, script, synth.Options{Provider: provider, Voice: voice, WorkDir: scratchDir})
	if err != nil {
		return apierr.Of("synthesize", err)
	}
	j.Ledger.AddActual(job.StageSynthesize, units, rate)

	path, err := o.artifacts.Path(j.ID, artifact.KindAudio, lang, string(res.Format))
	if err != nil {
		return apierr.New(apierr.KindInternal, "synthesize", "resolve audio path", err)
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return apierr.New(apierr.KindInternal, "synthesize", "write audio artifact", err)
	}
	j.SetArtifact(string(artifact.KindAudio), path)
	j.AdvanceStage(job.StageSynthesize, 100)
	return nil
}

// resolveVoice implements spec.md §4.6's provider-selection policy: an
// explicit provider+voice id is looked up verbatim and fails with
// VoiceNotFound (never silently remapped); "auto" delegates to the
// Catalog's language-filtered, cost/quality-ranked search.
func (o *Orchestrator) resolveVoice(req job.Request, languageTag string) (tts.Provider, tts.Voice, tts.VoiceProfile, error) {
	if req.TTSProvider != "" && req.TTSProvider != "auto" {
		profile, ok := o.cfg.Catalog.Lookup(req.TTSProvider, req.VoiceID)
		if !ok {
			return nil, tts.Voice{}, tts.VoiceProfile{}, apierr.New(apierr.KindInvalidInput, "synthesize",
				fmt.Sprintf("voice %q not found on provider %q", req.VoiceID, req.TTSProvider), nil)
		}
		p, err := o.cfg.Providers.Get(req.TTSProvider)
		if err != nil {
			return nil, tts.Voice{}, tts.VoiceProfile{}, apierr.New(apierr.KindInternal, "synthesize", "create tts provider", err)
		}
		return p, tts.Voice{ID: req.VoiceID, Provider: req.TTSProvider}, profile, nil
	}

	providerName, profile, ok := o.cfg.Catalog.Select(o.cfg.TTSProviderNames, languageTag, "", req.VoiceID, req.TTSCostFirst)
	if !ok {
		return nil, tts.Voice{}, tts.VoiceProfile{}, apierr.New(apierr.KindInvalidInput, "synthesize",
			fmt.Sprintf("no configured tts provider supports language %q", languageTag), nil)
	}
	p, err := o.cfg.Providers.Get(providerName)
	if err != nil {
		return nil, tts.Voice{}, tts.VoiceProfile{}, apierr.New(apierr.KindInternal, "synthesize", "create tts provider", err)
	}
	return p, tts.Voice{ID: profile.VoiceID, Provider: providerName}, profile, nil
}
