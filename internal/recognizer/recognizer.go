// Package recognizer implements the Recognizer Adapter of spec.md §4.4:
// a uniform transcribe(audio_path, language_tag, breath_detection) →
// []Hit interface that picks a synchronous or staged (upload + poll)
// path by input size, and a pluggable Recognizer backend.
//
// Grounded on the teacher's internal/tts/gemini.go raw-HTTP provider
// pattern (manual JSON request/response types, status-code retry
// classification) and internal/mcpserver/storage.go's S3 upload leg,
// generalized here into internal/objectstore for the staged path.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/apresai/dubcast/internal/objectstore"
)

// Hit is one recognized word with its timing and confidence, per
// spec.md §7's recognizer-hit contract.
type Hit struct {
	Word       string
	Start      float64
	End        float64
	Confidence float64
}

// Kind classifies a recognizer failure per spec.md §4.4.
type Kind int

const (
	KindQuotaExceeded Kind = iota
	KindUnsupportedLanguage
	KindAudioFormatRejected
	KindTransientNetwork
)

// Error wraps a recognizer failure with its Kind so callers (and
// internal/apierr.Of) can decide whether to retry.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the fallback/retry loop should try again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindQuotaExceeded, KindTransientNetwork:
		return true
	default:
		return false
	}
}

// Recognizer transcribes one decoded audio file.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, languageTag string, breathDetection bool, report func(pct float64)) ([]Hit, error)
}

// Limits configures the sync-vs-staged decision rule of spec.md §4.4.
type Limits struct {
	SyncSizeLimitBytes int64
	SyncDurationCap    time.Duration
}

// DefaultLimits mirrors spec.md §7's configuration default
// (sync_size_limit_mb = 10).
func DefaultLimits() Limits {
	return Limits{SyncSizeLimitBytes: 10 * 1024 * 1024, SyncDurationCap: 10 * time.Minute}
}

// restRecognizer adapts an HTTP ASR endpoint supporting both a
// synchronous recognize call and a staged submit/poll job, mirroring the
// shape of the teacher's Gemini TTS provider.
type restRecognizer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	store      *objectstore.Store
	limits     Limits
}

// New creates a REST-backed Recognizer.
func New(endpoint, apiKey string, store *objectstore.Store, limits Limits) Recognizer {
	return &restRecognizer{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		store:      store,
		limits:     limits,
	}
}

func (r *restRecognizer) Transcribe(ctx context.Context, audioPath, languageTag string, breathDetection bool, report func(pct float64)) ([]Hit, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, &Error{Kind: KindAudioFormatRejected, Err: fmt.Errorf("recognizer: stat audio: %w", err)}
	}

	if info.Size() <= r.limits.SyncSizeLimitBytes {
		return r.syncTranscribe(ctx, audioPath, languageTag, breathDetection)
	}
	return r.stagedTranscribe(ctx, audioPath, languageTag, breathDetection, report)
}

type transcribeRequest struct {
	LanguageTag     string `json:"language_tag"`
	BreathDetection bool   `json:"breath_detection"`
}

type transcribeResponse struct {
	Hits []recognizerHitWire `json:"hits"`
}

type recognizerHitWire struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start_seconds"`
	End        float64 `json:"end_seconds"`
	Confidence float64 `json:"confidence"`
}

func (r *restRecognizer) syncTranscribe(ctx context.Context, audioPath, languageTag string, breathDetection bool) ([]Hit, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, &Error{Kind: KindAudioFormatRejected, Err: err}
	}
	defer audio.Close()

	reqMeta, err := json.Marshal(transcribeRequest{LanguageTag: languageTag, BreathDetection: breathDetection})
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: err}
	}

	url := r.endpoint + "/v1/recognize?meta=" + string(reqMeta)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, audio)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return nil, &Error{Kind: kind, Err: fmt.Errorf("recognizer: status %d: %s", resp.StatusCode, string(body))}
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: fmt.Errorf("recognizer: parse response: %w", err)}
	}
	return toHits(parsed.Hits), nil
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type pollResponse struct {
	Status          string              `json:"status"` // "running", "completed", "failed"
	ExpectedSeconds float64             `json:"expected_seconds"`
	ElapsedSeconds  float64             `json:"elapsed_seconds"`
	Hits            []recognizerHitWire `json:"hits"`
	Error           string              `json:"error"`
}

// stagedTranscribe uploads oversized audio to the object store, submits a
// long-running job, then polls with jittered increasing backoff,
// reporting min(90, elapsed/expected*100) until completion, per spec.md
// §4.4's polling contract.
func (r *restRecognizer) stagedTranscribe(ctx context.Context, audioPath, languageTag string, breathDetection bool, report func(pct float64)) ([]Hit, error) {
	key := objectstore.AudioKey(randomJobTag(), "wav")
	_, uploadURL, err := r.store.Upload(ctx, key, audioPath, "audio/wav")
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: fmt.Errorf("recognizer: staged upload: %w", err)}
	}

	submitBody, _ := json.Marshal(struct {
		AudioURL        string `json:"audio_url"`
		LanguageTag     string `json:"language_tag"`
		BreathDetection bool   `json:"breath_detection"`
	}{AudioURL: uploadURL, LanguageTag: languageTag, BreathDetection: breathDetection})

	submitReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/recognize/jobs", bytes.NewReader(submitBody))
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: err}
	}
	submitReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	submitReq.Header.Set("Content-Type", "application/json")

	submitResp, err := r.httpClient.Do(submitReq)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: err}
	}
	body, _ := io.ReadAll(submitResp.Body)
	submitResp.Body.Close()
	if kind, ok := classifyStatus(submitResp.StatusCode); ok {
		return nil, &Error{Kind: kind, Err: fmt.Errorf("recognizer: submit status %d: %s", submitResp.StatusCode, string(body))}
	}

	var sub submitResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Err: err}
	}

	return r.poll(ctx, sub.JobID, report)
}

func (r *restRecognizer) poll(ctx context.Context, jobID string, report func(pct float64)) ([]Hit, error) {
	backoff := 1 * time.Second
	const maxBackoff = 15 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/v1/recognize/jobs/"+jobID, nil)
		if err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+r.apiKey)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Err: err}
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if kind, ok := classifyStatus(resp.StatusCode); ok {
			return nil, &Error{Kind: kind, Err: fmt.Errorf("recognizer: poll status %d: %s", resp.StatusCode, string(body))}
		}

		var poll pollResponse
		if err := json.Unmarshal(body, &poll); err != nil {
			return nil, &Error{Kind: KindTransientNetwork, Err: err}
		}

		switch poll.Status {
		case "completed":
			if report != nil {
				report(100)
			}
			return toHits(poll.Hits), nil
		case "failed":
			return nil, classifyPollError(poll.Error)
		default:
			if report != nil && poll.ExpectedSeconds > 0 {
				pct := poll.ElapsedSeconds / poll.ExpectedSeconds * 100
				if pct > 90 {
					pct = 90
				}
				report(pct)
			}
		}

		if err := sleepWithJitter(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func classifyPollError(msg string) error {
	switch {
	case containsAny(msg, "quota", "rate limit"):
		return &Error{Kind: KindQuotaExceeded, Err: errors.New(msg)}
	case containsAny(msg, "language"):
		return &Error{Kind: KindUnsupportedLanguage, Err: errors.New(msg)}
	case containsAny(msg, "format", "codec"):
		return &Error{Kind: KindAudioFormatRejected, Err: errors.New(msg)}
	default:
		return &Error{Kind: KindTransientNetwork, Err: errors.New(msg)}
	}
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return KindQuotaExceeded, true
	case status == http.StatusUnprocessableEntity || status == http.StatusUnsupportedMediaType:
		return KindAudioFormatRejected, true
	case status == http.StatusBadRequest:
		return KindUnsupportedLanguage, true
	case status >= http.StatusInternalServerError:
		return KindTransientNetwork, true
	case status == http.StatusOK:
		return 0, false
	default:
		return KindTransientNetwork, true
	}
}

func toHits(wire []recognizerHitWire) []Hit {
	out := make([]Hit, len(wire))
	for i, w := range wire {
		out[i] = Hit{Word: w.Word, Start: w.Start, End: w.End, Confidence: w.Confidence}
	}
	return out
}

func sleepWithJitter(ctx context.Context, d time.Duration) error {
	jitter := time.Duration(rand.Int63n(int64(d)/3 + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d + jitter):
		return nil
	}
}

func randomJobTag() string {
	return fmt.Sprintf("%x", rand.Int63())
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
