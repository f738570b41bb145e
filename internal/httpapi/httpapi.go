// Package httpapi implements the REST surface of spec.md §6 over the
// Orchestrator, using github.com/go-chi/chi/v5 for routing — the pack's
// idiomatic HTTP router (the teacher's own HTTP-like surface is
// MCP-over-HTTP via mark3labs/mcp-go, retained separately in
// internal/mcpserver as a second, optional transport wrapping the same
// Orchestrator).
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/artifact"
	"github.com/apresai/dubcast/internal/job"
	"github.com/apresai/dubcast/internal/orchestrator"
	"github.com/apresai/dubcast/internal/tts"
)

// Version is reported on GET /health.
const Version = "1.0.0"

// Server wires the Orchestrator into a chi.Router per spec.md §6's route
// table.
type Server struct {
	orch      *orchestrator.Orchestrator
	providers *tts.ProviderSet
	catalog   *tts.Catalog
	ttsNames  []string
	log       *slog.Logger
}

// New constructs a Server; call Routes to get an http.Handler.
func New(orch *orchestrator.Orchestrator, providers *tts.ProviderSet, catalog *tts.Catalog, ttsNames []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{orch: orch, providers: providers, catalog: catalog, ttsNames: ttsNames, log: log}
}

// Routes builds the chi.Router implementing spec.md §6.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transcribe", s.handleSubmit(job.KindTranscribe))
		r.Post("/translate", s.handleSubmit(job.KindTranslate))
		r.Post("/synthesize", s.handleSubmit(job.KindSynthesize))
		r.Post("/dub", s.handleSubmit(job.KindDub))

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/artifact", s.handleFetchArtifact)
		r.Delete("/jobs/{id}", s.handleDeleteJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)

		r.Get("/tts-providers", s.handleListProviders)
		r.Get("/tts-providers/{id}/voices", s.handleListVoices)
		r.Get("/tts-cost-comparison", s.handleCostComparison)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         Version,
		"providers_ready": s.ttsNames,
	})
}

// submitRequest is the union of fields the HTTP surface accepts across
// /v1/transcribe, /v1/translate, /v1/synthesize, and /v1/dub, per
// spec.md §6's per-route field lists.
type submitRequest struct {
	URL             string `json:"url"`
	TestMode        bool   `json:"test_mode"`
	BreathDetection bool   `json:"breath_detection"`
	Language        string `json:"language"`

	PostEdit *struct {
		Enabled bool   `json:"enabled"`
		Model   string `json:"model"`
	} `json:"post_edit"`

	Transcript     string `json:"transcript"`
	TargetLanguage string `json:"target_lang"`
	Context        string `json:"context"`
	Audience       string `json:"audience"`
	Tone           string `json:"tone"`
	Quality        string `json:"quality"`

	Script     string `json:"script"`
	Provider   string `json:"provider"`
	CostFirst  bool   `json:"cost_first"`
	VoiceID    string `json:"voice_id"`
	Format     string `json:"format"`

	Mux        bool    `json:"mux"`
	MaxCostUSD float64 `json:"max_cost"`
}

func (s *Server) handleSubmit(kind job.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apierr.New(apierr.KindInvalidInput, "decode", "malformed JSON body", err))
			return
		}

		req := job.Request{
			Kind:            kind,
			URL:             body.URL,
			TestMode:        body.TestMode,
			BreathDetection: body.BreathDetection,
			LanguageTag:     body.Language,
			TargetLanguage:  body.TargetLanguage,
			Context:         body.Context,
			Audience:        body.Audience,
			Tone:            body.Tone,
			Quality:         body.Quality,
			TTSProvider:     body.Provider,
			TTSCostFirst:    body.CostFirst,
			VoiceID:         body.VoiceID,
			OutputFormat:    body.Format,
			MaxCostUSD:      body.MaxCostUSD,
			TranscriptText:  body.Transcript,
			ScriptText:      body.Script,
		}
		switch kind {
		case job.KindTranslate:
			req.TranslateEnabled = true
		case job.KindSynthesize:
			req.SynthesizeEnabled = true
		case job.KindDub:
			req.TranslateEnabled = body.TargetLanguage != ""
			req.SynthesizeEnabled = true
			req.MuxEnabled = body.Mux
		}
		if body.PostEdit != nil {
			req.PostEditEnabled = body.PostEdit.Enabled
			req.PostEditModel = body.PostEdit.Model
		}

		id, err := s.orch.Submit(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.orch.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	status := job.Status(r.URL.Query().Get("status"))

	snaps := s.orch.List(limit, offset, status)
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetchArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := artifact.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		writeError(w, apierr.New(apierr.KindInvalidInput, "fetch", "kind query parameter is required", nil))
		return
	}

	f, size, err := s.orch.Fetch(id, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

// providerSummary is the per-provider row of GET /v1/tts-providers.
type providerSummary struct {
	ID          string   `json:"id"`
	VoicesCount int      `json:"voices_count"`
	RatePer1k   float64  `json:"rate_per_1k"`
	Languages   []string `json:"languages"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	var out []providerSummary
	for _, name := range s.ttsNames {
		voices := s.catalog.Voices(name, "")
		if len(voices) == 0 {
			continue
		}
		langSet := map[string]bool{}
		var rateSum float64
		for _, v := range voices {
			langSet[v.LanguageTag] = true
			rateSum += v.PricePerKChar
		}
		langs := make([]string, 0, len(langSet))
		for l := range langSet {
			langs = append(langs, l)
		}
		sort.Strings(langs)

		out = append(out, providerSummary{
			ID:          name,
			VoicesCount: len(voices),
			RatePer1k:   rateSum / float64(len(voices)),
			Languages:   langs,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lang := r.URL.Query().Get("language")
	writeJSON(w, http.StatusOK, s.catalog.Voices(id, lang))
}

// costComparisonRow is one entry of GET /v1/tts-cost-comparison's response.
type costComparisonRow struct {
	Provider string  `json:"provider"`
	Voice    string  `json:"voice"`
	Cost     float64 `json:"cost"`
}

// handleCostComparison quotes every registered provider's cheapest voice
// for the submitted sample text and returns the cheapest recommendation,
// grounded on the teacher's runListVoices provider-iteration loop.
func (s *Server) handleCostComparison(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, apierr.New(apierr.KindInvalidInput, "cost_comparison", "text query parameter is required", nil))
		return
	}
	charCount := len([]rune(text))

	var rows []costComparisonRow
	for _, name := range s.ttsNames {
		voices := s.catalog.Voices(name, "")
		var cheapest *tts.VoiceProfile
		for i := range voices {
			if cheapest == nil || voices[i].PricePerKChar < cheapest.PricePerKChar {
				cheapest = &voices[i]
			}
		}
		if cheapest == nil {
			continue
		}
		rows = append(rows, costComparisonRow{
			Provider: name,
			Voice:    cheapest.VoiceID,
			Cost:     tts.Quote(*cheapest, charCount),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Cost < rows[j].Cost })

	resp := map[string]any{"quotes": rows}
	if len(rows) > 0 {
		resp["recommended"] = rows[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := apierr.Of("httpapi", err)
	writeJSON(w, apiErr.StatusCode(), map[string]string{
		"error": apiErr.Message,
		"kind":  string(apiErr.Kind),
	})
}
