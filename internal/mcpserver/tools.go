package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/dubcast/internal/job"
	"github.com/apresai/dubcast/internal/tts"
)

var tracer = otel.Tracer("dubcast-mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "server_info",
			Description: "Returns server runtime information and diagnostics. Useful for debugging.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
		{
			Name:        "submit_dub_job",
			Description: "Submit a video for dubbing. Starts an async pipeline (download, recognize, optional post-edit, optional translate, synthesize, mux) and returns a job_id immediately. Use get_job to poll for progress and the completed result with its artifact paths. Always poll get_job until status is 'completed', then surface the artifact path to the user.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "URL of the source video to dub",
					},
					"test_mode": map[string]any{
						"type":        "boolean",
						"description": "Mark the job as a test run; the flag is recorded on the request and does not change which segments are processed",
						"default":     false,
					},
					"breath_detection": map[string]any{
						"type":        "boolean",
						"description": "Detect breath/pause boundaries when segmenting the transcript",
						"default":     false,
					},
					"post_edit": map[string]any{
						"type":        "boolean",
						"description": "Run a genmodel post-edit pass over the recognized transcript before translation/synthesis",
						"default":     false,
					},
					"post_edit_model": map[string]any{
						"type":        "string",
						"description": "Model id for the post-edit pass, or 'auto' to use the fallback policy",
						"default":     "auto",
					},
					"translate": map[string]any{
						"type":        "boolean",
						"description": "Translate the script to target_language before synthesis",
						"default":     false,
					},
					"target_language": map[string]any{
						"type":        "string",
						"description": "BCP-47 target language tag, required when translate is true",
					},
					"context": map[string]any{
						"type":        "string",
						"description": "Domain context for translation: legal, spiritual, marketing, scientific, educational, news, casual",
					},
					"audience": map[string]any{
						"type":        "string",
						"description": "Intended audience for translation tone",
					},
					"tone": map[string]any{
						"type":        "string",
						"description": "Desired delivery tone for translation/synthesis",
					},
					"tts_provider": map[string]any{
						"type":        "string",
						"description": "TTS provider id, or 'auto' to select by voice equivalence and cost",
						"default":     "auto",
					},
					"tts_cost_first": map[string]any{
						"type":        "boolean",
						"description": "When provider is 'auto', prefer the cheapest equivalent voice over the closest match",
						"default":     false,
					},
					"voice_id": map[string]any{
						"type":        "string",
						"description": "Explicit voice id for the chosen TTS provider",
					},
					"output_format": map[string]any{
						"type":        "string",
						"description": "Output audio container/codec, provider-dependent",
					},
					"mux": map[string]any{
						"type":        "boolean",
						"description": "Mux the synthesized audio back onto the source video",
						"default":     true,
					},
					"max_cost_usd": map[string]any{
						"type":        "number",
						"description": "Abort the job if its running cost ledger exceeds this (0 = unbounded)",
						"default":     0,
					},
				},
				Required: []string{"url"},
			},
		},
		{
			Name:        "get_job",
			Description: "Get the status and details of a dub job by id. Use this to check on a running job or retrieve a completed one.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job id returned from submit_dub_job",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "list_jobs",
			Description: "List dub jobs, newest first.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
					"status": map[string]any{
						"type":        "string",
						"description": "Filter by status: queued, running, completed, failed, cancelled",
					},
				},
			},
		},
		{
			Name:        "cancel_job",
			Description: "Request cooperative cancellation of a running job.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job id to cancel",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "list_voices",
			Description: "List available TTS voices for a provider, or every provider's voices for a language tag. Returns voice ids usable as voice_id in submit_dub_job.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"provider": map[string]any{
						"type":        "string",
						"description": "TTS provider name, empty for every available provider",
					},
					"language_tag": map[string]any{
						"type":        "string",
						"description": "BCP-47 language tag filter, empty for every language",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks   *TaskManager
	catalog *tts.Catalog
	log     *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(tasks *TaskManager, catalog *tts.Catalog, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, catalog: catalog, log: logger}
}

// userFromContext resolves the caller's identity, either from the HTTP
// auth context (direct access with an Authorization header) or from
// proxy-injected _user_id/_key_id tool arguments (Lambda proxy flow).
func userFromContext(ctx context.Context, req mcp.CallToolRequest) (userID, keyID string) {
	auth := AuthFromContext(ctx)
	if auth.Authenticated {
		return auth.UserID, auth.KeyID
	}
	args := req.GetArguments()
	if uid, ok := args["_user_id"].(string); ok {
		userID = uid
	}
	if kid, ok := args["_key_id"].(string); ok {
		keyID = kid
	}
	return userID, keyID
}

// HandleSubmitDubJob starts a dub job.
func (h *Handlers) HandleSubmitDubJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.submit_dub_job")
	defer span.End()

	userID, keyID := userFromContext(ctx, req)
	_ = keyID

	if userID == "" && os.Getenv("SECRET_PREFIX") != "" {
		auth := AuthFromContext(ctx)
		if auth.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Authentication failed: %v. Provide your API key as: Authorization: Bearer <your-api-key>.", auth.Error)), nil
		}
		return mcp.NewToolResultError("Authentication required. Provide your API key as: Authorization: Bearer <your-api-key>."), nil
	}

	jobReq := job.Request{
		Kind:            job.KindDub,
		URL:             mcp.ParseString(req, "url", ""),
		TestMode:        parseBoolParam(req, "test_mode", false),
		BreathDetection: parseBoolParam(req, "breath_detection", false),
		PostEditEnabled: parseBoolParam(req, "post_edit", false),
		PostEditModel:   mcp.ParseString(req, "post_edit_model", "auto"),
		TranslateEnabled: parseBoolParam(req, "translate", false),
		TargetLanguage:   mcp.ParseString(req, "target_language", ""),
		Context:          mcp.ParseString(req, "context", ""),
		Audience:         mcp.ParseString(req, "audience", ""),
		Tone:             mcp.ParseString(req, "tone", ""),
		SynthesizeEnabled: true,
		TTSProvider:       mcp.ParseString(req, "tts_provider", "auto"),
		TTSCostFirst:      parseBoolParam(req, "tts_cost_first", false),
		VoiceID:           mcp.ParseString(req, "voice_id", ""),
		OutputFormat:      mcp.ParseString(req, "output_format", ""),
		MuxEnabled:        parseBoolParam(req, "mux", true),
		MaxCostUSD:        parseFloatParam(req, "max_cost_usd", 0),
	}

	span.SetAttributes(
		attribute.String("url", jobReq.URL),
		attribute.Bool("translate", jobReq.TranslateEnabled),
		attribute.String("tts_provider", jobReq.TTSProvider),
	)

	if jobReq.URL == "" {
		span.SetStatus(codes.Error, "missing url")
		return mcp.NewToolResultError("url is required"), nil
	}

	id, err := h.tasks.StartJob(ctx, jobReq, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	span.SetAttributes(attribute.String("job_id", id))
	h.log.InfoContext(ctx, "dub job started", "job_id", id, "url", jobReq.URL)

	return jsonResult(map[string]any{
		"job_id":  id,
		"status":  "queued",
		"message": "Dub job started. Use get_job to check progress.",
	})
}

// HandleGetJob returns job details.
func (h *Handlers) HandleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_job")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing job_id")
		return mcp.NewToolResultError("job_id is required"), nil
	}
	span.SetAttributes(attribute.String("job_id", id))

	snap, err := h.tasks.orch.Status(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("job %s not found", id)), nil
	}

	result := snapshotResult(snap)
	return jsonResult(result)
}

// HandleListJobs returns a list of jobs.
func (h *Handlers) HandleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_jobs")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	statusFilter := job.Status(mcp.ParseString(req, "status", ""))

	snaps := h.tasks.orch.List(limit, 0, statusFilter)
	span.SetAttributes(attribute.Int("result_count", len(snaps)))

	jobs := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		jobs = append(jobs, snapshotResult(snap))
	}

	return jsonResult(map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleCancelJob requests cancellation of a running job.
func (h *Handlers) HandleCancelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		return mcp.NewToolResultError("job_id is required"), nil
	}
	if err := h.tasks.CancelJob(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to cancel job: %v", err)), nil
	}
	return jsonResult(map[string]any{"job_id": id, "status": "cancelling"})
}

// HandleListVoices returns available voices for a provider, or every
// provider's voices when provider is empty.
func (h *Handlers) HandleListVoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	provider := mcp.ParseString(req, "provider", "")
	languageTag := mcp.ParseString(req, "language_tag", "")

	voices := h.catalog.Voices(provider, languageTag)
	voiceList := make([]map[string]any, 0, len(voices))
	for _, v := range voices {
		voiceList = append(voiceList, map[string]any{
			"provider":         v.Provider,
			"voice_id":         v.VoiceID,
			"language_tag":     v.LanguageTag,
			"gender":           v.Gender,
			"quality_tier":     v.QualityTier,
			"tone":             v.Tone,
			"price_per_kchars": v.PricePerKChar,
		})
	}

	return jsonResult(map[string]any{
		"provider": provider,
		"voices":   voiceList,
		"count":    len(voiceList),
	})
}

// HandleServerInfo returns runtime diagnostics.
func (h *Handlers) HandleServerInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	otelVars := map[string]string{}
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		if strings.HasPrefix(key, "OTEL_") || strings.HasPrefix(key, "AWS_") ||
			key == "SECRET_PREFIX" ||
			key == "S3_BUCKET" || key == "DYNAMODB_TABLE" ||
			key == "CDN_BASE_URL" || key == "DISABLE_ADOT_OBSERVABILITY" ||
			key == "HOME" || key == "PORT" || key == "PATH" {
			otelVars[key] = parts[1]
		}
	}

	otelPorts := map[string]string{
		"grpc_4317": "localhost:4317",
		"http_4318": "localhost:4318",
	}
	portStatus := map[string]string{}
	for name, addr := range otelPorts {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			portStatus[name] = fmt.Sprintf("CLOSED (%v)", err)
		} else {
			conn.Close()
			portStatus[name] = "OPEN"
		}
	}

	return jsonResult(map[string]any{
		"go_version":    runtime.Version(),
		"arch":          runtime.GOARCH,
		"os":            runtime.GOOS,
		"num_goroutine": runtime.NumGoroutine(),
		"env_vars":      otelVars,
		"otel_ports":    portStatus,
	})
}

func snapshotResult(snap job.Snapshot) map[string]any {
	result := map[string]any{
		"job_id":  snap.ID,
		"kind":    string(snap.Kind),
		"status":  string(snap.Status),
		"stage":   snap.Stage,
		"percent": snap.Percent,
	}
	if len(snap.ArtifactPaths) > 0 {
		result["artifacts"] = snap.ArtifactPaths
	}
	if snap.WinningModel != "" {
		result["winning_model"] = snap.WinningModel
	}
	if snap.WinningRegion != "" {
		result["winning_region"] = snap.WinningRegion
	}
	if snap.CostTotal > 0 {
		result["cost_total_usd"] = snap.CostTotal
	}
	if snap.Err != nil {
		result["error"] = snap.Err.Error()
	}
	return result
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func parseFloatParam(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return defaultVal
	}
}

func parseBoolParam(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	b, ok := raw.(bool)
	if !ok {
		return defaultVal
	}
	return b
}
