// Package mcpserver exposes the Orchestrator as an MCP tool surface
// (spec.md §4.11: "a second, optional transport... wrapping the same
// orchestrator"), grounded on the teacher's own MCP-over-HTTP server —
// same AgentCore-friendly bootstrap (secrets loaded asynchronously so the
// listener comes up before the first request lands), same bearer-token
// auth context, same StreamableHTTPServer mount — generalized from
// podcast generation to the dub pipeline.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/apresai/dubcast/internal/config"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/jobstore"
	"github.com/apresai/dubcast/internal/orchestrator"
	"github.com/apresai/dubcast/internal/recognizer"
	"github.com/apresai/dubcast/internal/tts"
)

// Config holds server configuration.
type Config struct {
	Port         int
	TableName    string
	AWSRegion    string
	MaxTasks     int
	SecretPrefix string // e.g. "/dubcast/mcp/"
}

// DefaultConfig returns a Config populated from environment variables.
func DefaultConfig() Config {
	return Config{
		Port:         8000,
		TableName:    envOr("DYNAMODB_TABLE", "dubcast-jobs-prod"),
		AWSRegion:    envOr("AWS_REGION", "us-east-1"),
		MaxTasks:     5,
		SecretPrefix: envOr("SECRET_PREFIX", "/dubcast/mcp/"),
	}
}

// Server is the MCP server fronting the dub pipeline.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	handlers *Handlers
	store    *Store
	log      *slog.Logger
}

// New creates and configures the MCP server. Secrets are loaded
// asynchronously to minimize cold-start latency on AgentCore, where the
// container must have its port listening before AgentCore sends the
// first request. The HTTP listener starts immediately; secrets finish
// loading in the background (typically <1s).
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	if cfg.SecretPrefix != "" {
		go func() {
			if err := loadSecrets(ctx, awsCfg, cfg.SecretPrefix, logger); err != nil {
				logger.Warn("failed to load secrets from Secrets Manager, falling back to env vars", "error", err)
			}
		}()
	}

	deployCfg := config.Default()
	orch, _, catalog, _, err := buildOrchestrator(ctx, deployCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg)
	jobs := jobstore.NewStore(ddbClient, cfg.TableName)
	auth := NewStore(ddbClient, cfg.TableName)
	taskMgr := NewTaskManager(orch, jobs, auth, logger, ctx)

	handlers := NewHandlers(taskMgr, catalog, logger)

	mcpServer := server.NewMCPServer(
		"dubcast",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleServerInfo)
	mcpServer.AddTool(tools[1], handlers.HandleSubmitDubJob)
	mcpServer.AddTool(tools[2], handlers.HandleGetJob)
	mcpServer.AddTool(tools[3], handlers.HandleListJobs)
	mcpServer.AddTool(tools[4], handlers.HandleCancelJob)
	mcpServer.AddTool(tools[5], handlers.HandleListVoices)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		handlers: handlers,
		store:    auth,
		log:      logger,
	}, nil
}

// Start runs the HTTP MCP server. Uses a custom mux with request logging
// so AgentCore request routing can be debugged. The StreamableHTTPServer
// is mounted at /mcp and used as a handler.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("starting MCP server", "addr", addr)

	store := s.store

	mcpHandler := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true), // AgentCore manages session IDs
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				return WithAuthResult(ctx, AuthResult{Authenticated: false})
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				return WithAuthResult(ctx, AuthResult{Authenticated: false, Error: fmt.Errorf("invalid authorization format, expected: Bearer <api-key>")})
			}

			info, err := store.ValidateAPIKey(ctx, authHeader)
			if err != nil {
				s.log.WarnContext(ctx, "API key validation failed", "error", err)
				return WithAuthResult(ctx, AuthResult{Authenticated: false, Error: err})
			}

			s.log.InfoContext(ctx, "authenticated request", "user_id", info.UserID, "key_id", info.KeyID)
			return WithAuthResult(ctx, AuthResult{
				Authenticated: true,
				UserID:        info.UserID,
				Role:          info.Role,
				KeyID:         info.KeyID,
			})
		}),
	)

	mux := http.NewServeMux()
	// Register both /mcp and /mcp/ — AgentCore sends POST to /mcp/ (trailing
	// slash) and Go's ServeMux won't match /mcp for /mcp/ POST requests.
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/mcp/", mcpHandler)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Info("http request", "method", r.Method, "path", r.URL.Path, "content_type", r.Header.Get("Content-Type"))
		// mcp-go requires application/json and rejects requests without it;
		// AgentCore does not always send Content-Type.
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
		mux.ServeHTTP(w, r)
	})

	httpSrv := &http.Server{Addr: addr, Handler: handler}
	return httpSrv.ListenAndServe()
}

// buildOrchestrator wires an Orchestrator from the deployment Config,
// mirroring internal/cli's buildOrchestrator and cmd/dubcast-server's copy
// of the same logic: every TTS provider credentials resolve for, the
// shared genmodel.Backend, the REST-facing Recognizer when configured.
func buildOrchestrator(ctx context.Context, cfg config.Config, log *slog.Logger) (*orchestrator.Orchestrator, *tts.ProviderSet, *tts.Catalog, []string, error) {
	providers := tts.NewProviderSet()

	candidates := map[string]bool{
		"elevenlabs":    os.Getenv("ELEVENLABS_API_KEY") != "",
		"gemini":        os.Getenv("GEMINI_API_KEY") != "",
		"google":        true,
		"gemini-vertex": os.Getenv("GCP_PROJECT") != "",
		"polly":         true,
	}

	var names []string
	var instances []tts.Provider
	for _, name := range []string{"elevenlabs", "google", "gemini", "gemini-vertex", "polly"} {
		if !candidates[name] {
			continue
		}
		p, err := providers.Get(name)
		if err != nil {
			log.Warn("tts provider unavailable", "provider", name, "error", err)
			continue
		}
		names = append(names, name)
		instances = append(instances, p)
	}
	sort.Strings(names)
	catalog := tts.NewCatalog(instances)

	var rec recognizer.Recognizer
	if cfg.RecognizerEndpoint != "" {
		rec = recognizer.New(cfg.RecognizerEndpoint, cfg.RecognizerAPIKey, nil, recognizer.DefaultLimits())
	}

	o, err := orchestrator.New(ctx, orchestrator.Config{
		Workers:          cfg.MaxJobs,
		TempDir:          cfg.TempDir,
		Recognizer:       rec,
		Backend:          genmodel.NewDefaultBackend(),
		Providers:        providers,
		Catalog:          catalog,
		TTSProviderNames: names,
		Log:              log,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return o, providers, catalog, names, nil
}

// loadSecrets fetches API keys from Secrets Manager and sets them as env vars.
func loadSecrets(ctx context.Context, cfg aws.Config, prefix string, logger *slog.Logger) error {
	client := secretsmanager.NewFromConfig(cfg)

	secrets := map[string]string{
		"ANTHROPIC_API_KEY":  prefix + "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY":     prefix + "GEMINI_API_KEY",
		"ELEVENLABS_API_KEY": prefix + "ELEVENLABS_API_KEY",
		"GCP_PROJECT":        prefix + "GCP_PROJECT",
	}

	for envVar, secretID := range secrets {
		if os.Getenv(envVar) != "" {
			continue
		}

		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
		if err != nil {
			logger.Info("secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			logger.Info("loaded secret", "secret_id", secretID)
		}
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
