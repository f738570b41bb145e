// Command dubcast-server hosts the long-running HTTP surface of spec.md
// §6 over a shared Orchestrator, the way the teacher's cmd/mcp-server
// hosted mcpserver.Server — signal-driven graceful shutdown, a
// process-lifetime context threaded into every in-flight job.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/apresai/dubcast/internal/config"
	"github.com/apresai/dubcast/internal/genmodel"
	"github.com/apresai/dubcast/internal/httpapi"
	"github.com/apresai/dubcast/internal/observability"
	"github.com/apresai/dubcast/internal/orchestrator"
	"github.com/apresai/dubcast/internal/recognizer"
	"github.com/apresai/dubcast/internal/tts"
)

func main() {
	log := observability.InitLogger()
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if tp, err := observability.InitTracer(ctx, "dubcast-server", "1.0.0"); err == nil {
		defer tp.Shutdown(context.Background())
	} else {
		log.Warn("tracing disabled", "error", err)
	}

	cfg := config.Default()

	o, providers, catalog, ttsNames, err := buildOrchestrator(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	srv := httpapi.New(o, providers, catalog, ttsNames, log)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("dubcast-server starting", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildOrchestrator wires an Orchestrator from the deployment Config,
// mirroring internal/cli's buildOrchestrator (every TTS provider
// credentials resolve for, the shared genmodel.Backend, the REST-facing
// Recognizer when configured).
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
