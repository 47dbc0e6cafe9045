// Command worker runs the document analysis pipeline: text extraction, the
// OCR backend cascade, and the configured annotator set, triggered either
// once (run-once) or repeatedly via an Asynq-backed scheduler (triggered).
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/docpipeline/internal/annotate"
	"github.com/adverant/nexus/docpipeline/internal/archive"
	"github.com/adverant/nexus/docpipeline/internal/backend"
	"github.com/adverant/nexus/docpipeline/internal/config"
	"github.com/adverant/nexus/docpipeline/internal/logging"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/semantic"
	"github.com/adverant/nexus/docpipeline/internal/stages"
	"github.com/adverant/nexus/docpipeline/internal/store"
	"github.com/adverant/nexus/docpipeline/internal/trigger"
)

func main() {
	log := logging.NewLogger("worker")

	if err := godotenv.Load(); err != nil {
		log.Warn(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded",
		"worker_mode", cfg.WorkerMode,
		"workers", cfg.Workers,
		"chunk_size", cfg.ChunkSize,
		"methods", cfg.Methods,
	)

	st, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := buildRegistry(cfg, log)
	runner := buildRunner(cfg, st, registry, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan pipeline.Event, 64)
	semanticEvents, archiveEvents := fanOutEvents(ctx, events)

	var indexer *semantic.Indexer
	if cfg.SemanticIndexingEnabled() {
		indexer, err = semantic.NewIndexer(st, cfg.QdrantURL, cfg.QdrantCollection, cfg.VoyageAPIKey, log.With("component", "semantic"))
		if err != nil {
			log.Error("failed to initialize semantic indexer", "error", err)
			os.Exit(1)
		}
		go indexer.Watch(ctx, semanticEvents)
		log.Info("semantic indexing enabled", "qdrant_collection", cfg.QdrantCollection)
	} else {
		drain(ctx, semanticEvents)
	}

	var archiver *archive.Archiver
	if cfg.ArtifactArchivingEnabled() {
		client := archive.NewClient(cfg.ArtifactAPIURL)
		archiver = archive.NewArchiver(st, client, cfg.DocumentsDir, log.With("component", "archive"))
		go archiver.Watch(ctx, archiveEvents)
		log.Info("artifact archiving enabled", "artifact_api_url", cfg.ArtifactAPIURL)
	} else {
		drain(ctx, archiveEvents)
	}

	runOnce := func(runCtx context.Context) error {
		return runner.Run(runCtx, pipeline.Options{
			ChunkSize: cfg.ChunkSize,
			Limit:     uint64(cfg.Limit),
			Strategy:  pipeline.InterleavedDeferred,
			Events:    events,
		})
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	switch cfg.WorkerMode {
	case "run-once":
		log.Info("running pipeline once")
		if err := runOnce(sigCtx); err != nil {
			log.Error("pipeline run failed", "error", err)
			os.Exit(1)
		}
		log.Info("pipeline run complete")
		return
	default:
		scheduler, err := trigger.NewScheduler(cfg.RedisURL, 1, runOnce, log.With("component", "trigger"))
		if err != nil {
			log.Error("failed to initialize trigger scheduler", "error", err)
			os.Exit(1)
		}
		if err := scheduler.Start(sigCtx, cfg.TriggerCronSpec); err != nil {
			log.Error("failed to start trigger scheduler", "error", err)
			os.Exit(1)
		}
		log.Info("worker ready, waiting for triggers")

		<-sigCtx.Done()
		log.Info("shutdown signal received, stopping scheduler")
		if err := scheduler.Stop(); err != nil {
			log.Error("error stopping scheduler", "error", err)
		}
	}

	// Give the downstream watchers a moment to drain in-flight uploads
	// before the process exits.
	time.Sleep(200 * time.Millisecond)
	cancel()
	log.Info("shutdown complete")
}

// buildRegistry wires every configured backend adapter: Tesseract always,
// Groq/Gemini vision backends when their API keys are set, Whisper for
// audio/video, and one CustomBackend per methods.<name> override.
func buildRegistry(cfg *config.Config, log *logging.Logger) *backend.Registry {
	registry := backend.NewRegistry()

	registry.RegisterOcr(backend.NewTesseractBackend(cfg.TesseractPath))

	if cfg.GroqAPIKey != "" {
		registry.RegisterOcr(backend.NewGroqVisionBackend(cfg.GroqAPIKey, cfg.GroqModel))
	}
	if cfg.GeminiAPIKey != "" {
		registry.RegisterOcr(backend.NewGeminiVisionBackend(cfg.GeminiAPIKey, cfg.GeminiModel))
	}

	registry.RegisterWhisper(backend.NewWhisperBackend("", ""))

	for name, custom := range cfg.CustomBackends {
		granularity := backend.GranularityDocument
		if custom.Granularity == config.GranularityPage {
			granularity = backend.GranularityPage
		}
		registry.RegisterCustom(name, backend.NewCustomBackend(backend.CustomBackendSpec{
			Name:        name,
			Command:     custom.Command,
			Args:        custom.Args,
			Mimetypes:   custom.Mimetypes,
			Granularity: granularity,
			Stdout:      custom.Stdout,
			OutputFile:  custom.OutputFile,
		}))
	}

	log.Info("backend registry built", "backends", len(registry.All()))
	return registry
}

// annotatorsByMethod maps a name from the cfg.Methods list to the annotator it
// activates, beyond the always-on text-extraction/OCR core stages.
func annotatorsByMethod(cfg *config.Config, st store.Store) map[string]annotate.Annotator {
	return map[string]annotate.Annotator{
		"date_detection": annotate.NewDateDetectionAnnotator(st),
		"ner_extraction": annotate.NewNerExtractionAnnotator(st),
		"url_extraction": annotate.NewUrlExtractionAnnotator(st),
		"llm_summary":    annotate.NewLlmSummaryAnnotator(st, cfg.OpenRouterAPIKey, cfg.LLMModel),
	}
}

// buildRunner assembles the ordered stage list: text extraction and OCR are
// always present; any method name in cfg.Methods beyond "ocr" that matches a
// known annotator activates that annotator's Stage.
func buildRunner(cfg *config.Config, st store.Store, registry *backend.Registry, log *logging.Logger) *pipeline.Runner {
	extraction := stages.NewTextExtractionStage(st, cfg.DocumentsDir, cfg.PdfinfoPath, cfg.PdftotextPath, cfg.PdftoppmPath, cfg.Workers, log.With("stage", "text_extraction"))
	ocr := stages.NewOCRStage(st, registry, cfg.OCRBackends, cfg.DocumentsDir, cfg.PdfinfoPath, cfg.PdftotextPath, cfg.PdftoppmPath, cfg.Workers, cfg.RetryIntervalHours, log.With("stage", "ocr"))

	runnerStages := []pipeline.Stage{extraction, ocr}

	available := annotatorsByMethod(cfg, st)
	for _, method := range cfg.Methods {
		name := strings.ToLower(strings.TrimSpace(method))
		if name == "" || name == "ocr" {
			continue
		}
		a, ok := available[name]
		if !ok {
			log.Warn("configured method has no matching annotator, skipping", "method", name)
			continue
		}
		runnerStages = append(runnerStages, annotate.NewStage(st, a, cfg.RetryIntervalHours, cfg.Workers, log.With("stage", name)))
	}

	return pipeline.NewRunner(log, runnerStages...)
}

// fanOutEvents relays every event from in to two unbuffered output channels
// so the semantic indexer and artifact archiver can each watch the full
// event stream. Each event is sent to a and then to b, so a consumer that is
// slow to receive on a delays delivery on b. Closed when ctx is cancelled or
// in is drained.
func fanOutEvents(ctx context.Context, in <-chan pipeline.Event) (<-chan pipeline.Event, <-chan pipeline.Event) {
	a := make(chan pipeline.Event)
	b := make(chan pipeline.Event)
	go func() {
		defer close(a)
		defer close(b)
		for {
			select {
			case e, ok := <-in:
				if !ok {
					return
				}
				pipeline.Emit(ctx, a, e)
				pipeline.Emit(ctx, b, e)
			case <-ctx.Done():
				return
			}
		}
	}()
	return a, b
}

// drain discards events on ch so a disabled downstream consumer's channel
// doesn't fill and block fanOutEvents's send.
func drain(ctx context.Context, ch <-chan pipeline.Event) {
	go func() {
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
