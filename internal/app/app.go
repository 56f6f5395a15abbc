package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"askdoc/features/ask"
	"askdoc/features/document"
	"askdoc/features/stats"
	"askdoc/internal/adapter/gemini"
	"askdoc/internal/agent"
	"askdoc/internal/config"
	"askdoc/internal/extract"
	"askdoc/internal/jobs"
	"askdoc/internal/middleware"
	"askdoc/internal/rerank"
	"askdoc/internal/retrieval"
	"askdoc/internal/synthesize"
	"askdoc/internal/worker"
)

// TaskPublisher matches the nsq producer's publish method.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// LLM combines the whole-response and streaming generation
// capabilities the pipeline uses.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) (synthesize.TokenStream, error)
}

// Options overrides selected adapters. Tests use it to stand in for
// the Gemini-backed components.
type Options struct {
	Embedder retrieval.Embedder
	LLM      LLM
}

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	IngestConsumer  *worker.IngestConsumer

	addr string
}

func New(
	cfg *config.Config,
	db *sql.DB,
	index retrieval.VectorIndex,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {

	// Adapters: Gemini, unless overridden
	var embedder retrieval.Embedder
	var generator LLM
	if opts != nil {
		embedder = opts.Embedder
		generator = opts.LLM
	}
	if embedder == nil || generator == nil {
		geminiClient := gemini.NewClient(cfg.GeminiAPIKey)
		if embedder == nil {
			embedder = gemini.NewEmbedder(geminiClient, cfg.GeminiEmbedModel, cfg.EmbeddingDim)
		}
		if generator == nil {
			generator = gemini.NewGenerator(geminiClient, cfg.GeminiModel)
		}
	}

	// Retrieval pipeline
	registry := jobs.NewRegistry()

	queryLogger, err := retrieval.NewFileQueryLogger("data/logs/query.log")
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(embedder, index, registry,
		cfg.ChunkMaxChars, cfg.ChunkOverlap, cfg.EmbedBatchSize).
		WithQueryLogger(queryLogger)

	reranker := rerank.New(generator,
		rerank.WithMaxFailureFraction(cfg.RerankFailureFraction),
		rerank.WithConcurrency(cfg.RerankConcurrency))

	synthesizer := synthesize.New(generator)

	// Feature: Ask
	askService := ask.NewService(func(sink func(agent.StageEvent)) ask.Orchestrator {
		return agent.New(retrievalService, generator, synthesizer,
			cfg.SearchTopK, cfg.LLMWeight,
			agent.WithReranker(reranker),
			agent.WithEventSink(sink))
	})
	askHandler := ask.NewHandler(askService)

	// Feature: Document
	docRepo := document.NewPostgresRepo(db)
	docService := document.NewService(docRepo, retrievalService, index, registry, extract.NewRegistry())
	if taskPub != nil {
		docService = docService.WithPublisher(taskPub)
	}
	docHandler := document.NewHandler(docService, registry, int(cfg.MaxUploadSizeMB))

	// Feature: Stats
	statsHandler := stats.NewHandler(docRepo, index, registry)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(docHandler.Create)))
	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(docHandler.Upload)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(docHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Delete)))

	mux.Handle("GET /jobs/latest", middleware.CorrelationID(enableCORS(docHandler.LatestJob)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(docHandler.GetJob)))

	mux.Handle("POST /ask", middleware.CorrelationID(enableCORS(askHandler.Ask)))
	mux.Handle("POST /ask/stream", middleware.CorrelationID(enableCORS(askHandler.AskStream)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))
	mux.Handle("POST /clear", middleware.CorrelationID(enableCORS(statsHandler.Clear)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker (Ingest Consumer) Setup
	ingestConsumer := worker.NewIngestConsumer(retrievalService, docRepo)

	return &App{
		Handler:         mux,
		DocumentService: docService,
		IngestConsumer:  ingestConsumer,
		addr:            fmt.Sprintf(":%d", cfg.ServerPort),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.addr,
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "addr", a.addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
