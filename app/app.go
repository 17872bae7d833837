// Package app wires configuration into stores, providers and services. It is
// shared by the server and the maintenance commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paperlens-backend/chunker"
	"paperlens-backend/config"
	"paperlens-backend/embedding"
	"paperlens-backend/llm"
	"paperlens-backend/prompts"
	"paperlens-backend/repository"
	"paperlens-backend/repository/memory"
	"paperlens-backend/retrieval"
	"paperlens-backend/service"
	"paperlens-backend/storage"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultOllamaModel          = "llama3.1"
	defaultGeminiEmbeddingModel = "text-embedding-004"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
)

// App holds the wired services
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Storage    storage.Storage
	Tasks      *service.TaskManager
	Documents  *service.DocumentService
	Extraction *service.ExtractionService

	closers []func() error
}

type stores struct {
	documents   service.DocumentStore
	tasks       service.TaskStore
	results     service.ResultStore
	collections service.CollectionStore
	vectors     embedding.VectorStore
}

// New builds every component named by cfg. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}

	a.Storage, err = storage.New(ctx, storage.Config{
		Type:         storage.Type(cfg.StorageType),
		LocalPath:    cfg.StoragePath,
		S3Bucket:     cfg.S3Bucket,
		S3Region:     cfg.AWSRegion,
		AWSAccessKey: cfg.AWSAccessKey,
		AWSSecretKey: cfg.AWSSecretKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var gemini *genai.Client
	if cfg.LLMProvider == "gemini" || cfg.EmbeddingProvider == "gemini" {
		if cfg.GeminiAPIKey == "" {
			a.Logger.Warn("GEMINI_API_KEY not set")
		}
		gemini, err = genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return fmt.Errorf("failed to initialize Gemini: %w", err)
		}
		a.closers = append(a.closers, gemini.Close)
	}

	provider, err := a.provider(gemini)
	if err != nil {
		return err
	}
	embedder, err := a.embedder(gemini)
	if err != nil {
		return err
	}

	store, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	chunks := chunker.New(chunker.WithTargetSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	if err := chunks.Validate(); err != nil {
		return err
	}

	indexer := embedding.NewIndexer(embedder, st.vectors)
	retriever := retrieval.New(embedder, indexer,
		retrieval.WithDefaultK(cfg.RetrievalTopK),
		retrieval.WithMinSimilarity(cfg.RetrievalMinSimilarity),
	)
	orchestrator := service.NewOrchestrator(provider, store, retriever,
		service.WithModel(cfg.LLMModel),
		service.WithTopK(cfg.RetrievalTopK),
		service.WithOrchestratorLogger(a.Logger),
	)

	a.Tasks = service.NewTaskManager(st.tasks,
		service.WithWorkers(cfg.TaskWorkers),
		service.WithQueueSize(cfg.TaskQueueSize),
		service.WithSweepInterval(cfg.TaskSweep),
		service.WithTaskLogger(a.Logger),
	)
	a.Documents = service.NewDocumentService(
		service.DocWithDocumentStore(st.documents),
		service.DocWithResultStore(st.results),
		service.DocWithTaskManager(a.Tasks),
		service.DocWithIndexer(indexer),
		service.DocWithChunker(chunks),
		service.DocWithOrchestrator(orchestrator),
		service.DocWithLogger(a.Logger),
	)
	a.Extraction = service.NewExtractionService(
		service.ExtractWithDocumentStore(st.documents),
		service.ExtractWithResultStore(st.results),
		service.ExtractWithCollectionStore(st.collections),
		service.ExtractWithTaskManager(a.Tasks),
		service.ExtractWithOrchestrator(orchestrator),
		service.ExtractWithRetriever(retriever),
		service.ExtractWithLogger(a.Logger),
	)
	return nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	if a.Config.StoreBackend == "memory" {
		a.Logger.Warn("using in-memory stores, data is lost on exit")
		return &stores{
			documents:   memory.NewDocumentStore(),
			tasks:       memory.NewTaskStore(),
			results:     memory.NewResultStore(),
			collections: memory.NewCollectionStore(),
			vectors:     embedding.NewMemoryStore(),
		}, nil
	}

	pool, err := repository.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := repository.EnsureSchema(ctx, pool, a.Config.EmbeddingDimension); err != nil {
		return nil, err
	}
	a.Logger.Info("postgres connection established with pgvector support")
	return &stores{
		documents:   repository.NewDocumentRepository(pool),
		tasks:       repository.NewTaskRepository(pool),
		results:     repository.NewResultRepository(pool),
		collections: repository.NewCollectionRepository(pool),
		vectors:     repository.NewChunkRepository(pool),
	}, nil
}

func (a *App) provider(gemini *genai.Client) (llm.Provider, error) {
	cfg := a.Config
	var base llm.Provider
	switch cfg.LLMProvider {
	case "gemini":
		base = llm.NewGeminiProvider(gemini, cfg.LLMModel)
	case "ollama":
		model := cfg.LLMModel
		if model == "" {
			model = defaultOllamaModel
		}
		p, err := llm.NewOllamaProvider(cfg.OllamaHost, model)
		if err != nil {
			return nil, err
		}
		base = p
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	return llm.NewResilientProvider(base,
		llm.WithRetryDelay(cfg.LLMRetryDelay),
		llm.WithFallbackModel(cfg.LLMFallbackModel),
		llm.WithRequestsPerMinute(cfg.LLMRequestsPerMinute),
	), nil
}

func (a *App) embedder(gemini *genai.Client) (embedding.Embedder, error) {
	cfg := a.Config
	model := cfg.EmbeddingModel
	switch cfg.EmbeddingProvider {
	case "hash", "":
		return embedding.NewHashEmbedder(cfg.EmbeddingDimension), nil
	case "gemini":
		if model == "" {
			model = defaultGeminiEmbeddingModel
		}
		return embedding.NewGeminiEmbedder(gemini, model, cfg.EmbeddingDimension), nil
	case "ollama":
		if model == "" {
			model = defaultOllamaEmbeddingModel
		}
		return embedding.NewOllamaEmbedder(cfg.OllamaHost, model, cfg.EmbeddingDimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
