package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vantagesec/socqa/internal/config"
	"github.com/vantagesec/socqa/internal/database"
	"github.com/vantagesec/socqa/internal/openai"
	"github.com/vantagesec/socqa/internal/repository"
	"github.com/vantagesec/socqa/internal/service"
	"github.com/vantagesec/socqa/internal/splunk"
	"github.com/vantagesec/socqa/internal/telemetry"
)

// app bundles the dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	chunks    *repository.ChunkRepository
	watermark *repository.WatermarkRepository
	runs      *repository.RunRepository
}

// newApp loads config, connects to the database, and optionally runs
// migrations. The returned cleanup closes the pool.
func newApp(ctx context.Context, migrateFirst bool) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if migrateFirst {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Println("connected to database")

	return &app{
		cfg:       cfg,
		pool:      pool,
		chunks:    repository.NewChunkRepository(pool),
		watermark: repository.NewWatermarkRepository(pool),
		runs:      repository.NewRunRepository(pool),
	}, pool.Close, nil
}

// initTelemetry initializes Sentry tracing when SENTRY_DSN is set.
// Returns a flush function safe to defer either way.
func initTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return func() {}
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}

// newOpenAIClient builds the embedding/completion client from config.
func (a *app) newOpenAIClient() (*openai.Client, error) {
	if !a.cfg.HasOpenAI() {
		return nil, fmt.Errorf("SOCQA_OPENAI_API_KEY is required")
	}
	return openai.NewClientWithConfig(openai.Config{
		APIKey:              a.cfg.OpenAIAPIKey,
		BaseURL:             a.cfg.OpenAIBaseURL,
		EmbeddingModel:      a.cfg.EmbeddingModel,
		EmbeddingDimensions: a.cfg.EmbeddingDimensions,
		CompletionModel:     a.cfg.LLMModel,
	}), nil
}

// newPipeline wires the full QA pass: Splunk source and sink, the
// retriever and generator, and run state.
func (a *app) newPipeline() (*service.Pipeline, error) {
	if !a.cfg.HasSplunk() {
		return nil, fmt.Errorf("SOCQA_SPLUNK_API_URL and SOCQA_SPLUNK_SEARCH_TOKEN are required")
	}
	if a.cfg.SplunkHECURL == "" || a.cfg.SplunkHECToken == "" {
		return nil, fmt.Errorf("SOCQA_SPLUNK_HEC_URL and SOCQA_SPLUNK_HEC_TOKEN are required")
	}

	ai, err := a.newOpenAIClient()
	if err != nil {
		return nil, err
	}

	source := splunk.NewSource(splunk.SourceConfig{
		APIURL:    a.cfg.SplunkAPIURL,
		Token:     a.cfg.SplunkSearchToken,
		Namespace: a.cfg.SplunkNamespace,
		SSLVerify: a.cfg.SplunkSSLVerify,
	})

	sink := splunk.NewHECSink(splunk.HECConfig{
		URL:       a.cfg.SplunkHECURL,
		Token:     a.cfg.SplunkHECToken,
		Index:     a.cfg.SplunkQAIndex,
		SSLVerify: a.cfg.SplunkSSLVerify,
	})

	retriever := service.NewRetriever(a.chunks, ai, service.RetrieverConfig{
		TopK:            a.cfg.TopK,
		SimilarityFloor: a.cfg.SimilarityFloor,
	})

	generator, err := service.NewGenerator(ai, service.GeneratorConfig{
		Model:       ai.Model(),
		Temperature: a.cfg.LLMTemperature,
		Timeout:     a.cfg.LLMTimeout(),
		PromptPath:  a.cfg.PromptPath,
	})
	if err != nil {
		return nil, err
	}

	return service.NewPipeline(source, retriever, generator, sink, a.watermark, a.runs, a.chunks, service.PipelineConfig{
		Lookback: a.cfg.Lookback(),
	}), nil
}

// newIngestor wires the knowledge ingestor.
func (a *app) newIngestor() (*service.Ingestor, error) {
	ai, err := a.newOpenAIClient()
	if err != nil {
		return nil, err
	}
	return service.NewIngestor(a.chunks, ai, service.IngestorConfig{
		EmbeddingModel: a.cfg.EmbeddingModel,
		Dimensions:     a.cfg.EmbeddingDimensions,
		LockDir:        a.cfg.LockDir,
	}), nil
}
