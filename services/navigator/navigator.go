// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package navigator provides the strategy-generation service.
//
// The navigator takes a member's insurance plan constraints and produces
// four compliance-reviewed strategies for reaching care, one per
// optimization axis. This package wires the pipeline stages, the durable
// stores, and the HTTP surface into one runnable service.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/llm"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/buffer"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/compliance"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/gather"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/generate"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/routes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/search"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/storage"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/workflow"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the navigator service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds navigator configuration options. Zero values use defaults
// applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310.
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "openai", "ollama". Default: "ollama".
	LLMBackend string

	// EmbedderBackend specifies the embedding provider.
	// Valid values: "openai", "http". Default: "http".
	EmbedderBackend string

	// WeaviateURL is the vector database URL. Required; the durable store
	// cannot run without it. Example: "http://localhost:8080".
	WeaviateURL string

	// SearchServiceURL enables the web-search context leg when set.
	// Requests degrade gracefully when it is empty or unreachable.
	SearchServiceURL string

	// BufferDBPath is the directory for the write-ahead buffer.
	// Default: "./data/buffer".
	BufferDBPath string

	// GuardrailBlocklistPath is the YAML phrase blocklist. Optional; an
	// empty path runs with no blocklist.
	GuardrailBlocklistPath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "navigator-otel-collector:4317".
	OTelEndpoint string

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// SweepInterval is how often the buffer sweeper runs. Default: 1h.
	SweepInterval time.Duration

	// BufferEntryTTL is the retention window for buffer entries.
	// Default: 24h.
	BufferEntryTTL time.Duration
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.EmbedderBackend == "" {
		cfg.EmbedderBackend = "http"
	}
	if cfg.BufferDBPath == "" {
		cfg.BufferDBPath = "./data/buffer"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "navigator-otel-collector:4317"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.BufferEntryTTL == 0 {
		cfg.BufferEntryTTL = 24 * time.Hour
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are read-only after New() returns.
type service struct {
	config         Config
	router         *gin.Engine
	llmClient      llm.LLMClient
	embedder       llm.Embedder
	weaviateClient *weaviate.Client
	bufferDB       *badger.DB
	buf            *buffer.Buffer
	processor      *buffer.Processor
	sweeper        *buffer.Sweeper
	guardrail      *compliance.Guardrail
	metrics        *observability.PipelineMetrics
	tracerCleanup  func(context.Context)
	gcDone         chan struct{}
}

// New creates a navigator Service from the given configuration.
//
// # Description
//
// Initialization order: tracing, metrics, vector store plus schema, buffer
// database, LLM and embedding clients, guardrail, pipeline, background
// workers, routes. The vector store is the only hard external dependency;
// search and guardrail are optional.
//
// # Outputs
//
//   - Service: Ready-to-run navigator service.
//   - error: Non-nil if any required component fails to initialize.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
		gcDone: make(chan struct{}),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.metrics = observability.NewPipelineMetrics()

	if err := s.initWeaviate(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	if err := s.initBuffer(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize buffer: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initEmbedder(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	if err := s.initGuardrail(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize guardrail: %w", err)
	}

	s.initPipelineAndRouter()
	s.startBackground()

	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting navigator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter over insecure gRPC,
// appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("navigator-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initWeaviate creates the vector store client and ensures the schema.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		return fmt.Errorf("WeaviateURL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}
	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	datatypes.EnsureWeaviateSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initBuffer opens the write-ahead buffer database.
func (s *service) initBuffer() error {
	db, err := buffer.OpenDB(buffer.DefaultDBConfig(s.config.BufferDBPath))
	if err != nil {
		return err
	}
	s.bufferDB = db
	s.buf = buffer.New(db)
	slog.Info("Buffer database opened", "path", s.config.BufferDBPath)
	return nil
}

// initLLMClient creates the generation backend.
func (s *service) initLLMClient() error {
	var err error
	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}
	return err
}

// initEmbedder creates the embedding backend.
func (s *service) initEmbedder() error {
	var err error
	switch s.config.EmbedderBackend {
	case "openai":
		s.embedder, err = llm.NewOpenAIEmbedder()
		slog.Info("Using OpenAI embedding backend")
	case "http":
		s.embedder, err = llm.NewHTTPEmbedder()
		slog.Info("Using HTTP sidecar embedding backend")
	default:
		slog.Warn("Unknown embedder backend, defaulting to http", "backend", s.config.EmbedderBackend)
		s.embedder, err = llm.NewHTTPEmbedder()
	}
	return err
}

// initGuardrail loads the phrase blocklist if configured.
func (s *service) initGuardrail() error {
	if s.config.GuardrailBlocklistPath == "" {
		slog.Warn("No guardrail blocklist configured, running without one")
		s.guardrail = compliance.NewStaticGuardrail(nil)
		return nil
	}
	g, err := compliance.NewGuardrail(s.config.GuardrailBlocklistPath)
	if err != nil {
		return err
	}
	s.guardrail = g
	return nil
}

// initPipelineAndRouter wires the stages and registers routes.
func (s *service) initPipelineAndRouter() {
	var searchClient search.Client
	if s.config.SearchServiceURL != "" {
		searchClient = search.NewSearxClientWithURL(s.config.SearchServiceURL)
	} else {
		slog.Warn("No search service configured, responses will be degraded")
	}

	gatherer := gather.NewGatherer(searchClient, s.weaviateClient, s.embedder, gather.Config{})
	generator := generate.NewGenerator(s.llmClient)
	validator := compliance.NewValidator(s.llmClient, s.guardrail)
	store := storage.NewDurableStore(s.weaviateClient, s.embedder, s.buf)

	pipeline := workflow.NewPipeline(gatherer, generator, validator, store, s.metrics)

	s.processor = buffer.NewProcessor(s.buf, store, buffer.ProcessorConfig{
		Metrics: s.metrics,
	})
	s.sweeper = buffer.NewSweeper(s.buf, buffer.SweeperConfig{
		Interval:     s.config.SweepInterval,
		CompletedTTL: s.config.BufferEntryTTL,
		StaleTTL:     s.config.BufferEntryTTL,
	})

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("navigator-service"))

	routes.SetupRoutes(s.router, s.weaviateClient, pipeline, store, s.buf,
		s.processor, s.sweeper, s.metrics)
}

// startBackground launches the processor, sweeper, and buffer GC.
func (s *service) startBackground() {
	s.processor.Start()
	s.sweeper.Start()
	go buffer.RunGC(s.bufferDB, buffer.DefaultDBConfig(s.config.BufferDBPath), s.gcDone)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.processor != nil {
		s.processor.Stop()
	}
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.gcDone != nil {
		close(s.gcDone)
		s.gcDone = nil
	}
	if s.guardrail != nil {
		if err := s.guardrail.Close(); err != nil {
			slog.Warn("Guardrail close error", "error", err)
		}
	}
	if s.bufferDB != nil {
		if err := s.bufferDB.Close(); err != nil {
			slog.Warn("Buffer database close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
