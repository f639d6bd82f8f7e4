// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chatbot provides the conversational assistant service.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the interaction store, retrieval
// classification, the dialogue state machine, checkpoint persistence,
// and observability infrastructure.
//
// # Usage
//
//	cfg := chatbot.Config{Port: 12310}
//	svc, err := chatbot.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

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

	"github.com/paullosergio/chatbot/services/chatbot/datatypes"
	"github.com/paullosergio/chatbot/services/chatbot/dialogue"
	"github.com/paullosergio/chatbot/services/chatbot/observability"
	"github.com/paullosergio/chatbot/services/chatbot/retrieval"
	"github.com/paullosergio/chatbot/services/chatbot/routes"
	"github.com/paullosergio/chatbot/services/chatbot/services"
	badgerstore "github.com/paullosergio/chatbot/services/chatbot/storage/badger"
	"github.com/paullosergio/chatbot/services/chatbot/store"
	"github.com/paullosergio/chatbot/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the chatbot service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds chatbot service configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or
// programmatically for testing. All fields have sensible defaults.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port and LLM backend
//	cfg := Config{
//	    Port:       8080,
//	    LLMBackend: "openai",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "openai", "anthropic", "ollama"
	// Default: "ollama"
	LLMBackend string

	// EmbeddingBackend specifies how question vectors are computed.
	// Valid values: "http" (sidecar embedding service), "openai", "ollama"
	// Default: "http"
	EmbeddingBackend string

	// WeaviateURL is the Weaviate vector database URL.
	// If empty, interactions are held in an in-process store and lost
	// on restart.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// CheckpointPath is the directory for thread checkpoint files.
	// If empty, checkpoints are held in memory and lost on restart.
	CheckpointPath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "chatbot-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.EmbeddingBackend == "" {
		cfg.EmbeddingBackend = "http"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "chatbot-otel-collector:4317"
	}
	cfg.EnableMetrics = true

	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration
//   - router: Gin HTTP engine
//   - turns: The turn processing pipeline
//   - checkpointDB: BadgerDB handle for thread checkpoints
//   - tracerCleanup: Function to shutdown the tracer on exit
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	turns         *services.TurnService
	checkpointDB  *badgerstore.DB
	tracerCleanup func(context.Context)
}

// New creates a new chatbot Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the embedding provider and interaction store
//  5. Opens the checkpoint database
//  6. Creates the LLM client and wires the turn pipeline
//  7. Sets up HTTP routes
//
// A missing Weaviate URL is not fatal: the service falls back to an
// in-process interaction store, which is useful for development and
// testing but loses data on restart.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run chatbot service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider
//   - Network is available for external service connections
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.TurnMetrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for turn processing")
	}

	embedder, err := s.initEmbedder()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	interactions, knowledge, err := s.initStores(embedder)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}

	if err := s.initCheckpointDB(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	llmClient, err := s.initLLMClient()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	checkpoints := dialogue.NewCheckpointStore(s.checkpointDB)
	generator := services.NewLLMGenerator(llmClient, llm.GenerationParams{})
	machine := dialogue.NewMachine(checkpoints, generator)
	policy := retrieval.NewPolicy(interactions, retrieval.DefaultPolicyConfig())

	s.turns = services.NewTurnService(interactions, knowledge, policy, machine, checkpoints, metrics)

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting chatbot server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
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
		resource.WithAttributes(semconv.ServiceNameKey.String("chatbot-service")))
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

// initEmbedder creates the embedding provider for question vectors.
func (s *service) initEmbedder() (store.EmbeddingProvider, error) {
	switch s.config.EmbeddingBackend {
	case "http":
		slog.Info("Using sidecar embedding service")
		return store.NewHTTPEmbedder(), nil
	case "openai":
		slog.Info("Using OpenAI embedding backend")
		return llm.NewOpenAIEmbedder()
	case "ollama":
		slog.Info("Using Ollama embedding backend")
		return llm.NewOllamaEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s", s.config.EmbeddingBackend)
	}
}

// initStores creates the interaction store and the knowledge store.
//
// # Description
//
// Connects to Weaviate when a URL is configured and ensures the
// Interaction and Knowledge classes exist; both stores then share one
// client. Without a URL the service runs on in-process stores, which
// are not durable.
func (s *service) initStores(embedder store.EmbeddingProvider) (store.InteractionStore, store.KnowledgeStore, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, using in-process stores")
		return store.NewMemoryInteractionStore(embedder), store.NewMemoryKnowledgeStore(embedder), nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := datatypes.EnsureInteractionSchema(context.Background(), client); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure Weaviate schema: %w", err)
	}
	if err := datatypes.EnsureKnowledgeSchema(context.Background(), client); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure Weaviate schema: %w", err)
	}
	slog.Info("Weaviate client initialized", "url", weaviateURL)

	return store.NewWeaviateInteractionStore(client, embedder),
		store.NewWeaviateKnowledgeStore(client, embedder), nil
}

// initCheckpointDB opens the BadgerDB holding thread checkpoints.
func (s *service) initCheckpointDB() error {
	cfg := badgerstore.DefaultConfig()
	if s.config.CheckpointPath == "" {
		slog.Warn("Checkpoint path not configured, thread state will not survive restarts")
		cfg = badgerstore.InMemoryConfig()
	} else {
		cfg.Path = s.config.CheckpointPath
	}

	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		return err
	}
	s.checkpointDB = db
	return nil
}

// initLLMClient creates the LLM provider client.
func (s *service) initLLMClient() (llm.LLMClient, error) {
	switch s.config.LLMBackend {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "anthropic":
		slog.Info("Using Anthropic LLM backend")
		return llm.NewAnthropicClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		return llm.NewOllamaClient()
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("chatbot-service"))

	routes.SetupRoutes(s.router, s.turns, s.config.EnableMetrics)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.checkpointDB != nil {
		if err := s.checkpointDB.Close(); err != nil {
			slog.Warn("Checkpoint database close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
