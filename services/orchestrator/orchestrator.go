// Copyright (C) 2025 Afyaflow Health (eng@afyaflow.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the core conversational service for
// Afyaflow.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the tool-calling agent loop, triage, vector
// retrieval, session persistence, and observability infrastructure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

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

	"github.com/afyaflow/afyaflow/services/llm"
	"github.com/afyaflow/afyaflow/services/orchestrator/agent"
	"github.com/afyaflow/afyaflow/services/orchestrator/datatypes"
	"github.com/afyaflow/afyaflow/services/orchestrator/interaction"
	"github.com/afyaflow/afyaflow/services/orchestrator/observability"
	"github.com/afyaflow/afyaflow/services/orchestrator/retrieval"
	"github.com/afyaflow/afyaflow/services/orchestrator/routes"
	"github.com/afyaflow/afyaflow/services/orchestrator/session"
	"github.com/afyaflow/afyaflow/services/orchestrator/tools"
	"github.com/afyaflow/afyaflow/services/orchestrator/triage"
	"github.com/afyaflow/afyaflow/services/orchestrator/ttl"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
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

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values are
// populated from environment variables by cmd/orchestrator, or
// programmatically for testing. WeaviateURL and EmbeddingURL are required;
// everything else has a default or degrades a capability when empty.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the model provider.
	// Valid values: "local", "openai". Default: "local"
	LLMBackend string

	// WeaviateURL is the Weaviate vector database URL. Required.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// EmbeddingURL is the embedding service base URL. Required.
	EmbeddingURL string

	// FulfillmentURL is the fulfillment service base URL. When empty the
	// referral and order tools are not registered.
	FulfillmentURL string

	// ClassifierPath is the verified triage classifier binary. When empty
	// every triage request uses the fallback tier.
	ClassifierPath string

	// BadgerPath is the session database directory. Default:
	// "./data/sessions"
	BadgerPath string

	// SessionTTL is the idle lifetime of a session. Default: 24 hours.
	SessionTTL time.Duration

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "afyaflow-otel-collector:4317"
	OTelEndpoint string

	// MaintenanceInterval is how often the retention scheduler runs.
	// Default: 1 hour.
	MaintenanceInterval time.Duration

	// InteractionRetention is how long interaction records are kept.
	// Default: 90 days.
	InteractionRetention time.Duration

	// MaxToolIterations bounds the agent loop. Default: 8.
	MaxToolIterations int
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "local"
	}
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "./data/sessions"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "afyaflow-otel-collector:4317"
	}
	if cfg.MaintenanceInterval == 0 {
		cfg.MaintenanceInterval = 1 * time.Hour
	}
	if cfg.InteractionRetention == 0 {
		cfg.InteractionRetention = ttl.DefaultRetention
	}
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = agent.DefaultMaxIterations
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	router         *gin.Engine
	weaviateClient *weaviate.Client
	sessionDB      *badger.DB
	store          session.Store
	llmClient      llm.ChatClient
	scheduler      *ttl.Scheduler
	tracerCleanup  func(context.Context)
}

var _ Service = (*service)(nil)

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies configuration defaults
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Connects Weaviate and ensures the schema
//  4. Opens the Badger session store
//  5. Creates the model client, triage service, retrieval engine,
//     tool registry, and agent loop
//  6. Starts the retention scheduler and registers HTTP routes
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service.
//   - error: Non-nil if any required component fails to initialize.
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	metrics := observability.InitMetrics()

	if err := s.initWeaviate(); err != nil {
		s.cleanup()
		return nil, err
	}

	db, err := session.OpenDB(session.DefaultDBConfig(s.config.BadgerPath))
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	s.sessionDB = db
	s.store = session.NewBadgerStore(db, s.config.SessionTTL)

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}

	embedder, err := retrieval.NewHTTPEmbedder(s.config.EmbeddingURL)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	retrievalEngine := retrieval.NewEngine(embedder, retrieval.NewWeaviateSearcher(s.weaviateClient)).
		WithMetrics(metrics)
	ingestor := retrieval.NewIngestor(embedder, s.weaviateClient)

	triageSvc := triage.NewService(
		triage.NewVerifiedClassifier(s.config.ClassifierPath, nil),
		triage.NewWeaviateProfileResolver(s.weaviateClient),
	)

	var fulfillment *tools.FulfillmentClient
	if s.config.FulfillmentURL != "" {
		fulfillment = tools.NewFulfillmentClient(s.config.FulfillmentURL)
	} else {
		slog.Warn("Fulfillment URL not configured, referral and order tools disabled")
	}

	registry := tools.NewRegistry()
	tools.RegisterStandardTools(registry, tools.Collaborators{
		Assessor:    triageSvc,
		Searcher:    retrievalEngine,
		Fulfillment: fulfillment,
		Providers:   tools.NewWeaviateProviderFinder(s.weaviateClient),
	})
	executor := tools.NewExecutor(registry, nil)

	agentEngine := agent.NewEngine(s.llmClient, registry, executor, agent.Options{
		MaxIterations: s.config.MaxToolIterations,
		Metrics:       metrics,
	})

	s.scheduler = ttl.NewScheduler(
		ttl.SchedulerConfig{Interval: s.config.MaintenanceInterval},
		ttl.NewBadgerGC(db),
		ttl.NewInteractionSweep(s.weaviateClient, ttl.SystemClock{}, s.config.InteractionRetention),
	)
	if err := s.scheduler.Start(context.Background()); err != nil {
		slog.Warn("Maintenance scheduler failed to start", "error", err)
	}

	s.initRouter(routes.Deps{
		Store:     s.store,
		Agent:     agentEngine,
		Recorder:  interaction.NewWeaviateRecorder(s.weaviateClient),
		Triage:    triageSvc,
		Retrieval: retrievalEngine,
		Ingestor:  ingestor,
		Metrics:   metrics,
	})

	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting orchestrator server", "port", s.config.Port)

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
//   - Uses an insecure gRPC connection (appropriate for internal networks).
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
		resource.WithAttributes(semconv.ServiceNameKey.String("afyaflow-orchestrator")))
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

// initWeaviate connects the Weaviate client and ensures the schema exists.
// Unlike tracing, the knowledge base is not optional: the assistant has no
// grounded answers without it.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		return fmt.Errorf("WEAVIATE_SERVICE_URL is required")
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

	datatypes.EnsureSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)

	return nil
}

// initLLMClient creates the model client for the configured backend.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI model backend")
	case "local":
		s.llmClient, err = llm.NewLocalClient()
		slog.Info("Using local model backend")
	default:
		slog.Warn("Unknown model backend, defaulting to local", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewLocalClient()
	}

	return err
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter(deps routes.Deps) {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("afyaflow-orchestrator"))

	routes.SetupRoutes(s.router, deps)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.sessionDB != nil {
		if err := s.sessionDB.Close(); err != nil {
			slog.Warn("Session database close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
