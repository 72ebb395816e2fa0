// Package server provides the public entry point for initializing the
// chatclerk server.
//
// It wires the session store, escalation gate, backends, pipeline,
// validator, and transports into one http.Handler, so deployments can
// embed the bot instead of running the bundled binary:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/api"
	"github.com/chatclerk/chatclerk/internal/api/handlers"
	"github.com/chatclerk/chatclerk/internal/backend"
	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/internal/escalation"
	"github.com/chatclerk/chatclerk/internal/knowledge"
	"github.com/chatclerk/chatclerk/internal/ledger"
	"github.com/chatclerk/chatclerk/internal/messaging"
	"github.com/chatclerk/chatclerk/internal/notify"
	"github.com/chatclerk/chatclerk/internal/orchestrator"
	"github.com/chatclerk/chatclerk/internal/orders"
	"github.com/chatclerk/chatclerk/internal/pipeline"
	"github.com/chatclerk/chatclerk/internal/sessions"
	"github.com/chatclerk/chatclerk/internal/telemetry"
	"github.com/chatclerk/chatclerk/internal/validator"
	"github.com/chatclerk/chatclerk/pkg/contracts"
)

// Server holds the initialized chatclerk components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Sessions is the live session store, exposed for embedders that
	// want their own introspection surface.
	Sessions *sessions.Store

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes the server from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store := sessions.New(
		sessions.WithTTL(cfg.Sessions.TTL),
		sessions.WithMaxSessions(cfg.Sessions.MaxSessions),
	)
	gate := escalation.NewGate(cfg.Gate.EscalationKeywords, cfg.Gate.RestartPhrases)
	esclog := escalation.NewLog()
	log.Info().
		Dur("ttl", cfg.Sessions.TTL).
		Int("max_sessions", cfg.Sessions.MaxSessions).
		Msg("Session store initialized")

	messenger := messaging.New(cfg.Messaging)

	var notifyDrivers []notify.Driver
	if cfg.Support.Number != "" {
		notifyDrivers = append(notifyDrivers, notify.NewChatDriver(messenger, cfg.Support.Number))
	}
	if cfg.Support.WebhookURL != "" {
		notifyDrivers = append(notifyDrivers, notify.NewWebhookDriver(cfg.Support))
	}
	notifier := notify.NewService(notifyDrivers...)

	orderLedger := ledger.New(cfg.Ledger)
	guard := orders.NewGuard(store, orderLedger, notifier, cfg.Replies)

	var kb *knowledge.Base
	if cfg.Knowledge.EmbeddingAPIKey != "" {
		embedder := knowledge.NewOpenAIEmbedder(
			cfg.Knowledge.EmbeddingAPIKey,
			cfg.Knowledge.EmbeddingModel,
			knowledge.WithEndpoint(cfg.Knowledge.EmbeddingEndpoint),
		)
		kb = knowledge.NewBase(embedder, knowledge.NewStore(), cfg.Knowledge)
		log.Info().Str("model", cfg.Knowledge.EmbeddingModel).Msg("Knowledge base initialized")
	} else {
		log.Warn().Msg("Knowledge base disabled, no embedding API key")
	}

	primary := backend.New("primary", cfg.Backends.Primary)
	fallback := backend.New("fallback", cfg.Backends.Fallback)
	log.Info().
		Str("primary", cfg.Backends.Primary.Model).
		Str("fallback", cfg.Backends.Fallback.Model).
		Msg("Reasoning backends initialized")

	var pipelineKB contracts.KnowledgeBase
	if kb != nil {
		pipelineKB = kb
	}
	pipe := pipeline.New(primary, fallback, pipelineKB, guard, cfg.Knowledge.TopK, cfg.Replies.BackendUnavailable)
	reviewer := validator.New(fallback, cfg.Validator)

	orch := orchestrator.New(store, gate, esclog, notifier, pipe, reviewer, cfg)

	h := handlers.New(orch, store, esclog, messenger, messenger, kb)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Sessions:     store,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
