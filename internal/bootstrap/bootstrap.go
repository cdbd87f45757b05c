package bootstrap

import (
	"context"
	"fmt"

	"clone-call-server/internal/config"
	"clone-call-server/internal/observability"
	"clone-call-server/internal/store"
	"clone-call-server/internal/tasks"

	callHandler "clone-call-server/internal/callflow/handler"
	callProcessor "clone-call-server/internal/callflow/processor"
	"clone-call-server/internal/clients/elevenlabs"
	"clone-call-server/internal/clients/filestore"
	"clone-call-server/internal/jobs/scheduler"
	"clone-call-server/internal/jobs/scheduler/jobs"
	cloneHandler "clone-call-server/internal/voiceclone/handler"
	cloneProcessor "clone-call-server/internal/voiceclone/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Clients
	ElevenLabs *elevenlabs.Client

	// Processors
	CloneProcessor *cloneProcessor.CloneProcessor
	CallProcessor  *callProcessor.CallProcessor

	// Handlers
	CallHandler  callHandler.Handler
	CloneHandler cloneHandler.Handler

	// Background
	TaskRegistry *tasks.Registry
	Scheduler    *scheduler.Scheduler
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := deps.Store.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	deps.ElevenLabs, err = elevenlabs.NewClient(cfg.Voice.ElevenLabsAPIKey, cfg.Voice.ElevenLabsBaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice synthesis client: %w", err)
	}
	sampleStore := filestore.New(cfg.Voice.SampleDir)

	deps.TaskRegistry = tasks.NewRegistry(tasks.DefaultRetention, logger)

	deps.CloneProcessor = cloneProcessor.New(
		&deps.Store,
		deps.ElevenLabs,
		sampleStore,
		cloneProcessor.Config{TTL: cfg.Voice.CloneTTL},
		logger,
	)

	deps.CallProcessor = callProcessor.New(
		&deps.Store,
		deps.CloneProcessor,
		deps.ElevenLabs,
		deps.TaskRegistry,
		callProcessor.Config{
			GreetingMessage:     cfg.Call.GreetingMessage,
			ApologyMessage:      cfg.Call.ApologyMessage,
			HoldMusicEnabled:    cfg.Call.HoldMusicEnabled,
			HoldMusicURL:        cfg.Call.HoldMusicURL,
			PollInterval:        cfg.Call.PollInterval,
			MaxCloneWait:        cfg.Voice.MaxCloneWait,
			AgentID:             cfg.Voice.AgentID,
			AgentPhoneNumberID:  cfg.Voice.AgentPhoneNumberID,
			AutoTransferEnabled: cfg.Voice.AutoTransferEnabled,
		},
		logger,
	)

	deps.CallHandler = callHandler.New(
		deps.CallProcessor,
		deps.ElevenLabs,
		&deps.Store,
		callHandler.Config{
			PublicURL:          cfg.Server.PublicURL,
			ConversationWSSURL: cfg.Voice.ConversationWSSURL,
			MaxPollAttempts:    cfg.Call.MaxPollAttempts,
		},
		logger,
	)
	deps.CloneHandler = cloneHandler.New(deps.CloneProcessor, logger)

	deps.Scheduler = scheduler.New(logger)
	deps.Scheduler.Register(jobs.NewCloneCleanupJob(deps.CloneProcessor, logger, 0))

	return deps, nil
}
