package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clone-call-server/internal/observability"
	"clone-call-server/internal/store"
)

// CallStore defines the database operations required by CallProcessor
type CallStore interface {
	CreateCallLog(ctx context.Context, params store.CreateCallLogParams) (store.CallLog, error)
	GetCallLogByCallID(ctx context.Context, callID string) (store.CallLog, error)
	CompleteCallLog(ctx context.Context, callID, voiceID string) (store.CallLog, error)
	FailCallLog(ctx context.Context, callID, errorMessage string) (store.CallLog, error)
	AppendCloneEvent(ctx context.Context, params store.AppendCloneEventParams) (store.CloneEvent, error)
}

// CloneCreator resolves or creates a cloned voice for a caller.
type CloneCreator interface {
	GetOrCreateClone(ctx context.Context, callerID string, sampleOverride []byte) (string, error)
}

// AgentCaller places an outbound voice-agent call with a voice override.
type AgentCaller interface {
	TriggerVoiceAgentCall(ctx context.Context, agentID, agentPhoneNumberID, phoneNumber, voiceID string, customVariables map[string]string) (string, error)
}

// TaskSpawner runs a named supervised background task.
type TaskSpawner interface {
	Spawn(name string, fn func(ctx context.Context) error) error
}

// Config holds call flow settings
type Config struct {
	GreetingMessage     string
	ApologyMessage      string
	HoldMusicEnabled    bool
	HoldMusicURL        string
	PollInterval        time.Duration
	MaxCloneWait        time.Duration
	AgentID             string
	AgentPhoneNumberID  string
	AutoTransferEnabled bool
}

// CallProcessor is the protocol-neutral call controller. Transport adapters
// hand it a CallContext and render the returned CallInstructions onto their
// own wire format.
type CallProcessor struct {
	store  CallStore
	clones CloneCreator
	agent  AgentCaller
	tasks  TaskSpawner
	config Config
	logger *observability.Logger
}

// New creates a new CallProcessor
func New(callStore CallStore, clones CloneCreator, agent AgentCaller, tasks TaskSpawner, config Config, logger *observability.Logger) *CallProcessor {
	return &CallProcessor{
		store:  callStore,
		clones: clones,
		agent:  agent,
		tasks:  tasks,
		config: config,
		logger: logger,
	}
}

// HandleInboundCall records the call, launches clone preparation in the
// background, and returns immediately with the greeting and first poll so
// the caller hears something within the webhook deadline.
func (p *CallProcessor) HandleInboundCall(ctx context.Context, call CallContext) CallInstructions {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_id", Value: call.CallID},
		observability.Field{Key: "caller_id", Value: call.CallerID},
		observability.Field{Key: "protocol", Value: call.Protocol},
	)
	p.logger.Info(ctx, "inbound call received")

	_, err := p.store.CreateCallLog(ctx, store.CreateCallLogParams{
		CallID:   call.CallID,
		CallerID: call.CallerID,
		Status:   store.CallStatusProcessing,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to record inbound call", err)
		return p.failedInstructions(call.CallID, p.config.ApologyMessage)
	}

	if err := p.tasks.Spawn("clone-"+call.CallID, func(taskCtx context.Context) error {
		return p.runCloneAndTransfer(taskCtx, call.CallerID, call.CallID)
	}); err != nil {
		p.logger.Error(ctx, "failed to launch clone task", err)
		if _, failErr := p.store.FailCallLog(ctx, call.CallID, "clone task could not be started"); failErr != nil && !errors.Is(failErr, store.ErrNotFound) {
			p.logger.Error(ctx, "failed to mark call failed", failErr)
		}
		return p.failedInstructions(call.CallID, p.config.ApologyMessage)
	}

	instructions := CallInstructions{
		CallID:      call.CallID,
		CloneStatus: CloneStatusProcessing,
		Greeting:    &GreetingInstruction{Message: p.config.GreetingMessage},
		Poll:        &PollInstruction{Interval: p.config.PollInterval, Attempt: 1},
	}
	if p.config.HoldMusicEnabled {
		instructions.HoldAudio = &HoldAudioInstruction{AudioURL: p.config.HoldMusicURL}
	}
	return instructions
}

// CheckCloneStatus reports clone readiness for an in-flight call. It is safe
// to call repeatedly: terminal states return the same instructions every time.
func (p *CallProcessor) CheckCloneStatus(ctx context.Context, callID string, attempt int) CallInstructions {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_id", Value: callID},
		observability.Field{Key: "poll_attempt", Value: attempt},
	)

	callLog, err := p.store.GetCallLogByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn(ctx, "status poll for unknown call")
			return p.failedInstructions(callID, "call not found")
		}
		p.logger.Error(ctx, "failed to load call log", err)
		return p.failedInstructions(callID, p.config.ApologyMessage)
	}

	switch callLog.Status {
	case store.CallStatusCompleted:
		p.logger.Info(ctx, "clone ready, bridging caller to agent")
		return CallInstructions{
			CallID:      callID,
			CloneStatus: CloneStatusCompleted,
			Stream: &StreamInstruction{
				VoiceID:  callLog.VoiceID,
				AgentID:  p.config.AgentID,
				CallerID: callLog.CallerID,
			},
		}
	case store.CallStatusFailed:
		message := callLog.LastError()
		if message == "" {
			message = p.config.ApologyMessage
		}
		return p.failedInstructions(callID, message)
	default:
		instructions := CallInstructions{
			CallID:      callID,
			CloneStatus: CloneStatusProcessing,
			Poll:        &PollInstruction{Interval: p.config.PollInterval, Attempt: attempt + 1},
		}
		if p.config.HoldMusicEnabled {
			instructions.HoldAudio = &HoldAudioInstruction{AudioURL: p.config.HoldMusicURL}
		}
		return instructions
	}
}

// AbandonCall marks a call failed after the adapter gave up waiting. Terminal
// call logs are left untouched.
func (p *CallProcessor) AbandonCall(ctx context.Context, callID, reason string) CallInstructions {
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID})
	p.logger.Warn(ctx, fmt.Sprintf("abandoning call: %s", reason))

	if _, err := p.store.FailCallLog(ctx, callID, reason); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Error(ctx, "failed to mark abandoned call failed", err)
	}
	return p.failedInstructions(callID, p.config.ApologyMessage)
}

func (p *CallProcessor) failedInstructions(callID, message string) CallInstructions {
	return CallInstructions{
		CallID:       callID,
		CloneStatus:  CloneStatusFailed,
		Greeting:     &GreetingInstruction{Message: message},
		ErrorMessage: message,
		Hangup:       true,
	}
}
