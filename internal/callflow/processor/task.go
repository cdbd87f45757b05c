package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clone-call-server/internal/observability"
	"clone-call-server/internal/store"
)

// runCloneAndTransfer is the supervised background task behind each inbound
// call. It prepares the caller's clone, records the outcome on the call log,
// and optionally places the outbound agent call. The caller keeps polling the
// call log while this runs; the task never touches the live call leg itself.
func (p *CallProcessor) runCloneAndTransfer(ctx context.Context, callerID, callID string) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_id", Value: callID},
		observability.Field{Key: "caller_id", Value: callerID},
	)

	started := time.Now()
	voiceID, err := p.clones.GetOrCreateClone(ctx, callerID, nil)
	if err != nil {
		p.logger.Error(ctx, "clone preparation failed", err)
		if _, eventErr := p.store.AppendCloneEvent(ctx, store.AppendCloneEventParams{
			EventType: store.CloneEventFailed,
			CallerID:  callerID,
			CallID:    callID,
			Message:   err.Error(),
		}); eventErr != nil {
			p.logger.Error(ctx, "failed to record clone failure event", eventErr)
		}
		if _, failErr := p.store.FailCallLog(ctx, callID, err.Error()); failErr != nil && !errors.Is(failErr, store.ErrNotFound) {
			p.logger.Error(ctx, "failed to mark call failed", failErr)
		}
		return fmt.Errorf("clone preparation for call %s: %w", callID, err)
	}

	elapsed := time.Since(started)
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "voice_id", Value: voiceID},
		observability.Field{Key: "clone_wait_ms", Value: elapsed.Milliseconds()},
	)
	if p.config.MaxCloneWait > 0 && elapsed > p.config.MaxCloneWait {
		p.logger.Warn(ctx, "clone preparation exceeded expected wait")
	}

	if _, err := p.store.AppendCloneEvent(ctx, store.AppendCloneEventParams{
		EventType:  store.CloneEventReady,
		CallerID:   callerID,
		CallID:     callID,
		VoiceID:    voiceID,
		DurationMs: elapsed.Milliseconds(),
	}); err != nil {
		p.logger.Error(ctx, "failed to record clone ready event", err)
	}

	if p.config.AutoTransferEnabled {
		p.transferToAgent(ctx, callerID, callID, voiceID)
	}

	if _, err := p.store.CompleteCallLog(ctx, callID, voiceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The call reached a terminal state while we worked, most
			// likely abandoned by the adapter. Nothing left to do.
			p.logger.Warn(ctx, "call already terminal, clone result discarded")
			return nil
		}
		p.logger.Error(ctx, "failed to complete call log", err)
		return fmt.Errorf("completing call %s: %w", callID, err)
	}

	p.logger.Info(ctx, "clone ready and call completed")
	return nil
}

// transferToAgent places the outbound agent call with the cloned voice. A
// transfer failure is logged but does not fail the clone task: the clone is
// cached and usable either way.
func (p *CallProcessor) transferToAgent(ctx context.Context, callerID, callID, voiceID string) {
	agentCallID, err := p.agent.TriggerVoiceAgentCall(ctx, p.config.AgentID, p.config.AgentPhoneNumberID,
		callerID, voiceID, map[string]string{"greeting_call_sid": callID})
	if err != nil {
		p.logger.Error(ctx, "outbound agent call failed", err)
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "agent_call_id", Value: agentCallID})
	if _, err := p.store.AppendCloneEvent(ctx, store.AppendCloneEventParams{
		EventType: store.CloneEventTransferred,
		CallerID:  callerID,
		CallID:    callID,
		VoiceID:   voiceID,
		Message:   agentCallID,
	}); err != nil {
		p.logger.Error(ctx, "failed to record transfer event", err)
	}
	p.logger.Info(ctx, "caller transferred to voice agent")
}
