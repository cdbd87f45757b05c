package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateCallLogParams represents parameters for starting a call log
type CreateCallLogParams struct {
	CallID   string
	CallerID string
	Status   string
}

const sqlCreateCallLog = `
INSERT INTO call_logs (call_id, caller_id, voice_id, status, started_at, metadata)
VALUES ($1, $2, $3, $4, NOW(), $5)
RETURNING id, call_id, caller_id, voice_id, status, started_at, ended_at, duration_seconds, transcript, metadata, created_at, updated_at
`

// CreateCallLog creates a call log entry at call start.
func (s *Store) CreateCallLog(ctx context.Context, params CreateCallLogParams) (CallLog, error) {
	status := params.Status
	if status == "" {
		status = CallStatusInitiated
	}
	var entry CallLog
	err := s.db.GetContext(ctx, &entry, sqlCreateCallLog,
		params.CallID,
		params.CallerID,
		VoiceIDPending,
		status,
		JSONB{},
	)
	if err != nil {
		return CallLog{}, fmt.Errorf("failed to create call log: %w", err)
	}
	return entry, nil
}

const sqlGetCallLogByCallID = `
SELECT id, call_id, caller_id, voice_id, status, started_at, ended_at, duration_seconds, transcript, metadata, created_at, updated_at
FROM call_logs
WHERE call_id = $1
`

// GetCallLogByCallID retrieves a call log entry by its transport call id.
func (s *Store) GetCallLogByCallID(ctx context.Context, callID string) (CallLog, error) {
	var entry CallLog
	err := s.db.GetContext(ctx, &entry, sqlGetCallLogByCallID, callID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, fmt.Errorf("failed to get call log: %w", err)
	}
	return entry, nil
}

const sqlCompleteCallLog = `
UPDATE call_logs
SET status = $2,
    voice_id = $3,
    ended_at = NOW(),
    duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))::bigint,
    updated_at = NOW()
WHERE call_id = $1 AND status NOT IN ($4, $5)
RETURNING id, call_id, caller_id, voice_id, status, started_at, ended_at, duration_seconds, transcript, metadata, created_at, updated_at
`

// CompleteCallLog transitions a call log to the completed terminal status
// with the resolved clone handle. Calls already in a terminal status are
// left untouched.
func (s *Store) CompleteCallLog(ctx context.Context, callID, voiceID string) (CallLog, error) {
	var entry CallLog
	err := s.db.GetContext(ctx, &entry, sqlCompleteCallLog,
		callID, CallStatusCompleted, voiceID, CallStatusCompleted, CallStatusFailed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, fmt.Errorf("failed to complete call log: %w", err)
	}
	return entry, nil
}

const sqlFailCallLog = `
UPDATE call_logs
SET status = $2,
    ended_at = NOW(),
    duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))::bigint,
    metadata = metadata || jsonb_build_object('last_error', $3::text),
    updated_at = NOW()
WHERE call_id = $1 AND status NOT IN ($2, $4)
RETURNING id, call_id, caller_id, voice_id, status, started_at, ended_at, duration_seconds, transcript, metadata, created_at, updated_at
`

// FailCallLog transitions a call log to the failed terminal status and
// records the error message in the metadata.
func (s *Store) FailCallLog(ctx context.Context, callID, errorMessage string) (CallLog, error) {
	var entry CallLog
	err := s.db.GetContext(ctx, &entry, sqlFailCallLog,
		callID, CallStatusFailed, errorMessage, CallStatusCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, fmt.Errorf("failed to fail call log: %w", err)
	}
	return entry, nil
}

const sqlSetCallTranscript = `
UPDATE call_logs
SET transcript = $2,
    updated_at = NOW()
WHERE call_id = $1
`

// SetCallTranscript stores the transcript filled in after call completion.
func (s *Store) SetCallTranscript(ctx context.Context, callID, transcript string) error {
	result, err := s.db.ExecContext(ctx, sqlSetCallTranscript, callID, transcript)
	if err != nil {
		return fmt.Errorf("failed to set call transcript: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
