package store

import (
	"context"
	"fmt"
)

// AppendCloneEventParams represents an audit record for a clone lifecycle
// transition. Events are write-once and never updated.
type AppendCloneEventParams struct {
	EventType   string
	CallerID    string
	CallID      string
	VoiceID     string
	DurationMs  int64
	SampleBytes int64
	Message     string
}

const sqlAppendCloneEvent = `
INSERT INTO clone_events (event_type, caller_id, call_id, voice_id, duration_ms, sample_bytes, message)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''))
RETURNING id, event_type, caller_id, call_id, voice_id, duration_ms, sample_bytes, message, created_at
`

// AppendCloneEvent appends a clone lifecycle event.
func (s *Store) AppendCloneEvent(ctx context.Context, params AppendCloneEventParams) (CloneEvent, error) {
	var event CloneEvent
	err := s.db.GetContext(ctx, &event, sqlAppendCloneEvent,
		params.EventType,
		params.CallerID,
		params.CallID,
		params.VoiceID,
		params.DurationMs,
		params.SampleBytes,
		params.Message,
	)
	if err != nil {
		return CloneEvent{}, fmt.Errorf("failed to append clone event: %w", err)
	}
	return event, nil
}

// CloneStatistics holds the raw aggregates backing the statistics endpoint.
type CloneStatistics struct {
	TotalClonesCreated   int64   `db:"total_clones_created"`
	CacheHits            int64   `db:"cache_hits"`
	AvgCreationLatencyMs float64 `db:"avg_creation_latency_ms"`
	TotalCallsLogged     int64   `db:"total_calls_logged"`
}

const sqlGetCloneStatistics = `
SELECT
    (SELECT COUNT(*) FROM clone_events WHERE event_type = $1)                          AS total_clones_created,
    (SELECT COALESCE(SUM(reuse_count - 1), 0) FROM voice_clone_cache
        WHERE deleted_at IS NULL AND ttl_expires_at > NOW())                           AS cache_hits,
    (SELECT COALESCE(AVG(duration_ms), 0) FROM clone_events WHERE event_type = $1)     AS avg_creation_latency_ms,
    (SELECT COUNT(*) FROM call_logs)                                                   AS total_calls_logged
`

// GetCloneStatistics aggregates clone creation and reuse accounting.
func (s *Store) GetCloneStatistics(ctx context.Context) (CloneStatistics, error) {
	var stats CloneStatistics
	err := s.db.GetContext(ctx, &stats, sqlGetCloneStatistics, CloneEventCreated)
	if err != nil {
		return CloneStatistics{}, fmt.Errorf("failed to get clone statistics: %w", err)
	}
	return stats, nil
}
