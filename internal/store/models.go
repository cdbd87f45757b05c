package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONB is a custom type for JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("incompatible type for JSONB")
	}

	if len(bytes) == 0 || string(bytes) == "null" {
		*j = make(JSONB)
		return nil
	}

	result := make(JSONB)
	err := json.Unmarshal(bytes, &result)
	if err != nil {
		return err
	}
	*j = result
	return nil
}

// VoiceClone is one cached cloned-voice handle for a caller. At most one
// non-deleted row exists per caller at a time.
type VoiceClone struct {
	ID           uuid.UUID    `db:"id"`
	CallerID     string       `db:"caller_id"`
	VoiceID      string       `db:"voice_id"`
	CreatedAt    time.Time    `db:"created_at"`
	TTLExpiresAt time.Time    `db:"ttl_expires_at"`
	ReuseCount   int          `db:"reuse_count"`
	LastUsedAt   time.Time    `db:"last_used_at"`
	DeletedAt    sql.NullTime `db:"deleted_at"`
}

// CallLog is the per-call lifecycle record.
type CallLog struct {
	ID              uuid.UUID      `db:"id"`
	CallID          string         `db:"call_id"`
	CallerID        string         `db:"caller_id"`
	VoiceID         string         `db:"voice_id"`
	Status          string         `db:"status"`
	StartedAt       time.Time      `db:"started_at"`
	EndedAt         sql.NullTime   `db:"ended_at"`
	DurationSeconds sql.NullInt64  `db:"duration_seconds"`
	Transcript      sql.NullString `db:"transcript"`
	Metadata        JSONB          `db:"metadata"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// LastError returns the last error message recorded in the call metadata.
func (c *CallLog) LastError() string {
	if c.Metadata == nil {
		return ""
	}
	if msg, ok := c.Metadata["last_error"].(string); ok {
		return msg
	}
	return ""
}

// CloneEvent is an append-only audit record for clone lifecycle transitions.
type CloneEvent struct {
	ID          uuid.UUID      `db:"id"`
	EventType   string         `db:"event_type"`
	CallerID    string         `db:"caller_id"`
	CallID      sql.NullString `db:"call_id"`
	VoiceID     sql.NullString `db:"voice_id"`
	DurationMs  sql.NullInt64  `db:"duration_ms"`
	SampleBytes sql.NullInt64  `db:"sample_bytes"`
	Message     sql.NullString `db:"message"`
	CreatedAt   time.Time      `db:"created_at"`
}

// VoiceSample maps a caller to the storage location of their voice sample.
type VoiceSample struct {
	ID         uuid.UUID `db:"id"`
	CallerID   string    `db:"caller_id"`
	SamplePath string    `db:"sample_path"`
	CreatedAt  time.Time `db:"created_at"`
}
