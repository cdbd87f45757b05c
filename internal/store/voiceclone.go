package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateVoiceCloneParams represents parameters for caching a new clone
type CreateVoiceCloneParams struct {
	CallerID     string
	VoiceID      string
	TTLExpiresAt time.Time
}

const sqlGetLiveVoiceClone = `
SELECT id, caller_id, voice_id, created_at, ttl_expires_at, reuse_count, last_used_at, deleted_at
FROM voice_clone_cache
WHERE caller_id = $1 AND deleted_at IS NULL AND ttl_expires_at > NOW()
`

// GetLiveVoiceClone returns the current non-deleted, non-expired cache entry
// for a caller.
func (s *Store) GetLiveVoiceClone(ctx context.Context, callerID string) (VoiceClone, error) {
	var clone VoiceClone
	err := s.db.GetContext(ctx, &clone, sqlGetLiveVoiceClone, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoiceClone{}, ErrNotFound
		}
		return VoiceClone{}, fmt.Errorf("failed to get live voice clone: %w", err)
	}
	return clone, nil
}

const sqlSoftDeleteVoiceClone = `
UPDATE voice_clone_cache
SET deleted_at = NOW()
WHERE caller_id = $1 AND deleted_at IS NULL
`

const sqlInsertVoiceClone = `
INSERT INTO voice_clone_cache (caller_id, voice_id, ttl_expires_at, reuse_count, last_used_at)
VALUES ($1, $2, $3, 1, NOW())
RETURNING id, caller_id, voice_id, created_at, ttl_expires_at, reuse_count, last_used_at, deleted_at
`

// CreateVoiceClone caches a freshly created clone. Any previous live entry
// for the caller is soft-deleted in the same transaction so that at most one
// non-deleted row exists per caller.
func (s *Store) CreateVoiceClone(ctx context.Context, params CreateVoiceCloneParams) (VoiceClone, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return VoiceClone{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlSoftDeleteVoiceClone, params.CallerID); err != nil {
		return VoiceClone{}, fmt.Errorf("failed to supersede previous clone: %w", err)
	}

	var clone VoiceClone
	err = tx.GetContext(ctx, &clone, sqlInsertVoiceClone,
		params.CallerID,
		params.VoiceID,
		params.TTLExpiresAt,
	)
	if err != nil {
		return VoiceClone{}, fmt.Errorf("failed to create voice clone: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return VoiceClone{}, fmt.Errorf("failed to commit voice clone: %w", err)
	}
	return clone, nil
}

const sqlIncrementVoiceCloneReuse = `
UPDATE voice_clone_cache
SET reuse_count = reuse_count + 1,
    last_used_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
RETURNING id, caller_id, voice_id, created_at, ttl_expires_at, reuse_count, last_used_at, deleted_at
`

// IncrementVoiceCloneReuse records a cache hit on an entry.
func (s *Store) IncrementVoiceCloneReuse(ctx context.Context, cloneID uuid.UUID) (VoiceClone, error) {
	var clone VoiceClone
	err := s.db.GetContext(ctx, &clone, sqlIncrementVoiceCloneReuse, cloneID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoiceClone{}, ErrNotFound
		}
		return VoiceClone{}, fmt.Errorf("failed to increment clone reuse: %w", err)
	}
	return clone, nil
}

// SoftDeleteVoiceClone soft-deletes the caller's current entry. It is
// idempotent and reports whether a row was actually deleted.
func (s *Store) SoftDeleteVoiceClone(ctx context.Context, callerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, sqlSoftDeleteVoiceClone, callerID)
	if err != nil {
		return false, fmt.Errorf("failed to soft delete voice clone: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

const sqlSoftDeleteExpiredVoiceClones = `
UPDATE voice_clone_cache
SET deleted_at = NOW()
WHERE deleted_at IS NULL AND ttl_expires_at <= NOW()
`

// SoftDeleteExpiredVoiceClones sweeps all entries past their TTL and returns
// the number of entries removed.
func (s *Store) SoftDeleteExpiredVoiceClones(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, sqlSoftDeleteExpiredVoiceClones)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired voice clones: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

const sqlGetVoiceSampleForCaller = `
SELECT id, caller_id, sample_path, created_at
FROM voice_samples
WHERE caller_id = $1
`

// GetVoiceSampleForCaller returns the sample mapping for a caller.
func (s *Store) GetVoiceSampleForCaller(ctx context.Context, callerID string) (VoiceSample, error) {
	var sample VoiceSample
	err := s.db.GetContext(ctx, &sample, sqlGetVoiceSampleForCaller, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoiceSample{}, ErrNotFound
		}
		return VoiceSample{}, fmt.Errorf("failed to get voice sample for caller: %w", err)
	}
	return sample, nil
}

const sqlUpsertVoiceSample = `
INSERT INTO voice_samples (caller_id, sample_path)
VALUES ($1, $2)
ON CONFLICT (caller_id) DO UPDATE SET sample_path = EXCLUDED.sample_path
RETURNING id, caller_id, sample_path, created_at
`

// UpsertVoiceSample registers or replaces the sample mapping for a caller.
func (s *Store) UpsertVoiceSample(ctx context.Context, callerID, samplePath string) (VoiceSample, error) {
	var sample VoiceSample
	err := s.db.GetContext(ctx, &sample, sqlUpsertVoiceSample, callerID, samplePath)
	if err != nil {
		return VoiceSample{}, fmt.Errorf("failed to upsert voice sample: %w", err)
	}
	return sample, nil
}
