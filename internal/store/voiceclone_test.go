package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testCallerID() string {
	return fmt.Sprintf("+3161%s", uuid.New().String()[:8])
}

func TestStore_CreateVoiceClone(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	callerID := testCallerID()

	clone, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID:     callerID,
		VoiceID:      "voice_" + uuid.New().String(),
		TTLExpiresAt: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}
	if clone.ID == uuid.Nil {
		t.Error("expected clone ID to be set")
	}
	if clone.ReuseCount != 1 {
		t.Errorf("ReuseCount = %d, want 1", clone.ReuseCount)
	}
	if clone.DeletedAt.Valid {
		t.Error("expected new clone to not be soft-deleted")
	}
}

func TestStore_CreateVoiceClone_SupersedesPreviousEntry(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	callerID := testCallerID()
	ttl := time.Now().Add(24 * time.Hour)

	first, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID: callerID, VoiceID: "voice_first", TTLExpiresAt: ttl,
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}

	second, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID: callerID, VoiceID: "voice_second", TTLExpiresAt: ttl,
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}

	live, err := testDB.Store.GetLiveVoiceClone(ctx, callerID)
	if err != nil {
		t.Fatalf("GetLiveVoiceClone() error = %v", err)
	}
	if live.ID != second.ID {
		t.Errorf("live clone = %s, want %s", live.ID, second.ID)
	}
	if live.ID == first.ID {
		t.Error("expected first clone to be superseded")
	}
}

func TestStore_GetLiveVoiceClone_HonorsTTL(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	callerID := testCallerID()

	_, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID:     callerID,
		VoiceID:      "voice_expired",
		TTLExpiresAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}

	_, err = testDB.Store.GetLiveVoiceClone(ctx, callerID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired entry, got %v", err)
	}
}

func TestStore_IncrementVoiceCloneReuse(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	clone, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID:     testCallerID(),
		VoiceID:      "voice_reused",
		TTLExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}

	updated, err := testDB.Store.IncrementVoiceCloneReuse(ctx, clone.ID)
	if err != nil {
		t.Fatalf("IncrementVoiceCloneReuse() error = %v", err)
	}
	if updated.ReuseCount != clone.ReuseCount+1 {
		t.Errorf("ReuseCount = %d, want %d", updated.ReuseCount, clone.ReuseCount+1)
	}
	if !updated.LastUsedAt.After(clone.LastUsedAt) && !updated.LastUsedAt.Equal(clone.LastUsedAt) {
		t.Error("expected last_used_at to advance")
	}
}

func TestStore_SoftDeleteVoiceClone(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	callerID := testCallerID()
	_, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID:     callerID,
		VoiceID:      "voice_invalidated",
		TTLExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}

	deleted, err := testDB.Store.SoftDeleteVoiceClone(ctx, callerID)
	if err != nil {
		t.Fatalf("SoftDeleteVoiceClone() error = %v", err)
	}
	if !deleted {
		t.Error("expected first invalidation to delete a row")
	}

	// Idempotent: a second invalidation deletes nothing.
	deleted, err = testDB.Store.SoftDeleteVoiceClone(ctx, callerID)
	if err != nil {
		t.Fatalf("SoftDeleteVoiceClone() error = %v", err)
	}
	if deleted {
		t.Error("expected second invalidation to be a no-op")
	}

	_, err = testDB.Store.GetLiveVoiceClone(ctx, callerID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after invalidation, got %v", err)
	}
}

func TestStore_SoftDeleteExpiredVoiceClones(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	_, err := testDB.Store.CreateVoiceClone(ctx, CreateVoiceCloneParams{
		CallerID:     testCallerID(),
		VoiceID:      "voice_sweepable",
		TTLExpiresAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateVoiceClone() error = %v", err)
	}

	count, err := testDB.Store.SoftDeleteExpiredVoiceClones(ctx)
	if err != nil {
		t.Fatalf("SoftDeleteExpiredVoiceClones() error = %v", err)
	}
	if count < 1 {
		t.Errorf("expected at least 1 swept entry, got %d", count)
	}
}

func TestStore_GetVoiceSampleForCaller(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	callerID := testCallerID()

	_, err := testDB.Store.GetVoiceSampleForCaller(ctx, callerID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unmapped caller, got %v", err)
	}

	created, err := testDB.Store.UpsertVoiceSample(ctx, callerID, "samples/caller.mp3")
	if err != nil {
		t.Fatalf("UpsertVoiceSample() error = %v", err)
	}

	sample, err := testDB.Store.GetVoiceSampleForCaller(ctx, callerID)
	if err != nil {
		t.Fatalf("GetVoiceSampleForCaller() error = %v", err)
	}
	if sample.ID != created.ID {
		t.Errorf("sample ID = %s, want %s", sample.ID, created.ID)
	}
	if sample.SamplePath != "samples/caller.mp3" {
		t.Errorf("SamplePath = %q, want %q", sample.SamplePath, "samples/caller.mp3")
	}
}
