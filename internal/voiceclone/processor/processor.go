package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clone-call-server/internal/observability"
	"clone-call-server/internal/store"

	"github.com/google/uuid"
)

var (
	// ErrCallerNotFound means no voice sample is mapped for the caller.
	// Terminal: a retry cannot succeed until a sample is registered.
	ErrCallerNotFound = errors.New("no voice sample mapped for caller")
	// ErrSampleInvalid means the stored sample is empty or not recognizable
	// audio. Terminal, not retried.
	ErrSampleInvalid = errors.New("voice sample is empty or malformed")
	// ErrCloneCreationFailed wraps any provider or storage failure during
	// clone creation. Terminal per attempt; a fresh inbound call is the only
	// retry mechanism.
	ErrCloneCreationFailed = errors.New("voice clone creation failed")
)

// CloneStore defines the database operations required by CloneProcessor
type CloneStore interface {
	GetLiveVoiceClone(ctx context.Context, callerID string) (store.VoiceClone, error)
	CreateVoiceClone(ctx context.Context, params store.CreateVoiceCloneParams) (store.VoiceClone, error)
	IncrementVoiceCloneReuse(ctx context.Context, cloneID uuid.UUID) (store.VoiceClone, error)
	SoftDeleteVoiceClone(ctx context.Context, callerID string) (bool, error)
	SoftDeleteExpiredVoiceClones(ctx context.Context) (int64, error)
	GetVoiceSampleForCaller(ctx context.Context, callerID string) (store.VoiceSample, error)
	AppendCloneEvent(ctx context.Context, params store.AppendCloneEventParams) (store.CloneEvent, error)
	GetCloneStatistics(ctx context.Context) (store.CloneStatistics, error)
}

// SynthesisClient defines the voice-synthesis provider operations required
// by CloneProcessor
type SynthesisClient interface {
	CreateVoiceClone(ctx context.Context, sample []byte, name, description string) (string, error)
}

// SampleStore reads voice sample bytes by location
type SampleStore interface {
	Read(ctx context.Context, location string) ([]byte, error)
}

// Config holds clone cache settings
type Config struct {
	// TTL is the cache lifetime of a created clone, anchored at the moment
	// of creation.
	TTL time.Duration
}

// CloneProcessor implements cache-aside retrieval and creation of cloned
// voices for callers.
type CloneProcessor struct {
	store   CloneStore
	synth   SynthesisClient
	samples SampleStore
	config  Config
	logger  *observability.Logger

	// Serializes the miss path per caller so concurrent inbound calls from
	// the same caller cannot each trigger a provider clone creation.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a new CloneProcessor
func New(cloneStore CloneStore, synth SynthesisClient, samples SampleStore, config Config, logger *observability.Logger) *CloneProcessor {
	return &CloneProcessor{
		store:   cloneStore,
		synth:   synth,
		samples: samples,
		config:  config,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetOrCreateClone returns the caller's cached clone handle, creating one
// through the synthesis provider on a cache miss. sampleOverride, when
// non-empty, replaces the mapped sample.
func (p *CloneProcessor) GetOrCreateClone(ctx context.Context, callerID string, sampleOverride []byte) (string, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "caller_id", Value: callerID})

	if voiceID, ok, err := p.lookup(ctx, callerID); err != nil {
		return "", err
	} else if ok {
		return voiceID, nil
	}

	lock := p.lockFor(callerID)
	lock.Lock()
	defer lock.Unlock()

	// Another call may have populated the cache while we waited.
	if voiceID, ok, err := p.lookup(ctx, callerID); err != nil {
		return "", err
	} else if ok {
		return voiceID, nil
	}

	return p.createClone(ctx, callerID, sampleOverride)
}

// lookup performs the cache fast path: a live entry increments its reuse
// counter and never contacts the provider.
func (p *CloneProcessor) lookup(ctx context.Context, callerID string) (string, bool, error) {
	clone, err := p.store.GetLiveVoiceClone(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		p.logger.Error(ctx, "failed to look up clone cache", err)
		return "", false, fmt.Errorf("failed to look up clone cache: %w", err)
	}

	if _, err := p.store.IncrementVoiceCloneReuse(ctx, clone.ID); err != nil {
		// The handle is still valid; losing one reuse tick is acceptable.
		p.logger.Error(ctx, "failed to increment clone reuse counter", err)
	}

	p.logger.Info(ctx, fmt.Sprintf("Clone cache hit for caller, voice %s", clone.VoiceID))
	return clone.VoiceID, true, nil
}

func (p *CloneProcessor) createClone(ctx context.Context, callerID string, sampleOverride []byte) (string, error) {
	sample := sampleOverride
	if len(sample) == 0 {
		mapping, err := p.store.GetVoiceSampleForCaller(ctx, callerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", fmt.Errorf("%w: %s", ErrCallerNotFound, callerID)
			}
			return "", fmt.Errorf("failed to resolve voice sample: %w", err)
		}

		sample, err = p.samples.Read(ctx, mapping.SamplePath)
		if err != nil {
			p.recordCreationFailure(ctx, callerID, 0, 0, err.Error())
			return "", fmt.Errorf("%w: reading sample: %s", ErrCloneCreationFailed, err)
		}
	}

	if err := validateSample(sample); err != nil {
		p.recordCreationFailure(ctx, callerID, 0, int64(len(sample)), err.Error())
		return "", err
	}

	start := time.Now()
	voiceID, err := p.synth.CreateVoiceClone(ctx, sample,
		fmt.Sprintf("caller %s", callerID),
		"Cloned greeting voice for inbound caller")
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		p.recordCreationFailure(ctx, callerID, latencyMs, int64(len(sample)), err.Error())
		return "", fmt.Errorf("%w: %s", ErrCloneCreationFailed, err)
	}

	// TTL is anchored at the moment of creation, not at request start.
	_, err = p.store.CreateVoiceClone(ctx, store.CreateVoiceCloneParams{
		CallerID:     callerID,
		VoiceID:      voiceID,
		TTLExpiresAt: time.Now().Add(p.config.TTL),
	})
	if err != nil {
		p.recordCreationFailure(ctx, callerID, latencyMs, int64(len(sample)), err.Error())
		return "", fmt.Errorf("%w: caching clone: %s", ErrCloneCreationFailed, err)
	}

	if _, err := p.store.AppendCloneEvent(ctx, store.AppendCloneEventParams{
		EventType:   store.CloneEventCreated,
		CallerID:    callerID,
		VoiceID:     voiceID,
		DurationMs:  latencyMs,
		SampleBytes: int64(len(sample)),
	}); err != nil {
		p.logger.Error(ctx, "failed to append clone creation event", err)
	}

	p.logger.Info(ctx, fmt.Sprintf("Created clone %s in %dms", voiceID, latencyMs))
	return voiceID, nil
}

func (p *CloneProcessor) recordCreationFailure(ctx context.Context, callerID string, latencyMs, sampleBytes int64, message string) {
	if _, err := p.store.AppendCloneEvent(ctx, store.AppendCloneEventParams{
		EventType:   store.CloneEventCreationFailed,
		CallerID:    callerID,
		DurationMs:  latencyMs,
		SampleBytes: sampleBytes,
		Message:     message,
	}); err != nil {
		p.logger.Error(ctx, "failed to append clone failure event", err)
	}
}

func (p *CloneProcessor) lockFor(callerID string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	lock, ok := p.locks[callerID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[callerID] = lock
	}
	return lock
}

// Invalidate soft-deletes the caller's cached clone. It is idempotent and
// reports whether an entry was actually removed.
func (p *CloneProcessor) Invalidate(ctx context.Context, callerID string) (bool, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "caller_id", Value: callerID})
	deleted, err := p.store.SoftDeleteVoiceClone(ctx, callerID)
	if err != nil {
		p.logger.Error(ctx, "failed to invalidate clone", err)
		return false, fmt.Errorf("failed to invalidate clone: %w", err)
	}
	if deleted {
		p.logger.Info(ctx, "Invalidated cached clone")
	}
	return deleted, nil
}

// CleanupExpired soft-deletes all cache entries past their TTL and returns
// the number of entries removed.
func (p *CloneProcessor) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := p.store.SoftDeleteExpiredVoiceClones(ctx)
	if err != nil {
		p.logger.Error(ctx, "failed to sweep expired clones", err)
		return 0, fmt.Errorf("failed to sweep expired clones: %w", err)
	}
	if count > 0 {
		p.logger.Info(ctx, fmt.Sprintf("Swept %d expired clone cache entries", count))
	}
	return count, nil
}

// Statistics aggregates clone creation and cache reuse accounting.
type Statistics struct {
	TotalClonesCreated   int64   `json:"total_clones_created"`
	CacheHits            int64   `json:"cache_hits"`
	CacheMisses          int64   `json:"cache_misses"`
	HitRate              float64 `json:"hit_rate"`
	AvgCreationLatencyMs float64 `json:"avg_creation_latency_ms"`
	TotalCallsLogged     int64   `json:"total_calls_logged"`
}

// GetStatistics returns aggregate clone cache statistics.
func (p *CloneProcessor) GetStatistics(ctx context.Context) (Statistics, error) {
	raw, err := p.store.GetCloneStatistics(ctx)
	if err != nil {
		p.logger.Error(ctx, "failed to get clone statistics", err)
		return Statistics{}, fmt.Errorf("failed to get clone statistics: %w", err)
	}

	stats := Statistics{
		TotalClonesCreated:   raw.TotalClonesCreated,
		CacheHits:            raw.CacheHits,
		CacheMisses:          raw.TotalClonesCreated,
		AvgCreationLatencyMs: raw.AvgCreationLatencyMs,
		TotalCallsLogged:     raw.TotalCallsLogged,
	}
	if total := stats.CacheHits + stats.CacheMisses; total > 0 {
		stats.HitRate = float64(stats.CacheHits) / float64(total)
	}
	return stats, nil
}

// validateSample rejects empty or unrecognizable audio before it is
// submitted to the provider.
func validateSample(sample []byte) error {
	if len(sample) == 0 {
		return fmt.Errorf("%w: sample is empty", ErrSampleInvalid)
	}
	if len(sample) < 4 {
		return fmt.Errorf("%w: sample too short", ErrSampleInvalid)
	}

	switch {
	case bytes.HasPrefix(sample, []byte("RIFF")): // WAV
		return nil
	case bytes.HasPrefix(sample, []byte("ID3")): // MP3 with ID3 tag
		return nil
	case sample[0] == 0xFF && sample[1]&0xE0 == 0xE0: // raw MP3 frame sync
		return nil
	case bytes.HasPrefix(sample, []byte("OggS")): // Ogg
		return nil
	case bytes.HasPrefix(sample, []byte("fLaC")): // FLAC
		return nil
	}
	return fmt.Errorf("%w: unrecognized audio format", ErrSampleInvalid)
}
