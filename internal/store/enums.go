package store

// Call Log ENUMs
const (
	CallStatusInitiated  = "initiated"
	CallStatusProcessing = "processing"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
)

// VoiceIDPending is the call-log voice handle before the clone resolves.
const VoiceIDPending = "pending"

// Clone Event ENUMs
const (
	CloneEventCreated        = "created"
	CloneEventCreationFailed = "creation_failed"
	CloneEventReady          = "ready"
	CloneEventFailed         = "failed"
	CloneEventTransferred    = "transferred"
)
