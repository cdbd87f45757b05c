package processor

import "time"

// Protocol identifies the signaling surface a call arrived on.
const (
	ProtocolTelephonyWebhook = "telephony-webhook"
	ProtocolNativeSignaling  = "native-signaling"
)

// CallContext is the protocol-neutral description of an inbound call. The
// transport adapters translate their wire formats into this before handing
// the call to the controller.
type CallContext struct {
	CallID      string
	CallerID    string
	RecipientID string
	Protocol    string
	// Status is the transport's view of the call leg (initiated, ringing,
	// in-progress). The controller only ever advances it.
	Status      string
	InitiatedAt time.Time
}

// Clone readiness as reported to the adapter.
const (
	CloneStatusProcessing = "processing"
	CloneStatusCompleted  = "completed"
	CloneStatusFailed     = "failed"
)

// GreetingInstruction tells the adapter to speak a message to the caller.
type GreetingInstruction struct {
	Message string
}

// HoldAudioInstruction tells the adapter to play hold audio.
type HoldAudioInstruction struct {
	AudioURL string
}

// PollInstruction tells the adapter to check clone readiness again after
// the given interval.
type PollInstruction struct {
	Interval time.Duration
	Attempt  int
}

// StreamInstruction tells the adapter to bridge the caller to the voice
// agent using the cloned voice.
type StreamInstruction struct {
	VoiceID  string
	AgentID  string
	CallerID string
}

// CallInstructions is the controller's answer to an adapter request. Every
// response carries at least one instruction; a caller is never left on a
// silent line.
type CallInstructions struct {
	CallID       string
	CloneStatus  string
	Greeting     *GreetingInstruction
	HoldAudio    *HoldAudioInstruction
	Poll         *PollInstruction
	Stream       *StreamInstruction
	ErrorMessage string
	Hangup       bool
}
