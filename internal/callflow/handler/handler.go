package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"clone-call-server/internal/callflow/processor"
	"clone-call-server/internal/clients/elevenlabs"
	"clone-call-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// CallController is the protocol-neutral call flow behind this adapter.
type CallController interface {
	HandleInboundCall(ctx context.Context, call processor.CallContext) processor.CallInstructions
	CheckCloneStatus(ctx context.Context, callID string, attempt int) processor.CallInstructions
	AbandonCall(ctx context.Context, callID, reason string) processor.CallInstructions
}

// ConversationDialer opens a conversational-agent session for the media relay.
type ConversationDialer interface {
	DialConversation(ctx context.Context, cfg elevenlabs.ConversationConfig) (*websocket.Conn, error)
}

// TranscriptStore persists call transcripts captured by the media relay.
type TranscriptStore interface {
	SetCallTranscript(ctx context.Context, callID, transcript string) error
}

// Config holds the webhook adapter settings
type Config struct {
	// PublicURL is the externally reachable base URL Twilio calls back on.
	PublicURL string
	// ConversationWSSURL is the voice-agent conversation endpoint the media
	// relay bridges to.
	ConversationWSSURL string
	// MaxPollAttempts bounds the Redirect polling loop.
	MaxPollAttempts int
}

type Handler struct {
	callProcessor CallController
	dialer        ConversationDialer
	transcripts   TranscriptStore
	config        Config
	logger        *observability.Logger
}

func New(callProcessor CallController, dialer ConversationDialer, transcripts TranscriptStore, config Config, logger *observability.Logger) Handler {
	return Handler{
		callProcessor: callProcessor,
		dialer:        dialer,
		transcripts:   transcripts,
		config:        config,
		logger:        logger,
	}
}

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleInboundCall answers the Twilio voice webhook for a new inbound call.
func (h *Handler) HandleInboundCall(c *gin.Context) {
	ctx := c.Request.Context()

	callID := c.PostForm("CallSid")
	callerID := c.PostForm("From")
	recipientID := c.PostForm("To")
	if callID == "" || callerID == "" {
		h.logger.Warn(ctx, "inbound webhook missing CallSid or From")
		c.String(http.StatusBadRequest, "missing CallSid or From")
		return
	}

	instructions := h.callProcessor.HandleInboundCall(ctx, processor.CallContext{
		CallID:      callID,
		CallerID:    callerID,
		RecipientID: recipientID,
		Protocol:    processor.ProtocolTelephonyWebhook,
		Status:      c.DefaultPostForm("CallStatus", "initiated"),
		InitiatedAt: time.Now(),
	})

	h.respondTwiML(c, instructions, true)
}

// HandleCloneStatus answers the Redirect polling webhook while the clone is
// being prepared.
func (h *Handler) HandleCloneStatus(c *gin.Context) {
	ctx := c.Request.Context()

	callID := c.Query("call_id")
	if callID == "" {
		callID = c.PostForm("CallSid")
	}
	if callID == "" {
		c.String(http.StatusBadRequest, "missing call_id")
		return
	}

	attempt, err := strconv.Atoi(c.DefaultQuery("attempt", "1"))
	if err != nil || attempt < 1 {
		attempt = 1
	}

	var instructions processor.CallInstructions
	if attempt > h.config.MaxPollAttempts {
		instructions = h.callProcessor.AbandonCall(ctx, callID, "clone preparation timed out")
	} else {
		instructions = h.callProcessor.CheckCloneStatus(ctx, callID, attempt)
	}

	h.respondTwiML(c, instructions, false)
}
