package handler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"clone-call-server/internal/clients/elevenlabs"
	"clone-call-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MediaEvent is a Twilio media-stream websocket message.
type MediaEvent struct {
	Event string `json:"event"`
	Start struct {
		StreamSid        string            `json:"streamSid"`
		CallSid          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Stop struct {
		StreamSid string `json:"streamSid"`
	} `json:"stop,omitempty"`
}

// agentEvent is a conversational-agent websocket message.
type agentEvent struct {
	Type       string `json:"type"`
	AudioEvent struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event,omitempty"`
	PingEvent struct {
		EventID int64 `json:"event_id"`
	} `json:"ping_event,omitempty"`
	AgentResponseEvent struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`
	UserTranscriptionEvent struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`
}

// HandleMediaStream bridges a Twilio media stream to the voice-agent
// conversation socket. The stream's custom parameters carry the cloned voice
// handle negotiated during the webhook flow.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	h.logger.Info(ctx, "Twilio media stream connected")

	relay := newMediaRelay(conn, h.dialer, h.transcripts, h.config, h.logger)
	relay.Run(ctx)
}

// mediaRelay shuttles audio between a Twilio media stream and an agent
// conversation session.
type mediaRelay struct {
	twilioConn  *websocket.Conn
	dialer      ConversationDialer
	transcripts TranscriptStore
	config      Config
	logger      *observability.Logger

	twilioWriteMu sync.Mutex
	agentWriteMu  sync.Mutex

	streamSid  string
	callID     string
	transcript strings.Builder
}

func newMediaRelay(conn *websocket.Conn, dialer ConversationDialer, transcripts TranscriptStore, config Config, logger *observability.Logger) *mediaRelay {
	return &mediaRelay{
		twilioConn:  conn,
		dialer:      dialer,
		transcripts: transcripts,
		config:      config,
		logger:      logger,
	}
}

// Run processes the Twilio stream until it stops or errors. It blocks.
func (r *mediaRelay) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.saveTranscript(ctx)

	var agentConn *websocket.Conn
	defer func() {
		if agentConn != nil {
			agentConn.Close()
		}
	}()

	for {
		_, msg, err := r.twilioConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Info(ctx, "Twilio media stream closed")
			} else {
				r.logger.Error(ctx, "Twilio media stream read error", err)
			}
			return
		}

		var event MediaEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			r.logger.Error(ctx, "failed to parse media event", err)
			continue
		}

		switch event.Event {
		case "connected":
			// Handshake preamble, nothing to do yet.

		case "start":
			r.streamSid = event.Start.StreamSid
			r.callID = event.Start.CustomParameters["call_id"]
			ctx = observability.WithFields(ctx,
				observability.Field{Key: "stream_sid", Value: r.streamSid},
				observability.Field{Key: "call_id", Value: r.callID},
			)

			agentConn, err = r.dialer.DialConversation(ctx, elevenlabs.ConversationConfig{
				WSSURL:  r.config.ConversationWSSURL,
				AgentID: event.Start.CustomParameters["agent_id"],
				VoiceID: event.Start.CustomParameters["voice_id"],
				DynamicVariables: map[string]string{
					"caller_id": event.Start.CustomParameters["caller_id"],
				},
			})
			if err != nil {
				r.logger.Error(ctx, "failed to open agent conversation", err)
				return
			}
			go r.pumpAgentAudio(ctx, agentConn, cancel)
			r.logger.Info(ctx, "media relay bridged to voice agent")

		case "media":
			if agentConn == nil {
				continue
			}
			r.agentWriteMu.Lock()
			err := agentConn.WriteJSON(map[string]string{"user_audio_chunk": event.Media.Payload})
			r.agentWriteMu.Unlock()
			if err != nil {
				r.logger.Error(ctx, "failed to forward caller audio", err)
				return
			}

		case "stop":
			r.logger.Info(ctx, "Twilio media stream stopped")
			return
		}
	}
}

// pumpAgentAudio reads agent events and forwards audio back onto the Twilio
// stream until either side closes.
func (r *mediaRelay) pumpAgentAudio(ctx context.Context, agentConn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		var event agentEvent
		if err := agentConn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Info(ctx, "agent conversation closed")
			} else {
				r.logger.Error(ctx, "agent conversation read error", err)
			}
			return
		}

		switch event.Type {
		case "audio":
			if err := r.writeTwilioJSON(map[string]interface{}{
				"event":     "media",
				"streamSid": r.streamSid,
				"media":     map[string]string{"payload": event.AudioEvent.AudioBase64},
			}); err != nil {
				r.logger.Error(ctx, "failed to forward agent audio", err)
				return
			}

		case "ping":
			r.agentWriteMu.Lock()
			err := agentConn.WriteJSON(map[string]interface{}{
				"type":     "pong",
				"event_id": event.PingEvent.EventID,
			})
			r.agentWriteMu.Unlock()
			if err != nil {
				r.logger.Error(ctx, "failed to answer agent ping", err)
				return
			}

		case "interruption":
			// Caller spoke over the agent, flush queued audio.
			if err := r.writeTwilioJSON(map[string]interface{}{
				"event":     "clear",
				"streamSid": r.streamSid,
			}); err != nil {
				r.logger.Error(ctx, "failed to clear Twilio buffer", err)
				return
			}

		case "agent_response":
			r.appendTranscript("agent", event.AgentResponseEvent.AgentResponse)

		case "user_transcript":
			r.appendTranscript("caller", event.UserTranscriptionEvent.UserTranscript)
		}
	}
}

func (r *mediaRelay) writeTwilioJSON(payload interface{}) error {
	r.twilioWriteMu.Lock()
	defer r.twilioWriteMu.Unlock()
	return r.twilioConn.WriteJSON(payload)
}

func (r *mediaRelay) appendTranscript(speaker, text string) {
	if text == "" {
		return
	}
	r.transcript.WriteString(speaker)
	r.transcript.WriteString(": ")
	r.transcript.WriteString(text)
	r.transcript.WriteString("\n")
}

func (r *mediaRelay) saveTranscript(ctx context.Context) {
	if r.callID == "" || r.transcript.Len() == 0 || r.transcripts == nil {
		return
	}
	// The relay context is already cancelled by the time the stream ends.
	ctx = context.WithoutCancel(ctx)
	if err := r.transcripts.SetCallTranscript(ctx, r.callID, r.transcript.String()); err != nil {
		r.logger.Error(ctx, "failed to save call transcript", err)
	}
}
