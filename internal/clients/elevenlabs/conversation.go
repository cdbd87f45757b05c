package elevenlabs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// ConversationConfig holds the parameters for a conversational-agent session.
type ConversationConfig struct {
	// WSSURL is the conversation websocket endpoint.
	WSSURL string
	// AgentID selects the conversational agent.
	AgentID string
	// VoiceID overrides the agent voice with a cloned voice handle.
	VoiceID string
	// DynamicVariables are forwarded to the agent prompt.
	DynamicVariables map[string]string
}

// DialConversation opens a conversational-agent websocket and sends the
// initiation message carrying the voice override. The caller owns the
// returned connection.
func (c *Client) DialConversation(ctx context.Context, cfg ConversationConfig) (*websocket.Conn, error) {
	endpoint, err := url.Parse(cfg.WSSURL)
	if err != nil {
		return nil, &Error{Message: "invalid conversation URL", Err: err}
	}
	query := endpoint.Query()
	query.Set("agent_id", cfg.AgentID)
	endpoint.RawQuery = query.Encode()

	dialer := websocket.Dialer{}
	headers := http.Header{}
	headers.Set("xi-api-key", c.apiKey)

	conn, _, err := dialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		return nil, &Error{Message: "failed to connect to conversation endpoint", Err: err}
	}

	initiation := map[string]interface{}{
		"type": "conversation_initiation_client_data",
	}
	if cfg.VoiceID != "" {
		initiation["conversation_config_override"] = map[string]interface{}{
			"tts": map[string]string{"voice_id": cfg.VoiceID},
		}
	}
	if len(cfg.DynamicVariables) > 0 {
		initiation["dynamic_variables"] = cfg.DynamicVariables
	}

	if err := conn.WriteJSON(initiation); err != nil {
		conn.Close()
		return nil, &Error{Message: "failed to send conversation initiation", Err: err}
	}

	c.logger.Info(ctx, fmt.Sprintf("Conversation session opened for agent %s", cfg.AgentID))
	return conn, nil
}
