package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"clone-call-server/internal/observability"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Error is the single error type returned for any provider failure, whether
// a transport error or a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("elevenlabs: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("elevenlabs: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client talks to the ElevenLabs voice-synthesis API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates an ElevenLabs API client. baseURL may be empty to use
// the production endpoint.
func NewClient(apiKey, baseURL string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs API key is required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}, nil
}

type addVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

// CreateVoiceClone submits a voice sample and returns the new clone handle.
func (c *Client) CreateVoiceClone(ctx context.Context, sample []byte, name, description string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("name", name); err != nil {
		return "", &Error{Message: "failed to build request body", Err: err}
	}
	if description != "" {
		if err := writer.WriteField("description", description); err != nil {
			return "", &Error{Message: "failed to build request body", Err: err}
		}
	}
	part, err := writer.CreateFormFile("files", "sample.mp3")
	if err != nil {
		return "", &Error{Message: "failed to build request body", Err: err}
	}
	if _, err := part.Write(sample); err != nil {
		return "", &Error{Message: "failed to build request body", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &Error{Message: "failed to build request body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/voices/add", &body)
	if err != nil {
		return "", &Error{Message: "failed to build request", Err: err}
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: "voice clone request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError(resp)
	}

	var parsed addVoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &Error{Message: "failed to decode voice clone response", Err: err}
	}
	if parsed.VoiceID == "" {
		return "", &Error{Message: "voice clone response missing voice_id"}
	}

	c.logger.Info(ctx, fmt.Sprintf("Created voice clone %s", parsed.VoiceID))
	return parsed.VoiceID, nil
}

type outboundCallRequest struct {
	AgentID            string                `json:"agent_id"`
	AgentPhoneNumberID string                `json:"agent_phone_number_id"`
	ToNumber           string                `json:"to_number"`
	InitiationData     *initiationClientData `json:"conversation_initiation_client_data,omitempty"`
}

type initiationClientData struct {
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
	TTS              *ttsOverride      `json:"tts,omitempty"`
}

type ttsOverride struct {
	VoiceID string `json:"voice_id"`
}

type outboundCallResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	CallSID string `json:"callSid"`
}

// TriggerVoiceAgentCall instructs the provider to place a voice-agent call
// to phoneNumber speaking with voiceID. Returns the provider call handle.
func (c *Client) TriggerVoiceAgentCall(ctx context.Context, agentID, agentPhoneNumberID, phoneNumber, voiceID string, customVariables map[string]string) (string, error) {
	payload := outboundCallRequest{
		AgentID:            agentID,
		AgentPhoneNumberID: agentPhoneNumberID,
		ToNumber:           phoneNumber,
		InitiationData: &initiationClientData{
			DynamicVariables: customVariables,
			TTS:              &ttsOverride{VoiceID: voiceID},
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Message: "failed to encode outbound call request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/convai/twilio/outbound-call", bytes.NewReader(encoded))
	if err != nil {
		return "", &Error{Message: "failed to build request", Err: err}
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: "outbound call request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError(resp)
	}

	var parsed outboundCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &Error{Message: "failed to decode outbound call response", Err: err}
	}
	if !parsed.Success {
		return "", &Error{StatusCode: resp.StatusCode, Message: parsed.Message}
	}

	c.logger.Info(ctx, fmt.Sprintf("Triggered voice agent call %s", parsed.CallSID))
	return parsed.CallSID, nil
}

func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &Error{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
