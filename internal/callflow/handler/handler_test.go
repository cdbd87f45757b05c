package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"clone-call-server/internal/callflow/processor"
	"clone-call-server/internal/clients/elevenlabs"
	"clone-call-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController returns canned instructions and records invocations
type fakeController struct {
	inbound   processor.CallInstructions
	status    processor.CallInstructions
	abandoned processor.CallInstructions

	inboundCalls   []processor.CallContext
	statusAttempts []int
	abandonReasons []string
}

func (f *fakeController) HandleInboundCall(ctx context.Context, call processor.CallContext) processor.CallInstructions {
	f.inboundCalls = append(f.inboundCalls, call)
	return f.inbound
}

func (f *fakeController) CheckCloneStatus(ctx context.Context, callID string, attempt int) processor.CallInstructions {
	f.statusAttempts = append(f.statusAttempts, attempt)
	return f.status
}

func (f *fakeController) AbandonCall(ctx context.Context, callID, reason string) processor.CallInstructions {
	f.abandonReasons = append(f.abandonReasons, reason)
	return f.abandoned
}

type nilDialer struct{}

func (nilDialer) DialConversation(ctx context.Context, cfg elevenlabs.ConversationConfig) (*websocket.Conn, error) {
	return nil, nil
}

func testHandlerConfig() Config {
	return Config{
		PublicURL:          "https://calls.example.com",
		ConversationWSSURL: "wss://api.elevenlabs.io/v1/convai/conversation",
		MaxPollAttempts:    5,
	}
}

func setupRouter(controller *fakeController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(controller, nilDialer{}, nil, testHandlerConfig(), observability.NewLogger())
	router := gin.New()
	router.POST("/api/phone/inbound", h.HandleInboundCall)
	router.POST("/api/phone/clone-status", h.HandleCloneStatus)
	return router
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func processingInstructions(callID string) processor.CallInstructions {
	return processor.CallInstructions{
		CallID:      callID,
		CloneStatus: processor.CloneStatusProcessing,
		Greeting:    &processor.GreetingInstruction{Message: "One moment please."},
		HoldAudio:   &processor.HoldAudioInstruction{AudioURL: "https://calls.example.com/hold.mp3"},
		Poll:        &processor.PollInstruction{Interval: 2 * time.Second, Attempt: 1},
	}
}

func TestHandleInboundCall_RendersGreetingAndRedirect(t *testing.T) {
	controller := &fakeController{inbound: processingInstructions("CA100")}
	router := setupRouter(controller)

	w := postForm(router, "/api/phone/inbound", url.Values{
		"CallSid": {"CA100"},
		"From":    {"+31612345678"},
		"To":      {"+31201234567"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "<Say>One moment please.</Say>")
	assert.Contains(t, body, "hold.mp3")
	assert.Contains(t, body, "call_id=CA100")
	assert.Contains(t, body, "attempt=1")
	assert.Contains(t, body, "/api/phone/clone-status")
	assert.NotContains(t, body, "<Hangup")

	require.Len(t, controller.inboundCalls, 1)
	call := controller.inboundCalls[0]
	assert.Equal(t, "CA100", call.CallID)
	assert.Equal(t, "+31612345678", call.CallerID)
	assert.Equal(t, processor.ProtocolTelephonyWebhook, call.Protocol)
}

func TestHandleInboundCall_MissingCallSid(t *testing.T) {
	controller := &fakeController{}
	router := setupRouter(controller)

	w := postForm(router, "/api/phone/inbound", url.Values{"From": {"+31612345678"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, controller.inboundCalls)
}

func TestHandleCloneStatus_ProcessingDoesNotRepeatGreeting(t *testing.T) {
	status := processingInstructions("CA101")
	status.Poll.Attempt = 3
	controller := &fakeController{status: status}
	router := setupRouter(controller)

	w := postForm(router, "/api/phone/clone-status?call_id=CA101&attempt=2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "<Say>", "greeting is only spoken on the first response")
	assert.Contains(t, body, "attempt=3")
	assert.Equal(t, []int{2}, controller.statusAttempts)
}

func TestHandleCloneStatus_CompletedRendersConnectStream(t *testing.T) {
	controller := &fakeController{status: processor.CallInstructions{
		CallID:      "CA102",
		CloneStatus: processor.CloneStatusCompleted,
		Stream: &processor.StreamInstruction{
			VoiceID:  "voice_ready",
			AgentID:  "agent_123",
			CallerID: "+31612345678",
		},
	}}
	router := setupRouter(controller)

	w := postForm(router, "/api/phone/clone-status?call_id=CA102&attempt=2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<Connect>")
	assert.Contains(t, body, "wss://calls.example.com/api/phone/media-stream")
	assert.Contains(t, body, `name="voice_id" value="voice_ready"`)
	assert.Contains(t, body, `name="agent_id" value="agent_123"`)
	assert.Contains(t, body, `name="call_id" value="CA102"`)
}

func TestHandleCloneStatus_FailedRendersApologyAndHangup(t *testing.T) {
	controller := &fakeController{status: processor.CallInstructions{
		CallID:       "CA103",
		CloneStatus:  processor.CloneStatusFailed,
		Greeting:     &processor.GreetingInstruction{Message: "We cannot take your call."},
		ErrorMessage: "We cannot take your call.",
		Hangup:       true,
	}}
	router := setupRouter(controller)

	w := postForm(router, "/api/phone/clone-status?call_id=CA103&attempt=2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<Say>We cannot take your call.</Say>")
	assert.Contains(t, body, "<Hangup")
}

func TestHandleCloneStatus_PollLimitAbandonsCall(t *testing.T) {
	controller := &fakeController{abandoned: processor.CallInstructions{
		CallID:      "CA104",
		CloneStatus: processor.CloneStatusFailed,
		Greeting:    &processor.GreetingInstruction{Message: "We cannot take your call."},
		Hangup:      true,
	}}
	router := setupRouter(controller)

	w := postForm(router, "/api/phone/clone-status?call_id=CA104&attempt=6", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Hangup")
	assert.Equal(t, []string{"clone preparation timed out"}, controller.abandonReasons)
	assert.Empty(t, controller.statusAttempts)
}

func TestHandleCloneStatus_MissingCallID(t *testing.T) {
	router := setupRouter(&fakeController{})

	w := postForm(router, "/api/phone/clone-status", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenderTwiML_NoHoldAudioFallsBackToPause(t *testing.T) {
	instructions := processingInstructions("CA105")
	instructions.HoldAudio = nil

	document, err := renderTwiML(instructions, testHandlerConfig(), true)
	require.NoError(t, err)
	assert.Contains(t, document, `<Pause length="2"`)
}

func TestRenderTwiML_EmptyInstructionsHangUp(t *testing.T) {
	document, err := renderTwiML(processor.CallInstructions{CallID: "CA106"}, testHandlerConfig(), true)
	require.NoError(t, err)
	assert.Contains(t, document, "<Hangup", "a caller is never left on a silent open line")
}
