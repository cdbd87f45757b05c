package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"clone-call-server/internal/callflow/processor"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
)

// respondTwiML renders CallInstructions as a TwiML document. firstResponse
// controls whether the greeting is spoken: on poll responses the caller has
// already heard it.
func (h *Handler) respondTwiML(c *gin.Context, instructions processor.CallInstructions, firstResponse bool) {
	document, err := renderTwiML(instructions, h.config, firstResponse)
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to render TwiML", err)
		c.String(http.StatusInternalServerError, "twiml rendering failed")
		return
	}
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, document)
}

func renderTwiML(instructions processor.CallInstructions, config Config, firstResponse bool) (string, error) {
	var elements []twiml.Element

	if instructions.Greeting != nil && (firstResponse || instructions.Hangup) {
		elements = append(elements, &twiml.VoiceSay{Message: instructions.Greeting.Message})
	}

	switch {
	case instructions.Hangup:
		elements = append(elements, &twiml.VoiceHangup{})

	case instructions.Stream != nil:
		stream := twiml.VoiceStream{
			Name: "voice-agent-stream",
			Url:  mediaStreamURL(config.PublicURL),
			InnerElements: []twiml.Element{
				&twiml.VoiceParameter{Name: "voice_id", Value: instructions.Stream.VoiceID},
				&twiml.VoiceParameter{Name: "agent_id", Value: instructions.Stream.AgentID},
				&twiml.VoiceParameter{Name: "caller_id", Value: instructions.Stream.CallerID},
				&twiml.VoiceParameter{Name: "call_id", Value: instructions.CallID},
			},
		}
		elements = append(elements, &twiml.VoiceConnect{
			InnerElements: []twiml.Element{stream},
		})

	case instructions.Poll != nil:
		if instructions.HoldAudio != nil {
			elements = append(elements, &twiml.VoicePlay{Url: instructions.HoldAudio.AudioURL})
		} else {
			elements = append(elements, &twiml.VoicePause{
				Length: strconv.Itoa(pauseSeconds(instructions)),
			})
		}
		elements = append(elements, &twiml.VoiceRedirect{
			Url: statusURL(config.PublicURL, instructions.CallID, instructions.Poll.Attempt),
		})

	default:
		// Instruction-less responses are a controller bug. Never leave the
		// caller on a silent open line.
		elements = append(elements, &twiml.VoiceHangup{})
	}

	return twiml.Voice(elements)
}

func pauseSeconds(instructions processor.CallInstructions) int {
	seconds := int(instructions.Poll.Interval.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func statusURL(publicURL, callID string, attempt int) string {
	query := url.Values{}
	query.Set("call_id", callID)
	query.Set("attempt", strconv.Itoa(attempt))
	return fmt.Sprintf("%s/api/phone/clone-status?%s", strings.TrimRight(publicURL, "/"), query.Encode())
}

func mediaStreamURL(publicURL string) string {
	base := strings.TrimRight(publicURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/api/phone/media-stream"
}
