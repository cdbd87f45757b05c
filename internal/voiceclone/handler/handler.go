package handler

import (
	"net/http"

	"clone-call-server/internal/apierrors"
	"clone-call-server/internal/observability"
	"clone-call-server/internal/voiceclone/processor"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	cloneProcessor *processor.CloneProcessor
	logger         *observability.Logger
}

func New(cloneProcessor *processor.CloneProcessor, logger *observability.Logger) Handler {
	return Handler{
		cloneProcessor: cloneProcessor,
		logger:         logger,
	}
}

// HandleInvalidateClone soft-deletes the caller's cached clone so the next
// inbound call recreates it.
func (h *Handler) HandleInvalidateClone(c *gin.Context) {
	ctx := c.Request.Context()

	callerID := c.Param("caller_id")
	if callerID == "" {
		apierrors.BadRequest(c, "MISSING_CALLER_ID", "caller_id is required")
		return
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "caller_id", Value: callerID})

	deleted, err := h.cloneProcessor.Invalidate(ctx, callerID)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}
	if !deleted {
		apierrors.NotFound(c, "no live voice clone for caller")
		return
	}

	h.logger.Info(ctx, "voice clone invalidated")
	c.JSON(http.StatusOK, gin.H{"deleted": true, "caller_id": callerID})
}

// HandleGetStatistics returns aggregate clone cache statistics.
func (h *Handler) HandleGetStatistics(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.cloneProcessor.GetStatistics(ctx)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
