package api

import (
	"net/http"

	callHandler "clone-call-server/internal/callflow/handler"
	cloneHandler "clone-call-server/internal/voiceclone/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router       *gin.RouterGroup
	callHandler  callHandler.Handler
	cloneHandler cloneHandler.Handler
}

func New(router *gin.RouterGroup, callHandler callHandler.Handler, cloneHandler cloneHandler.Handler) API {
	return API{
		router:       router,
		callHandler:  callHandler,
		cloneHandler: cloneHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	{
		phoneGroup := apiGroup.Group("/phone")
		phoneGroup.POST("/inbound", a.callHandler.HandleInboundCall)
		phoneGroup.POST("/clone-status", a.callHandler.HandleCloneStatus)
		phoneGroup.GET("/media-stream", a.callHandler.HandleMediaStream)
	}
	{
		cloneGroup := apiGroup.Group("/voice-clones")
		cloneGroup.DELETE("/:caller_id", a.cloneHandler.HandleInvalidateClone)
		cloneGroup.GET("/statistics", a.cloneHandler.HandleGetStatistics)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
