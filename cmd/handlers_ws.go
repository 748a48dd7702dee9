package main

import (
	"github.com/gin-gonic/gin"

	"notebooker/models"
)

// handleActivityWS 把连接交给 ActivityHub 升级为 WebSocket
func handleActivityWS(app *appContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := app.hub.Serve(c.Writer, c.Request); err != nil {
			app.logger.Warnf("⚠️ WebSocket 升级失败: %v", err)
			c.JSON(400, models.NewErrorResponse("WebSocket upgrade failed"))
		}
	}
}
