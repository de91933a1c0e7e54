package agent

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the recording control routes
func RegisterRoutes(g *gin.RouterGroup, controller *Controller) {
	g.POST("/start-recording", controller.StartRecording)
	g.POST("/stop-recording", controller.StopRecording)
	g.GET("/status", controller.GetStatus)
}
