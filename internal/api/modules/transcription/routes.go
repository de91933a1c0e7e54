package transcription_module

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the routes for the transcription module
func RegisterRoutes(g *gin.RouterGroup, service *Service) {
	controller := &Controller{service: service}

	group := g.Group("/transcription")

	group.POST("/upload", controller.Upload)               // Submit a recording file
	group.POST("/live", controller.Live)                   // Submit a live meeting link
	group.GET("/status/:fileId", controller.GetStatus)     // Provider status passthrough
	group.GET("/files", controller.ListFiles)              // Provider file listing passthrough
	group.GET("/jobs/:id", controller.GetJob)              // Tracked job
	group.POST("/send-to-notion", controller.SendToNotion) // Attach a transcript manually
	group.POST("/webhook", controller.Webhook)             // Provider completion notifications
}
