package agent

import (
	"net/http"

	"github.com/ethanbaker/meetingroom/pkg/recording"
	"github.com/ethanbaker/meetingroom/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// Controller holds the recording control handlers
type Controller struct {
	recorder Recorder
	scene    string
}

// StartRecording handles POST requests to switch scene and start recording
func (ctl *Controller) StartRecording(c *gin.Context) {
	if err := ctl.recorder.StartRecording(c.Request.Context(), ctl.scene); err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, sdk.AgentMessage{Message: "Recording started"})
}

// StopRecording handles POST requests to stop recording
func (ctl *Controller) StopRecording(c *gin.Context) {
	if err := ctl.recorder.StopRecording(c.Request.Context()); err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, sdk.AgentMessage{Message: "Recording stopped"})
}

// GetStatus handles GET requests probing the recording software
func (ctl *Controller) GetStatus(c *gin.Context) {
	state := ctl.recorder.Status(c.Request.Context())
	if state != recording.StateConnected {
		c.JSON(http.StatusServiceUnavailable, sdk.AgentStatus{
			Status:    string(recording.StateDisconnected),
			LastError: ctl.recorder.Session().LastError,
		})
		return
	}

	c.JSON(http.StatusOK, sdk.AgentStatus{Status: string(state)})
}
