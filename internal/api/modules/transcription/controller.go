package transcription_module

import (
	"fmt"
	"net/http"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds inbound notification bodies
const maxWebhookBody = 10 << 20

// Controller holds the HTTP handlers of the transcription module
type Controller struct {
	service *Service
}

// Upload handles multipart POST requests with a recording in the "file" field
func (ctl *Controller) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: file is required", apperr.ErrValidation)))
		return
	}

	resp, err := ctl.service.Upload(c.Request.Context(), header, c.PostForm("meetingId"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Live handles POST requests to transcribe a live meeting link
func (ctl *Controller) Live(c *gin.Context) {
	var req sdk.LiveTranscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: could not parse request body: %s", apperr.ErrValidation, err.Error())))
		return
	}

	raw, err := ctl.service.Live(c.Request.Context(), &req)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// GetStatus handles GET requests for the provider's status of a file
func (ctl *Controller) GetStatus(c *gin.Context) {
	raw, err := ctl.service.Status(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// ListFiles handles GET requests for the provider's file listing
func (ctl *Controller) ListFiles(c *gin.Context) {
	raw, err := ctl.service.ListFiles(c.Request.Context())
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// GetJob handles GET requests for a tracked job
func (ctl *Controller) GetJob(c *gin.Context) {
	job, err := ctl.service.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, job)
}

// SendToNotion handles POST requests attaching a transcript to a meeting
func (ctl *Controller) SendToNotion(c *gin.Context) {
	var req sdk.SendToNotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: could not parse request body: %s", apperr.ErrValidation, err.Error())))
		return
	}

	if err := ctl.service.SendToNotion(c.Request.Context(), &req); err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, sdk.OKResponse{OK: true})
}

// Webhook handles provider notifications with a plain text acknowledgement.
// Bodies that cannot be parsed get a 400 since sending them again cannot help,
// while delivery failures answer 500 so the provider retries the notification
func (ctl *Controller) Webhook(c *gin.Context) {
	body, err := readLimited(c, maxWebhookBody)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: could not read webhook body: %s", apperr.ErrValidation, err.Error())))
		return
	}

	if err := ctl.service.Webhook(c.Request.Context(), body); err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.String(http.StatusOK, "OK")
}

func readLimited(c *gin.Context, limit int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	return c.GetRawData()
}
