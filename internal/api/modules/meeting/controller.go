package meeting

import (
	"fmt"
	"net/http"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/sdk"
	"github.com/gin-gonic/gin"
)

// Controller holds the HTTP handlers of the meeting module
type Controller struct {
	service *Service
}

// ListMeetings handles GET requests to list the active meetings
func (ctl *Controller) ListMeetings(c *gin.Context) {
	meetings, err := ctl.service.List(c.Request.Context())
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, meetings)
}

// CreateMeeting handles POST requests to book the room
func (ctl *Controller) CreateMeeting(c *gin.Context) {
	var draft booking.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: could not parse request body: %s", apperr.ErrValidation, err.Error())))
		return
	}

	meeting, err := ctl.service.Create(c.Request.Context(), &draft)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusCreated, meeting)
}

// CheckConflict handles POST requests asking whether a slot overlaps an active meeting
func (ctl *Controller) CheckConflict(c *gin.Context) {
	var req sdk.CheckConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: could not parse request body: %s", apperr.ErrValidation, err.Error())))
		return
	}

	conflict, err := ctl.service.CheckConflict(c.Request.Context(), &req)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, sdk.CheckConflictResponse{HasConflict: conflict})
}

// CancelMeeting handles DELETE requests to cancel a meeting
func (ctl *Controller) CancelMeeting(c *gin.Context) {
	// An empty body is treated as an anonymous requester and fails authorization
	var req sdk.CancelMeetingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(sdk.NewErrorResponse(fmt.Errorf("%w: could not parse request body: %s", apperr.ErrValidation, err.Error())))
			return
		}
	}

	if err := ctl.service.Cancel(c.Request.Context(), c.Param("id"), req.UserEmail); err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, sdk.OKResponse{OK: true})
}

// GetCalendar handles GET requests for the iCalendar feed of active meetings
func (ctl *Controller) GetCalendar(c *gin.Context) {
	feed, err := ctl.service.Calendar(c.Request.Context())
	if err != nil {
		c.JSON(sdk.NewErrorResponse(err))
		return
	}

	c.Header("Content-Disposition", `inline; filename="meetings.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
}
