package meeting

import (
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the routes for the meeting module
func RegisterRoutes(g *gin.RouterGroup, bookings *booking.Service) {
	controller := &Controller{service: NewService(bookings)}

	group := g.Group("/meetings")

	group.GET("", controller.ListMeetings)                  // All active meetings in creation order
	group.POST("", controller.CreateMeeting)                // Book the room
	group.GET("/calendar.ics", controller.GetCalendar)      // Active meetings as an iCalendar feed
	group.POST("/check-conflict", controller.CheckConflict) // Ask whether a slot is free
	group.DELETE("/:id", controller.CancelMeeting)          // Cancel a meeting (owner or admin)
}
