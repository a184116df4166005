package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tunetip/events-service/internal/monitoring"
	"github.com/tunetip/events-service/internal/page"
	"github.com/tunetip/events-service/internal/service"
)

// Authentication sits in front of this service; the gateway forwards the
// authenticated user id in X-User-ID.
const userHeader = "X-User-ID"

func RegisterHandlers(r *gin.Engine, svc *service.EventsService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/events", createEventHandler(svc))
		v1.GET("/events/feed", feedHandler(svc))
		v1.GET("/events/artist/:artistId", eventsByArtistHandler(svc))
		v1.GET("/events/:id", getEventHandler(svc))
		v1.PUT("/events/:id", updateEventHandler(svc))
		v1.DELETE("/events/:id", deleteEventHandler(svc))
		v1.POST("/events/:id/rsvp", rsvpHandler(svc))
		v1.DELETE("/events/:id/rsvp", unRsvpHandler(svc))
		v1.GET("/events/:id/attendees", attendeesHandler(svc))
		v1.GET("/events/:id/attendee-count", attendeeCountHandler(svc))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEventNotFound), errors.Is(err, service.ErrRSVPNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEventInPast), errors.Is(err, service.ErrInvalidEventType):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func currentUser(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.GetHeader(userHeader), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + userHeader})
		return 0, false
	}
	return id, true
}

func eventID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return 0, false
	}
	return id, true
}

func pageFilter(c *gin.Context) page.Filter {
	p, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	l, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page.Filter{Page: p, Limit: l}
}

type createEventReq struct {
	Title       string     `json:"title" binding:"required,min=3,max=255"`
	Description string     `json:"description" binding:"required"`
	EventType   string     `json:"event_type" binding:"required"`
	StartTime   time.Time  `json:"start_time" binding:"required"`
	EndTime     *time.Time `json:"end_time"`
	Venue       *string    `json:"venue"`
	StreamURL   *string    `json:"stream_url" binding:"omitempty,url"`
	TicketURL   *string    `json:"ticket_url" binding:"omitempty,url"`
	IsVirtual   bool       `json:"is_virtual"`
}

func createEventHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID, ok := currentUser(c)
		if !ok {
			return
		}
		var req createEventReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ev, err := svc.Create(c, artistID, service.CreateEventInput{
			Title:       req.Title,
			Description: req.Description,
			EventType:   req.EventType,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Venue:       req.Venue,
			StreamURL:   req.StreamURL,
			TicketURL:   req.TicketURL,
			IsVirtual:   req.IsVirtual,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, ev)
	}
}

type updateEventReq struct {
	Title       *string    `json:"title" binding:"omitempty,min=3,max=255"`
	Description *string    `json:"description"`
	EventType   *string    `json:"event_type"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Venue       *string    `json:"venue"`
	StreamURL   *string    `json:"stream_url" binding:"omitempty,url"`
	TicketURL   *string    `json:"ticket_url" binding:"omitempty,url"`
	IsVirtual   *bool      `json:"is_virtual"`
}

func updateEventHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := eventID(c)
		if !ok {
			return
		}
		var req updateEventReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ev, err := svc.Update(c, id, artistID, service.UpdateEventInput{
			Title:       req.Title,
			Description: req.Description,
			EventType:   req.EventType,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Venue:       req.Venue,
			StreamURL:   req.StreamURL,
			TicketURL:   req.TicketURL,
			IsVirtual:   req.IsVirtual,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}

func getEventHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := eventID(c)
		if !ok {
			return
		}
		ev, err := svc.Get(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}

func deleteEventHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := eventID(c)
		if !ok {
			return
		}
		if err := svc.Delete(c, id, artistID); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func eventsByArtistHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID, err := strconv.ParseUint(c.Param("artistId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artist id"})
			return
		}
		res, err := svc.ListByArtist(c, artistID, pageFilter(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func feedHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var artistIDs []uint64
		if raw := c.Query("artist_ids"); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artist_ids"})
					return
				}
				artistIDs = append(artistIDs, id)
			}
		}
		res, err := svc.Feed(c, artistIDs, pageFilter(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

type rsvpReq struct {
	ReminderEnabled *bool `json:"reminder_enabled"`
}

func rsvpHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := eventID(c)
		if !ok {
			return
		}
		var req rsvpReq
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reminderEnabled := true
		if req.ReminderEnabled != nil {
			reminderEnabled = *req.ReminderEnabled
		}
		rec, err := svc.Join(c, id, userID, reminderEnabled)
		if err != nil {
			monitoring.TrackRSVP("join", rsvpStatus(err))
			fail(c, err)
			return
		}
		monitoring.TrackRSVP("join", "ok")
		c.JSON(http.StatusCreated, rec)
	}
}

func unRsvpHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := eventID(c)
		if !ok {
			return
		}
		if err := svc.Leave(c, id, userID); err != nil {
			monitoring.TrackRSVP("leave", rsvpStatus(err))
			fail(c, err)
			return
		}
		monitoring.TrackRSVP("leave", "ok")
		c.Status(http.StatusNoContent)
	}
}

func rsvpStatus(err error) string {
	if errors.Is(err, service.ErrAlreadyJoined) {
		return "conflict"
	}
	return "error"
}

func attendeesHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := eventID(c)
		if !ok {
			return
		}
		res, err := svc.ListAttendees(c, id, pageFilter(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func attendeeCountHandler(svc *service.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := eventID(c)
		if !ok {
			return
		}
		count, err := svc.AttendeeCount(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"event_id": id, "attendee_count": count})
	}
}
