package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mr1hm/go-guardian/internal/broadcast"
	"github.com/mr1hm/go-guardian/internal/cache"
	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/geo"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/models"
	"github.com/mr1hm/go-guardian/internal/repository"
)

// Monitor is the part of the monitor the API drives.
type Monitor interface {
	SubmitPosition(f ingestion.Fix) bool
	SubmitPhrase(text string) bool
	Status() models.Status
}

// StatusCache serves the last snapshot saved for a wearer.
type StatusCache interface {
	Load(ctx context.Context, userID string) (*models.Status, error)
}

// ReplyInbox receives the wearer's answers to confirmation prompts.
type ReplyInbox interface {
	Push(text string) bool
}

type Handler struct {
	repo        repository.IncidentRepository
	monitor     Monitor
	inbox       ReplyInbox
	broadcaster *broadcast.Broadcaster
	statuses    StatusCache // optional
}

func NewHandler(repo repository.IncidentRepository, monitor Monitor, inbox ReplyInbox, broadcaster *broadcast.Broadcaster, statuses StatusCache) *Handler {
	return &Handler{
		repo:        repo,
		monitor:     monitor,
		inbox:       inbox,
		broadcaster: broadcaster,
		statuses:    statuses,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/positions", h.postPosition)
	r.POST("/api/replies", h.postReply)
	r.POST("/api/keywords", h.postKeyword)
	r.GET("/api/status", h.getStatus)
	r.GET("/api/users/:id/status", h.getCachedStatus)
	r.GET("/api/incidents", h.getIncidents)
	r.GET("/api/incidents/:id", h.getIncident)
	r.GET("/api/stream", h.stream)
	r.GET("/health", h.health)
	r.POST("/api/debug/test-alert", h.createTestAlert)
}

type positionRequest struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp string   `json:"timestamp"` // RFC 3339, defaults to now
}

func (h *Handler) postPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position payload"})
		return
	}

	lat, lon := req.Lat, req.Lon
	if lat == nil {
		lat = req.Latitude
	}
	if lon == nil {
		lon = req.Longitude
	}
	if lat == nil || lon == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}

	p := geo.Point{Lat: *lat, Lon: *lon}
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at := time.Now()
	if req.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC 3339"})
			return
		}
		at = t
	}

	if !h.monitor.SubmitPosition(ingestion.Fix{Position: p, At: at, Source: "api"}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitor busy, retry later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type textRequest struct {
	Text string `json:"text"`
}

func bindText(c *gin.Context) (string, bool) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return "", false
	}
	return text, true
}

func (h *Handler) postReply(c *gin.Context) {
	text, ok := bindText(c)
	if !ok {
		return
	}
	if !h.inbox.Push(text) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reply inbox full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) postKeyword(c *gin.Context) {
	text, ok := bindText(c)
	if !ok {
		return
	}
	if !h.monitor.SubmitPhrase(text) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitor busy, retry later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Status())
}

// getCachedStatus reads a wearer's snapshot from the status cache, which
// may be shared with other instances.
func (h *Handler) getCachedStatus(c *gin.Context) {
	if h.statuses == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status cache disabled"})
		return
	}
	st, err := h.statuses.Load(c.Request.Context(), c.Param("id"))
	if errors.Is(err, cache.ErrCacheMiss) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no status for user"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read status"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) getIncidents(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 incidents if limit param not supplied
	}

	if k := c.Query("kind"); k != "" {
		if kind, ok := models.ParseIncidentKind(strings.ToLower(k)); ok {
			filter.Kind = &kind
		}
	}
	if s := c.Query("min_severity"); s != "" {
		if sev, ok := detector.ParseSeverity(strings.ToLower(s)); ok {
			v := string(sev)
			filter.MinSeverity = &v
		}
	}
	if o := c.Query("outcome"); o != "" {
		outcome := strings.ToLower(o)
		filter.Outcome = &outcome
	}
	if s := c.Query("since"); s != "" {
		if t, ok := parseSince(s); ok {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	incidents, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch incidents",
		})
		return
	}

	fc := toGeoJSON(incidents)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func parseSince(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *Handler) getIncident(c *gin.Context) {
	inc, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch incident"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

// stream relays broadcaster events as server-sent events until the client
// goes away or the broadcaster closes.
func (h *Handler) stream(c *gin.Context) {
	id, events := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// send headers before the first event
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"subscribers": h.broadcaster.SubscriberCount(),
	})
}

func (h *Handler) createTestAlert(c *gin.Context) {
	pos := geo.Point{Lat: 48.8566, Lon: 2.3522}
	if st := h.monitor.Status(); st.Position != nil {
		pos = *st.Position
	}

	now := time.Now()
	incident := &models.Incident{
		ID:          "test_" + uuid.NewString(),
		Kind:        models.IncidentKindTest,
		Severity:    string(detector.SeverityModerate),
		Latitude:    pos.Lat,
		Longitude:   pos.Lon,
		Description: "This is a test alert for debugging",
		Outcome:     models.OutcomePending,
		DetectedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Broadcast only - don't persist test data to DB
	h.broadcaster.Broadcast(broadcast.Event{
		Type:     broadcast.EventIncident,
		Incident: incident,
		Message:  "test alert",
	})

	c.JSON(http.StatusOK, gin.H{
		"message": "test alert broadcast (not persisted)",
		"id":      incident.ID,
	})
}
