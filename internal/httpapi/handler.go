package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"MarketScanner/internal/broadcast"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/usecase"
)

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// SessionService is the coordinator surface exposed over HTTP.
type SessionService interface {
	Start(cfg domain.SessionConfig) (domain.SessionHandle, error)
	Cancel(id string) error
	State(id string) (domain.Session, error)
	Subscribe(id string) (*broadcast.Subscription, error)
	Activity(id string) ([]domain.LogEntry, error)
}

type SessionHandler struct {
	service  SessionService
	defaults domain.SessionConfig
	logger   *slog.Logger
}

func NewSessionHandler(service SessionService, defaults domain.SessionConfig, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{service: service, defaults: defaults.Clone(), logger: logger}
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	handle, err := h.service.Start(req.merge(h.defaults))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Location", "/sessions/"+handle.ID)
	c.JSON(http.StatusAccepted, toHandleResponse(handle))
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.service.State(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) CancelSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Cancel(id); err != nil {
		h.writeError(c, err)
		return
	}
	session, err := h.service.State(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": id, "state": session.State})
}

func (h *SessionHandler) GetPositions(c *gin.Context) {
	session, err := h.service.State(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if session.State != domain.StateCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Session not completed", "state": session.State})
		return
	}
	positions := session.Positions
	if positions == nil {
		positions = []domain.Position{}
	}
	c.JSON(http.StatusOK, PositionsResponse{SessionID: session.ID, State: string(session.State), Positions: positions})
}

func (h *SessionHandler) GetSummary(c *gin.Context) {
	session, err := h.service.State(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if session.Summary == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No summary available", "state": session.State})
		return
	}
	c.JSON(http.StatusOK, session.Summary)
}

func (h *SessionHandler) GetActivity(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.service.Activity(id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	limit := getQueryInt("limit", defaultActivityLimit, c)
	if limit < 1 || limit > maxActivityLimit {
		limit = defaultActivityLimit
	}
	offset := max(getQueryInt("offset", 0, c), 0)

	page := []domain.LogEntry{}
	if offset < len(entries) {
		page = entries[offset:min(offset+limit, len(entries))]
	}
	c.JSON(http.StatusOK, ActivityResponse{
		SessionID: id,
		Entries:   page,
		Total:     len(entries),
		Limit:     limit,
		Offset:    offset,
	})
}

// StreamEvents replays retained progress events and then streams live ones
// as server-sent events until the session ends or the client goes away.
func (h *SessionHandler) StreamEvents(c *gin.Context) {
	sub, err := h.service.Subscribe(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := sub.Events()
	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				if errors.Is(sub.Err(), broadcast.ErrSlowSubscriber) {
					c.SSEvent("error", gin.H{"error": "stream dropped, reconnect to resume"})
				}
				return false
			}
			c.SSEvent("progress", ev)
			return !ev.Terminal()
		case <-done:
			return false
		}
	})
}

func (h *SessionHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SessionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, usecase.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shutting down"})
	default:
		h.logger.Error("session request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func getQueryInt(name string, defaultValue int, c *gin.Context) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid query parameter, using default", "param", name, "value", raw, "error", err)
		return defaultValue
	}
	return parsed
}
