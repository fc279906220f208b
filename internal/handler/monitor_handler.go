package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/middleware"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
)

const (
	refreshInterval   = 10 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live attempt activity to supervisors.
type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// GetLiveSnapshot godoc
// GET /admin/v1/monitor/snapshot
// Returns a one-shot view of all running attempts with violation counts.
func (h *MonitorHandler) GetLiveSnapshot(c *gin.Context) {
	snapshot, err := h.monitorService.GetLiveSnapshot(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// ListViolations godoc
// GET /admin/v1/monitor/tests/:testId/violations
// Returns the integrity-signal audit trail for an attempt.
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("testId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.monitorService.ListViolations(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": events})
}

// MonitorSSE godoc
// GET /admin/v1/monitor/stream
// Streams periodic snapshots of running attempts over Server-Sent Events.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx)

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Int("user_id", claims.UserID).Msg("Supervisor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int("user_id", claims.UserID).Msg("Supervisor disconnected from live monitor SSE")
			return

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot fetches current activity with a scoped timeout and writes a
// single SSE event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snapshot, err := h.monitorService.GetLiveSnapshot(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch live snapshot for SSE refresh")
		return
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": snapshot,
	})
	c.Writer.Flush()
}
