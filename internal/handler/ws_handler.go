package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/middleware"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/service"
	"github.com/testschool/assessment-backend/internal/session"
	ws "github.com/testschool/assessment-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams assessment session events to the test taker and
// receives violation reports from the browser.
type WSHandler struct {
	sessions          *session.Manager
	assessmentService *service.AssessmentService
	graceSeconds      int
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *session.Manager, assessmentService *service.AssessmentService, graceSeconds int, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions:          sessions,
		assessmentService: assessmentService,
		graceSeconds:      graceSeconds,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes. gorilla/websocket allows at most one
// concurrent writer, and controller events arrive on their own
// goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteTyped(w.conn, v)
}

func (w *wsConn) writeError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws.WriteError(w.conn, msg)
}

// AssessmentStream godoc
// WS /ws/v1/assessment/:testId/stream
// Upgrades to WebSocket for violation reporting and time synchronization.
func (h *WSHandler) AssessmentStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID := c.Param("testId")
	attempt, err := h.assessmentService.Attempt(c.Request.Context(), testID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}
	if attempt.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the attempt owner"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sink := &wsConn{conn: conn}

	if attempt.Status != model.TestStatusActive {
		sink.writeError("attempt is not active")
		return
	}

	ctrl := h.sessions.Resume(claims.UserID, attempt.ID.String(), attempt.Step, attempt.TimeSpentSeconds)

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("test_id", testID).
		Logger()

	// Last connection wins; a reconnect replaces the previous sink.
	ctrl.SetNotify(func(ev session.Event) {
		h.pushEvent(sink, ev)
	})
	defer ctrl.SetNotify(nil)

	wsLog.Info().Msg("Test taker connected")

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionViolation:
			h.handleViolation(sink, wsLog, ctrl, claims.UserID, &msg)
		case ws.ActionTimeSync:
			h.sendTimeSync(sink, ctrl.Snapshot())
		case ws.ActionPing:
			sink.write(ws.PongResponse{
				Event:           ws.EventPong,
				ServerTimestamp: time.Now().Unix(),
			})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			sink.writeError("unknown action: " + string(msg.Action))
		}
	}
}

// handleViolation records the report and, for trigger reasons, arms the
// auto-submit latch across instances before signaling the controller.
func (h *WSHandler) handleViolation(sink *wsConn, wsLog zerolog.Logger, ctrl *session.Controller, userID int, msg *ws.RequestEnvelope) {
	ctx := context.Background()

	payload, err := ws.DecodeViolation(msg)
	if err != nil {
		sink.writeError("invalid violation payload")
		return
	}
	reason := model.ViolationReason(payload.Reason)
	if !reason.Known() {
		sink.writeError("unknown violation reason: " + payload.Reason)
		return
	}

	testID := ctrl.TestID()
	forced := false
	if reason.Triggers() {
		latched, err := h.assessmentService.LatchViolation(ctx, testID)
		if err != nil {
			wsLog.Error().Err(err).Msg("Violation latch error")
		}
		// The local monitor dedupes too; the shared latch only decides
		// which instance owns the forced submission.
		if latched || err != nil {
			forced = ctrl.ReportSignal(reason)
		}
	} else {
		ctrl.ReportSignal(reason)
	}

	h.assessmentService.RecordViolation(ctx, testID, userID, reason, forced, payload.Detail)
}

func (h *WSHandler) pushEvent(sink *wsConn, ev session.Event) {
	switch ev.Type {
	case session.EventWarning:
		sink.write(ws.WarningResponse{
			Event:        ws.EventWarning,
			Reason:       string(ev.Reason),
			GraceSeconds: h.graceSeconds,
		})
	case session.EventAutoSubmitted:
		sink.write(ws.AutoSubmittedResponse{
			Event:  ws.EventAutoSubmitted,
			TestID: ev.Snapshot.TestID,
			Reason: string(model.CompletionViolation),
		})
	case session.EventCompleted:
		sink.write(ws.CompletedResponse{
			Event:  ws.EventCompleted,
			TestID: ev.Snapshot.TestID,
			Result: ev.Snapshot.Result,
		})
	case session.EventTick:
		h.sendTimeSync(sink, ev.Snapshot)
	}
}

func (h *WSHandler) sendTimeSync(sink *wsConn, snap session.Snapshot) {
	sink.write(ws.TimeSyncResponse{
		Event:           ws.EventTimeSync,
		TimeRemaining:   snap.TimeRemaining,
		ElapsedSeconds:  snap.TimeElapsed,
		ServerTimestamp: time.Now().Unix(),
	})
}
