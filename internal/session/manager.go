package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/testschool/assessment-backend/internal/model"
)

// Manager holds one controller per user and indexes active controllers by
// attempt id so WebSocket connections and the deadline sweeper can reach
// them. Controllers for completed sessions stay registered until the user
// starts again or Release is called, so results remain readable.
type Manager struct {
	svc Service
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	byUser map[int]*Controller
	byTest map[string]*Controller
}

// NewManager creates an empty registry.
func NewManager(svc Service, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		svc:    svc,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "session_manager").Logger(),
		byUser: make(map[int]*Controller),
		byTest: make(map[string]*Controller),
	}
}

// Start begins an attempt for the user, creating or reusing their
// controller. A user whose controller is still Active cannot start another.
func (m *Manager) Start(ctx context.Context, userID int, step model.Step) (*Controller, *model.StartView, error) {
	m.mu.Lock()
	ctrl, ok := m.byUser[userID]
	if !ok {
		ctrl = NewController(m.svc, m.cfg, m.log, userID)
		m.byUser[userID] = ctrl
	}
	oldTest := ctrl.TestID()
	m.mu.Unlock()

	sv, err := ctrl.Start(ctx, step)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	if oldTest != "" {
		delete(m.byTest, oldTest)
	}
	m.byTest[sv.TestID] = ctrl
	m.mu.Unlock()
	return ctrl, sv, nil
}

// ByUser returns the user's controller, if any.
func (m *Manager) ByUser(userID int) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byUser[userID]
	return c, ok
}

// ByTest returns the controller owning the attempt, if any.
func (m *Manager) ByTest(testID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byTest[testID]
	return c, ok
}

// Resume registers a controller in Active for an attempt that already
// exists server-side. Used after a reconnect or process restart, when the
// persistent record says the attempt is still running but no controller
// holds it. Returns the existing controller unchanged if one already owns
// the attempt.
func (m *Manager) Resume(userID int, testID string, step model.Step, elapsed int) *Controller {
	m.mu.Lock()
	if ctrl, ok := m.byTest[testID]; ok {
		m.mu.Unlock()
		return ctrl
	}
	ctrl, ok := m.byUser[userID]
	if !ok {
		ctrl = NewController(m.svc, m.cfg, m.log, userID)
		m.byUser[userID] = ctrl
	}
	if old := ctrl.TestID(); old != "" {
		delete(m.byTest, old)
	}
	m.byTest[testID] = ctrl
	m.mu.Unlock()

	ctrl.adopt(testID, step, elapsed)
	return ctrl
}

// Release resets and unregisters the user's controller.
func (m *Manager) Release(userID int) {
	m.mu.Lock()
	ctrl, ok := m.byUser[userID]
	if ok {
		delete(m.byUser, userID)
		if t := ctrl.TestID(); t != "" {
			delete(m.byTest, t)
		}
	}
	m.mu.Unlock()
	if ok {
		ctrl.Reset()
	}
}

// Shutdown stops every controller's timer. Sessions themselves survive in
// persistent storage and are resumed on the next request.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ctrls := make([]*Controller, 0, len(m.byUser))
	for _, c := range m.byUser {
		ctrls = append(ctrls, c)
	}
	m.mu.Unlock()
	for _, c := range ctrls {
		c.timer.Stop()
		c.monitor.Disarm()
	}
	m.log.Info().Int("controllers", len(ctrls)).Msg("Session manager shut down")
}
