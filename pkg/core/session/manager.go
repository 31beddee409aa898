package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rostra-live/rostra/pkg/core/clock"
)

// Config bounds the two timers the manager owns.
type Config struct {
	// GracePeriod is the window after a disconnect during which the session
	// may be reclaimed without loss of state.
	GracePeriod time.Duration
	// TokenTTL is the absolute token lifetime measured from creation.
	TokenTTL time.Duration
}

// Manager tracks sessions for all rooms served by one process. One session
// exists per (participant, room); at most one live connection id is mapped
// per session at any time.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	byToken map[string]*record
	byConn  map[string]string // connection id -> token
	byKey   map[participantKey]string
}

type participantKey struct {
	participantID string
	roomID        string
}

type record struct {
	session   Session
	graceTask clock.Task
}

// NewManager builds a Manager. Zero config fields get operational defaults
// (30s grace period, 1h token lifetime).
func NewManager(cfg Config, clk clock.Clock, logger *slog.Logger) *Manager {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		byToken: make(map[string]*record),
		byConn:  make(map[string]string),
		byKey:   make(map[participantKey]string),
	}
}

// CreateOrReactivate attaches a connection for (participantID, roomID).
// If a session already exists it is reattached: any pending grace expiry is
// cancelled, the new connection replaces the old mapping, and the existing
// token is returned. Otherwise a fresh session and token are allocated.
func (m *Manager) CreateOrReactivate(participantID, roomID, connectionID, displayName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := participantKey{participantID: participantID, roomID: roomID}
	if token, ok := m.byKey[key]; ok {
		if rec, ok := m.byToken[token]; ok {
			m.attachLocked(rec, connectionID, displayName)
			return token
		}
	}

	token := uuid.NewString()
	now := m.clock.Now()
	rec := &record{session: Session{
		Token:           token,
		ParticipantID:   participantID,
		RoomID:          roomID,
		DisplayName:     displayName,
		CreatedAt:       now,
		LastConnectedAt: now,
		ConnectionID:    connectionID,
	}}
	m.byToken[token] = rec
	m.byKey[key] = token
	m.byConn[connectionID] = token
	m.logger.Debug("session created", "room_id", roomID, "participant_id", participantID)
	return token
}

func (m *Manager) attachLocked(rec *record, connectionID, displayName string) {
	if rec.graceTask != nil {
		rec.graceTask.Cancel()
		rec.graceTask = nil
	}
	rec.session.GracePeriodActive = false
	if rec.session.ConnectionID != "" {
		delete(m.byConn, rec.session.ConnectionID)
	}
	rec.session.ConnectionID = connectionID
	rec.session.LastConnectedAt = m.clock.Now()
	if displayName != "" {
		rec.session.DisplayName = displayName
	}
	m.byConn[connectionID] = rec.session.Token
}

// HandleDisconnect clears the connection mapping for connectionID and starts
// the grace-period expiry unless one is already pending. When the grace
// period elapses the session is destroyed and onExpire receives its final
// snapshot. Unknown connection ids are ignored.
func (m *Manager) HandleDisconnect(connectionID string, onExpire func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.byConn[connectionID]
	if !ok {
		return
	}
	delete(m.byConn, connectionID)

	rec, ok := m.byToken[token]
	if !ok {
		return
	}
	if rec.session.ConnectionID == connectionID {
		rec.session.ConnectionID = ""
	}
	if rec.session.GracePeriodActive {
		// Re-disconnecting an already-grace-period session keeps the
		// original expiry timer.
		return
	}
	rec.session.GracePeriodActive = true
	rec.graceTask = m.clock.Schedule(m.cfg.GracePeriod, func() {
		m.expire(token, onExpire)
	})
	m.logger.Debug("grace period started",
		"room_id", rec.session.RoomID,
		"participant_id", rec.session.ParticipantID,
		"grace_period", m.cfg.GracePeriod)
}

func (m *Manager) expire(token string, onExpire func(Session)) {
	m.mu.Lock()
	rec, ok := m.byToken[token]
	if !ok || !rec.session.GracePeriodActive {
		// Reconnected (or removed) before the timer fired.
		m.mu.Unlock()
		return
	}
	snapshot := rec.session
	m.removeLocked(rec)
	m.mu.Unlock()

	m.logger.Info("session expired after grace period",
		"room_id", snapshot.RoomID,
		"participant_id", snapshot.ParticipantID)
	if onExpire != nil {
		onExpire(snapshot)
	}
}

// Rejoin validates token against its absolute expiry and, on success, cancels
// any pending grace timer and rebinds the connection. It returns ErrNotFound
// for unknown tokens and ErrExpired for tokens past their lifetime; an
// expired session is destroyed as a side effect.
func (m *Manager) Rejoin(token, newConnectionID, displayName string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byToken[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	if m.clock.Now().After(rec.session.CreatedAt.Add(m.cfg.TokenTTL)) {
		m.removeLocked(rec)
		return Session{}, ErrExpired
	}
	m.attachLocked(rec, newConnectionID, displayName)
	return rec.session, nil
}

// Leave explicitly destroys a session. Unknown tokens are a no-op.
func (m *Manager) Leave(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byToken[token]; ok {
		m.removeLocked(rec)
	}
}

// DropRoom destroys every session belonging to roomID (room teardown).
func (m *Manager) DropRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byToken {
		if rec.session.RoomID == roomID {
			m.removeLocked(rec)
		}
	}
}

func (m *Manager) removeLocked(rec *record) {
	if rec.graceTask != nil {
		rec.graceTask.Cancel()
		rec.graceTask = nil
	}
	if rec.session.ConnectionID != "" {
		delete(m.byConn, rec.session.ConnectionID)
	}
	delete(m.byKey, participantKey{participantID: rec.session.ParticipantID, roomID: rec.session.RoomID})
	delete(m.byToken, rec.session.Token)
}

// IsConnected reports whether the participant has a live connection in roomID.
func (m *Manager) IsConnected(participantID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lookupLocked(participantID, roomID)
	return ok && rec.session.ConnectionID != ""
}

// IsInGracePeriod reports whether the participant is disconnected with a
// pending grace expiry in roomID.
func (m *Manager) IsInGracePeriod(participantID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lookupLocked(participantID, roomID)
	return ok && rec.session.GracePeriodActive
}

// Lookup returns the session snapshot for (participantID, roomID).
func (m *Manager) Lookup(participantID, roomID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lookupLocked(participantID, roomID)
	if !ok {
		return Session{}, false
	}
	return rec.session, true
}

// ByConnection returns the session snapshot owning connectionID.
func (m *Manager) ByConnection(connectionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.byConn[connectionID]
	if !ok {
		return Session{}, false
	}
	rec, ok := m.byToken[token]
	if !ok {
		return Session{}, false
	}
	return rec.session, true
}

// RoomSessions returns snapshots of every session in roomID.
func (m *Manager) RoomSessions(roomID string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, rec := range m.byToken {
		if rec.session.RoomID == roomID {
			out = append(out, rec.session)
		}
	}
	return out
}

func (m *Manager) lookupLocked(participantID, roomID string) (*record, bool) {
	token, ok := m.byKey[participantKey{participantID: participantID, roomID: roomID}]
	if !ok {
		return nil, false
	}
	rec, ok := m.byToken[token]
	return rec, ok
}
