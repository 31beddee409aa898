package debate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rostra-live/rostra/pkg/core/clock"
	"github.com/rostra-live/rostra/pkg/core/timer"
)

// RoomsConfig carries the shared collaborators handed to every orchestrator.
type RoomsConfig struct {
	Clock     clock.Clock
	Bus       *Bus
	Guard     *VersionGuard
	Extractor Extractor
	Plan      []timer.SlotSpec
	PrepBank  time.Duration
	Logger    *slog.Logger
}

// Rooms is the registry of live orchestrators, keyed by room id. Each entry
// owns independent state; nothing is shared across rooms except the
// immutable collaborators in RoomsConfig.
type Rooms struct {
	cfg RoomsConfig

	mu    sync.Mutex
	rooms map[string]*Orchestrator
}

// NewRooms builds an empty registry.
func NewRooms(cfg RoomsConfig) *Rooms {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Guard == nil {
		cfg.Guard = NewVersionGuard()
	}
	return &Rooms{cfg: cfg, rooms: make(map[string]*Orchestrator)}
}

// Create allocates a room. An empty roomID gets a generated id; a duplicate
// id is rejected.
func (r *Rooms) Create(roomID string) (*Orchestrator, error) {
	if roomID == "" {
		roomID = "room_" + uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[roomID]; exists {
		return nil, ErrConflict
	}
	o := NewOrchestrator(Config{
		RoomID:    roomID,
		Clock:     r.cfg.Clock,
		Plan:      r.cfg.Plan,
		PrepBank:  r.cfg.PrepBank,
		Bus:       r.cfg.Bus,
		Guard:     r.cfg.Guard,
		Extractor: r.cfg.Extractor,
		Logger:    r.cfg.Logger,
	})
	r.rooms[roomID] = o
	r.cfg.Logger.Info("room created", "room_id", roomID)
	return o, nil
}

// Get returns the orchestrator for roomID.
func (r *Rooms) Get(roomID string) (*Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rooms[roomID]
	return o, ok
}

// Remove tears a room down and forgets it.
func (r *Rooms) Remove(roomID string) {
	r.mu.Lock()
	o, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()
	if ok {
		o.Close()
		r.cfg.Logger.Info("room removed", "room_id", roomID)
	}
}

// Count reports the number of live rooms.
func (r *Rooms) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// CloseAll tears down every room (process shutdown).
func (r *Rooms) CloseAll() {
	r.mu.Lock()
	all := make([]*Orchestrator, 0, len(r.rooms))
	for _, o := range r.rooms {
		all = append(all, o)
	}
	r.rooms = make(map[string]*Orchestrator)
	r.mu.Unlock()
	for _, o := range all {
		o.Close()
	}
}
