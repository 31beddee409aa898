package synth

import (
	"context"
	"log/slog"
	"sync"
)

// Request is one unit of synthesis work. Fragment callbacks fire in order
// with a per-request index starting at 0; the last fragment carries
// isFinal=true. Exactly one of OnComplete or OnError fires afterwards.
type Request struct {
	ParticipantID string
	RoomID        string
	TurnID        string
	Text          string
	Options       Options

	OnFragment func(index int, payload []byte, isFinal bool)
	OnComplete func()
	OnError    func(err error)
}

type participantQueue struct {
	busy    bool
	pending []Request
}

// Manager serializes synthesis per participant: at most one request is
// in flight per participant id, the rest wait FIFO. Different participants
// synthesize concurrently. A failed request reports through OnError and the
// queue moves on.
type Manager struct {
	syn    Synthesizer
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string]*participantQueue
}

// NewManager builds a queue manager over syn.
func NewManager(syn Synthesizer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		syn:    syn,
		logger: logger,
		queues: make(map[string]*participantQueue),
	}
}

// Enqueue adds req to its participant's queue and starts it immediately when
// the participant is idle.
func (m *Manager) Enqueue(ctx context.Context, req Request) {
	m.mu.Lock()
	q := m.queues[req.ParticipantID]
	if q == nil {
		q = &participantQueue{}
		m.queues[req.ParticipantID] = q
	}
	if q.busy {
		q.pending = append(q.pending, req)
		m.mu.Unlock()
		return
	}
	q.busy = true
	m.mu.Unlock()

	go m.run(ctx, req)
}

// Active reports whether a request is in flight for participantID.
func (m *Manager) Active(participantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[participantID]
	return q != nil && q.busy
}

// Pending returns how many requests are queued behind the in-flight one for
// participantID.
func (m *Manager) Pending(participantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[participantID]
	if q == nil {
		return 0
	}
	return len(q.pending)
}

// Clear drops every queued request for participantID. A request already in
// flight is not cancelled; its results are fenced downstream.
func (m *Manager) Clear(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q := m.queues[participantID]; q != nil {
		q.pending = nil
	}
}

// ClearAll drops every queued request for every participant.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queues {
		q.pending = nil
	}
}

func (m *Manager) run(ctx context.Context, req Request) {
	for {
		m.process(ctx, req)

		m.mu.Lock()
		q := m.queues[req.ParticipantID]
		if q == nil || len(q.pending) == 0 {
			if q != nil {
				q.busy = false
			}
			m.mu.Unlock()
			return
		}
		req = q.pending[0]
		q.pending = q.pending[1:]
		m.mu.Unlock()
	}
}

func (m *Manager) process(ctx context.Context, req Request) {
	stream, err := m.syn.SynthesizeStream(ctx, req.Text, req.Options)
	if err != nil {
		m.fail(req, err)
		return
	}
	defer stream.Close()

	// One-fragment lookahead so the last delivered fragment can carry the
	// final flag.
	var (
		held    []byte
		hasHeld bool
		index   int
	)
	emit := func(payload []byte, isFinal bool) {
		if req.OnFragment != nil {
			req.OnFragment(index, payload, isFinal)
		}
		index++
	}
	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		if hasHeld {
			emit(held, false)
		}
		held = chunk
		hasHeld = true
	}
	if err := stream.Err(); err != nil {
		if hasHeld {
			emit(held, false)
		}
		m.fail(req, err)
		return
	}
	if hasHeld {
		emit(held, true)
	}
	if req.OnComplete != nil {
		req.OnComplete()
	}
}

func (m *Manager) fail(req Request, err error) {
	m.logger.Warn("synthesis failed",
		"participant_id", req.ParticipantID,
		"room_id", req.RoomID,
		"turn_id", req.TurnID,
		"provider", m.syn.Name(),
		"error", err)
	if req.OnError != nil {
		req.OnError(err)
	}
}
