// Package debate coordinates one room's turn sequence: it resolves which
// participant speaks each slot, drives the turn timer, fences asynchronous
// results against turn boundaries, and publishes room events on the bus.
package debate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rostra-live/rostra/pkg/core/clock"
	"github.com/rostra-live/rostra/pkg/core/timer"
)

var (
	// ErrConflict is returned when an operation would contradict existing
	// state: starting an active debate, claiming a taken side.
	ErrConflict = errors.New("conflict with current debate state")
	// ErrNotReady is returned when a debate is started before both sides
	// are assigned.
	ErrNotReady = errors.New("both sides must be assigned")
)

// Config wires one Orchestrator.
type Config struct {
	RoomID    string
	Clock     clock.Clock
	Plan      []timer.SlotSpec
	PrepBank  time.Duration
	Bus       *Bus
	Guard     *VersionGuard
	Extractor Extractor
	Logger    *slog.Logger
}

// Orchestrator sequences the speech turns of a single room. Exactly one
// instance exists per active room; all mutation of the room's turn state
// goes through it.
type Orchestrator struct {
	roomID    string
	logger    *slog.Logger
	bus       *Bus
	guard     *VersionGuard
	extractor Extractor
	plan      []timer.SlotSpec
	ctrl      *timer.Controller

	mu         sync.Mutex
	active     bool
	sides      map[timer.Side]string
	transcript strings.Builder
	closeFns   []func()
	closed     bool
}

// NewOrchestrator builds the orchestrator and its timer controller.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Guard == nil {
		cfg.Guard = NewVersionGuard()
	}
	if len(cfg.Plan) == 0 {
		cfg.Plan = timer.DefaultPlan()
	}
	o := &Orchestrator{
		roomID:    cfg.RoomID,
		logger:    cfg.Logger,
		bus:       cfg.Bus,
		guard:     cfg.Guard,
		extractor: cfg.Extractor,
		plan:      cfg.Plan,
		sides:     make(map[timer.Side]string),
	}
	o.ctrl = timer.New(cfg.Clock, cfg.Plan, cfg.PrepBank, timer.Callbacks{
		OnTick:      o.onTick,
		OnSpeechEnd: o.onSpeechEnd,
		OnPrepEnd:   o.onPrepEnd,
	})
	return o
}

// RoomID returns the owning room id.
func (o *Orchestrator) RoomID() string { return o.roomID }

// Guard exposes the room's version guard to collaborators issuing
// turn-scoped async work.
func (o *Orchestrator) Guard() *VersionGuard { return o.guard }

// Timer returns the current timer snapshot.
func (o *Orchestrator) Timer() timer.State { return o.ctrl.State() }

// Active reports whether a debate is running in this room.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// AssignSide claims a side for a participant. Claiming an already-taken side
// for a different participant is rejected with no state change.
func (o *Orchestrator) AssignSide(side timer.Side, participantID string) error {
	if side != timer.SidePro && side != timer.SideCon {
		return ErrConflict
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if owner, ok := o.sides[side]; ok && owner != participantID {
		return ErrConflict
	}
	// A participant holds at most one side.
	for s, owner := range o.sides {
		if owner == participantID && s != side {
			delete(o.sides, s)
		}
	}
	o.sides[side] = participantID
	return nil
}

// SideOf returns the side held by participantID.
func (o *Orchestrator) SideOf(participantID string) (timer.Side, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for side, owner := range o.sides {
		if owner == participantID {
			return side, true
		}
	}
	return "", false
}

// Speaker resolves the participant assigned to speak slot.
func (o *Orchestrator) Speaker(slot timer.Slot) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speakerLocked(slot)
}

func (o *Orchestrator) speakerLocked(slot timer.Slot) (string, bool) {
	for _, spec := range o.plan {
		if spec.Slot == slot {
			id, ok := o.sides[spec.Side]
			return id, ok && id != ""
		}
	}
	return "", false
}

// Start begins the debate at the first slot. Starting twice is rejected.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return ErrConflict
	}
	if o.sides[timer.SidePro] == "" || o.sides[timer.SideCon] == "" {
		o.mu.Unlock()
		return ErrNotReady
	}
	o.active = true
	first := o.plan[0].Slot
	speaker, _ := o.speakerLocked(first)
	o.mu.Unlock()

	o.publish(Event{Type: EventDebateStart, RoomID: o.roomID})
	o.ctrl.StartDebate()
	o.publish(Event{Type: EventTurnStart, RoomID: o.roomID, Slot: first, SpeakerID: speaker})
	return nil
}

// StartNextSpeech starts the next due slot. It fails if the debate is not
// active or the assigned speaker cannot be resolved.
func (o *Orchestrator) StartNextSpeech() bool {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return false
	}
	spec, ok := o.ctrl.CurrentSpec()
	if !ok {
		o.mu.Unlock()
		return false
	}
	speaker, ok := o.speakerLocked(spec.Slot)
	if !ok {
		o.mu.Unlock()
		return false
	}
	o.mu.Unlock()

	if !o.ctrl.StartNext() {
		return false
	}
	o.publish(Event{Type: EventTurnStart, RoomID: o.roomID, Slot: spec.Slot, SpeakerID: speaker})
	return true
}

// EndSpeech ends the current slot (user action).
func (o *Orchestrator) EndSpeech() { o.ctrl.EndSpeech() }

// StartPrep begins a prep interval for side.
func (o *Orchestrator) StartPrep(side timer.Side) bool {
	if !o.ctrl.StartPrep(side) {
		return false
	}
	o.publish(Event{Type: EventPrepStart, RoomID: o.roomID, Side: side})
	return true
}

// EndPrep stops a running prep interval.
func (o *Orchestrator) EndPrep() { o.ctrl.EndPrep() }

// Pause stops the running clock without ending the phase.
func (o *Orchestrator) Pause() { o.ctrl.Pause() }

// Resume restarts a paused clock. Reconnection does not call this; an
// explicit user action is required to resume a paused speech.
func (o *Orchestrator) Resume() { o.ctrl.Resume() }

// SubmitTranscript records transcript text for the turn in progress and
// issues asynchronous argument extraction fenced by the version captured
// now. A result arriving after the turn has ended is dropped.
func (o *Orchestrator) SubmitTranscript(ctx context.Context, speakerID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.mu.Lock()
	if o.transcript.Len() > 0 {
		o.transcript.WriteByte(' ')
	}
	o.transcript.WriteString(text)
	full := o.transcript.String()
	o.mu.Unlock()

	if o.extractor == nil {
		return
	}
	captured := o.guard.Current(o.roomID)
	go func() {
		result, err := o.extractor.Extract(ctx, o.roomID, full)
		if err != nil {
			o.logger.Warn("argument extraction failed", "room_id", o.roomID, "error", err)
			return
		}
		if !o.guard.IsCurrent(o.roomID, captured) {
			o.logger.Debug("dropping stale extraction result",
				"room_id", o.roomID, "captured_version", captured)
			return
		}
		o.publish(Event{
			Type:      EventArgumentsExtracted,
			RoomID:    o.roomID,
			SpeakerID: speakerID,
			Arguments: result.Arguments,
			Version:   captured,
		})
	}()
}

// OnClose registers fn to run when the room is torn down. Collaborators with
// per-room goroutines (the bot speaker, for one) use it to stop with the
// room. Registering after Close runs fn immediately.
func (o *Orchestrator) OnClose(fn func()) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		fn()
		return
	}
	o.closeFns = append(o.closeFns, fn)
	o.mu.Unlock()
}

// Close tears the room down: stops the timer, forgets guard state, and runs
// every registered close hook.
func (o *Orchestrator) Close() {
	o.ctrl.Stop()
	o.guard.Drop(o.roomID)
	o.mu.Lock()
	o.active = false
	fns := o.closeFns
	o.closeFns = nil
	o.closed = true
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (o *Orchestrator) onTick(s timer.State) {
	o.publish(Event{Type: EventTimerUpdate, RoomID: o.roomID, Timer: &s})
}

func (o *Orchestrator) onSpeechEnd(completed timer.Slot, next *timer.Slot) {
	o.guard.Advance(o.roomID)
	o.mu.Lock()
	o.transcript.Reset()
	done := next == nil
	if done {
		o.active = false
	}
	o.mu.Unlock()

	o.publish(Event{Type: EventTurnEnd, RoomID: o.roomID, Slot: completed, NextSlot: next})
	if done {
		o.publish(Event{Type: EventDebateEnd, RoomID: o.roomID})
	}
}

func (o *Orchestrator) onPrepEnd(side timer.Side) {
	o.publish(Event{Type: EventPrepEnd, RoomID: o.roomID, Side: side})
}

func (o *Orchestrator) publish(ev Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ev); err != nil {
		o.logger.Warn("publish event", "room_id", o.roomID, "event", ev.Type, "error", err)
	}
}
