// Package timer drives the per-room turn-taking clock: timed speech slots in
// a fixed sequence plus a banked prep-time allowance per side. Exactly one of
// {speech clock running, prep clock running, stopped} holds at any instant.
package timer

import (
	"sync"
	"time"

	"github.com/rostra-live/rostra/pkg/core/clock"
)

// State is the snapshot broadcast on every tick. It is replaced wholesale;
// callers never mutate it.
type State struct {
	// SpeechTimeRemaining is whole seconds left in the current slot.
	SpeechTimeRemaining int `json:"speech_time_remaining"`
	// PrepRemaining is whole seconds left in each side's prep bank.
	PrepRemaining map[Side]int `json:"prep_remaining"`
	IsRunning     bool         `json:"is_running"`
	// CurrentSlot is empty while no speech phase is loaded (idle or prep).
	CurrentSlot Slot `json:"current_slot,omitempty"`
	IsPrepTime  bool `json:"is_prep_time"`
	// PrepSide is set only while IsPrepTime.
	PrepSide Side `json:"prep_side,omitempty"`
}

// Callbacks receive timer transitions. They are invoked without the
// controller lock held; implementations may call back into the controller.
type Callbacks struct {
	// OnTick fires once per second while a clock runs, and on every
	// explicit state change.
	OnTick func(State)
	// OnSpeechEnd fires when a slot completes, manually or by expiry.
	// next is nil when the sequence is exhausted.
	OnSpeechEnd func(completed Slot, next *Slot)
	// OnPrepEnd fires when a prep interval stops, manually or by
	// exhausting the side's bank.
	OnPrepEnd func(side Side)
}

// Controller is the per-room timer state machine. All mutation goes through
// one transition path under the lock; tick callbacks carry a generation
// number and re-check it before applying effects, so a manual action always
// wins over a timer firing at the same moment.
type Controller struct {
	clock clock.Clock
	cb    Callbacks
	plan  []SlotSpec

	mu         sync.Mutex
	gen        uint64
	tickTask   clock.Task
	idx        int // index into plan; len(plan) means complete
	started    bool
	running    bool
	inPrep     bool
	prepSide   Side
	speechLeft time.Duration
	prep       map[Side]time.Duration
}

// New builds a Controller over the given slot plan. A nil or empty plan uses
// DefaultPlan; prepBank <= 0 uses DefaultPrepBank.
func New(clk clock.Clock, plan []SlotSpec, prepBank time.Duration, cb Callbacks) *Controller {
	if clk == nil {
		clk = clock.System()
	}
	if len(plan) == 0 {
		plan = DefaultPlan()
	}
	if prepBank <= 0 {
		prepBank = DefaultPrepBank
	}
	return &Controller{
		clock: clk,
		cb:    cb,
		plan:  plan,
		idx:   0,
		prep: map[Side]time.Duration{
			SidePro: prepBank,
			SideCon: prepBank,
		},
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		SpeechTimeRemaining: int(c.speechLeft / time.Second),
		PrepRemaining: map[Side]int{
			SidePro: int(c.prep[SidePro] / time.Second),
			SideCon: int(c.prep[SideCon] / time.Second),
		},
		IsRunning:  c.running,
		IsPrepTime: c.inPrep,
	}
	if c.inPrep {
		s.PrepSide = c.prepSide
	} else if c.started && c.idx < len(c.plan) {
		s.CurrentSlot = c.plan[c.idx].Slot
	}
	return s
}

// Complete reports whether every slot in the sequence has finished.
func (c *Controller) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx >= len(c.plan)
}

// CurrentSpec returns the spec of the slot due to run (or running), if any.
func (c *Controller) CurrentSpec() (SlotSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.plan) {
		return SlotSpec{}, false
	}
	return c.plan[c.idx], true
}

// StartDebate resets to the first slot and starts its clock.
func (c *Controller) StartDebate() {
	c.mu.Lock()
	c.stopClockLocked()
	c.idx = 0
	c.started = true
	c.inPrep = false
	c.prepSide = ""
	c.speechLeft = c.plan[0].Duration
	c.running = true
	c.scheduleTickLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
}

// StartSpeech stops any running clock, loads the duration for slot, and
// starts its countdown. Unknown slots report false with no state change.
func (c *Controller) StartSpeech(slot Slot) bool {
	c.mu.Lock()
	target := -1
	for i, spec := range c.plan {
		if spec.Slot == slot {
			target = i
			break
		}
	}
	if target < 0 {
		c.mu.Unlock()
		return false
	}
	c.stopClockLocked()
	c.idx = target
	c.started = true
	c.inPrep = false
	c.prepSide = ""
	c.speechLeft = c.plan[target].Duration
	c.running = true
	c.scheduleTickLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
	return true
}

// StartNext starts the slot the sequence is currently due on. It reports
// false once the sequence is exhausted.
func (c *Controller) StartNext() bool {
	c.mu.Lock()
	if c.idx >= len(c.plan) {
		c.mu.Unlock()
		return false
	}
	c.stopClockLocked()
	c.started = true
	c.inPrep = false
	c.prepSide = ""
	c.speechLeft = c.plan[c.idx].Duration
	c.running = true
	c.scheduleTickLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
	return true
}

// StartPrep stops any running clock and starts a countdown against side's
// prep bank. It fails if the bank is already exhausted.
func (c *Controller) StartPrep(side Side) bool {
	c.mu.Lock()
	if c.prep[side] <= 0 {
		c.mu.Unlock()
		return false
	}
	c.stopClockLocked()
	c.inPrep = true
	c.prepSide = side
	c.running = true
	c.scheduleTickLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
	return true
}

// EndPrep stops a running prep interval. No-op outside prep.
func (c *Controller) EndPrep() {
	c.mu.Lock()
	if !c.inPrep {
		c.mu.Unlock()
		return
	}
	c.stopClockLocked()
	side := c.prepSide
	c.inPrep = false
	c.prepSide = ""
	c.running = false
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
	if c.cb.OnPrepEnd != nil {
		c.cb.OnPrepEnd(side)
	}
}

// EndSpeech ends the current slot and advances the sequence. The clock is
// stopped before any state is read, so a manual end always takes precedence
// over an in-flight expiry.
func (c *Controller) EndSpeech() {
	c.mu.Lock()
	if !c.started || c.inPrep || c.idx >= len(c.plan) {
		c.mu.Unlock()
		return
	}
	c.endSpeechLocked()
}

// endSpeechLocked finishes the current slot and releases the lock before
// invoking callbacks.
func (c *Controller) endSpeechLocked() {
	c.stopClockLocked()
	completed := c.plan[c.idx].Slot
	c.speechLeft = 0
	c.running = false
	c.idx++
	var next *Slot
	if c.idx < len(c.plan) {
		n := c.plan[c.idx].Slot
		next = &n
	}
	state := c.stateLocked()
	c.mu.Unlock()

	c.emitTick(state)
	if c.cb.OnSpeechEnd != nil {
		c.cb.OnSpeechEnd(completed, next)
	}
}

// Pause stops the running clock without ending the phase.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopClockLocked()
	c.running = false
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
}

// Resume restarts a paused clock. Resuming a phase with nothing left is a
// no-op; the phase is treated as already ended.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	if c.inPrep {
		if c.prep[c.prepSide] <= 0 {
			c.mu.Unlock()
			return
		}
	} else {
		if !c.started || c.idx >= len(c.plan) || c.speechLeft <= 0 {
			c.mu.Unlock()
			return
		}
	}
	c.running = true
	c.scheduleTickLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
}

// Stop halts everything (room teardown).
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopClockLocked()
	c.running = false
	c.mu.Unlock()
}

func (c *Controller) stopClockLocked() {
	c.gen++
	if c.tickTask != nil {
		c.tickTask.Cancel()
		c.tickTask = nil
	}
}

func (c *Controller) scheduleTickLocked() {
	gen := c.gen
	c.tickTask = c.clock.Schedule(time.Second, func() { c.tick(gen) })
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		// A manual action stopped or restarted the clock after this tick
		// was scheduled.
		c.mu.Unlock()
		return
	}

	if c.inPrep {
		c.prep[c.prepSide] -= time.Second
		if c.prep[c.prepSide] <= 0 {
			c.prep[c.prepSide] = 0
			c.stopClockLocked()
			side := c.prepSide
			c.inPrep = false
			c.prepSide = ""
			c.running = false
			state := c.stateLocked()
			c.mu.Unlock()
			c.emitTick(state)
			if c.cb.OnPrepEnd != nil {
				c.cb.OnPrepEnd(side)
			}
			return
		}
		c.scheduleTickLocked()
		state := c.stateLocked()
		c.mu.Unlock()
		c.emitTick(state)
		return
	}

	c.speechLeft -= time.Second
	if c.speechLeft <= 0 {
		c.speechLeft = 0
		c.endSpeechLocked()
		return
	}
	c.scheduleTickLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	c.emitTick(state)
}

func (c *Controller) emitTick(s State) {
	if c.cb.OnTick != nil {
		c.cb.OnTick(s)
	}
}
