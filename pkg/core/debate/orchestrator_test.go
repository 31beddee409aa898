package debate

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/rostra-live/rostra/pkg/core/clock"
	"github.com/rostra-live/rostra/pkg/core/timer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// blockingExtractor holds every Extract call until released, so tests can
// decide whether the result lands before or after a turn boundary.
type blockingExtractor struct {
	started chan string
	release chan struct{}
	result  Extraction
}

func newBlockingExtractor(result Extraction) *blockingExtractor {
	return &blockingExtractor{
		started: make(chan string, 8),
		release: make(chan struct{}),
		result:  result,
	}
}

func (e *blockingExtractor) Extract(ctx context.Context, roomID, transcript string) (Extraction, error) {
	e.started <- transcript
	select {
	case <-e.release:
		return e.result, nil
	case <-ctx.Done():
		return Extraction{}, ctx.Err()
	}
}

func newTestOrchestrator(t *testing.T, bus *Bus, ext Extractor) (*Orchestrator, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	o := NewOrchestrator(Config{
		RoomID:    "room-1",
		Clock:     clk,
		PrepBank:  timer.DefaultPrepBank,
		Bus:       bus,
		Extractor: ext,
		Logger:    testLogger(),
	})
	return o, clk
}

func assignBoth(t *testing.T, o *Orchestrator) {
	t.Helper()
	if err := o.AssignSide(timer.SidePro, "alice"); err != nil {
		t.Fatalf("assign pro: %v", err)
	}
	if err := o.AssignSide(timer.SideCon, "bob"); err != nil {
		t.Fatalf("assign con: %v", err)
	}
}

// subscribeEvents drains the room topic in the background, acking every
// message as it arrives. The bus blocks publishers until all subscribers
// ack, so a test that consumed on its own goroutine would deadlock against
// the orchestrator calls it makes.
func subscribeEvents(t *testing.T, bus *Bus, roomID string) <-chan Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	msgs, err := bus.Subscribe(ctx, roomID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	out := make(chan Event, 128)
	go func() {
		defer close(out)
		for msg := range msgs {
			ev, err := DecodeEvent(msg)
			msg.Ack()
			if err != nil {
				continue
			}
			out <- ev
		}
	}()
	return out
}

// nextEvent returns the next turn-level event, skipping the timer snapshots
// interleaved at every clock transition.
func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event stream closed")
			}
			if ev.Type == EventTimerUpdate {
				continue
			}
			return ev
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func TestAssignSide(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)

	if err := o.AssignSide(timer.SidePro, "alice"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := o.AssignSide(timer.SidePro, "alice"); err != nil {
		t.Fatalf("re-claim by owner should be idempotent: %v", err)
	}
	if err := o.AssignSide(timer.SidePro, "bob"); err != ErrConflict {
		t.Fatalf("claim of taken side = %v, want ErrConflict", err)
	}

	// Switching sides releases the old one.
	if err := o.AssignSide(timer.SideCon, "alice"); err != nil {
		t.Fatalf("switch sides: %v", err)
	}
	if side, ok := o.SideOf("alice"); !ok || side != timer.SideCon {
		t.Fatalf("SideOf(alice) = %q, %v; want con, true", side, ok)
	}
	if err := o.AssignSide(timer.SidePro, "bob"); err != nil {
		t.Fatalf("pro should be free after alice switched: %v", err)
	}

	if err := o.AssignSide(timer.Side("judge"), "carol"); err != ErrConflict {
		t.Fatalf("unknown side = %v, want ErrConflict", err)
	}
}

func TestStartPreconditions(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)

	if err := o.Start(); err != ErrNotReady {
		t.Fatalf("Start with no sides = %v, want ErrNotReady", err)
	}
	if err := o.AssignSide(timer.SidePro, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := o.Start(); err != ErrNotReady {
		t.Fatalf("Start with one side = %v, want ErrNotReady", err)
	}
	if err := o.AssignSide(timer.SideCon, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !o.Active() {
		t.Fatal("orchestrator not active after Start")
	}
	if err := o.Start(); err != ErrConflict {
		t.Fatalf("second Start = %v, want ErrConflict", err)
	}
}

func TestSpeakerResolution(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)
	assignBoth(t, o)

	if id, ok := o.Speaker(timer.SlotOpeningPro); !ok || id != "alice" {
		t.Fatalf("Speaker(opening_pro) = %q, %v; want alice, true", id, ok)
	}
	if id, ok := o.Speaker(timer.SlotRebuttalCon); !ok || id != "bob" {
		t.Fatalf("Speaker(rebuttal_con) = %q, %v; want bob, true", id, ok)
	}
	if _, ok := o.Speaker(timer.Slot("bogus")); ok {
		t.Fatal("unknown slot resolved a speaker")
	}
}

func TestTurnSequenceEvents(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	o, _ := newTestOrchestrator(t, bus, nil)
	assignBoth(t, o)
	events := subscribeEvents(t, bus, "room-1")

	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ev := nextEvent(t, events); ev.Type != EventDebateStart {
		t.Fatalf("event 1 = %s, want debate_start", ev.Type)
	}
	ev := nextEvent(t, events)
	if ev.Type != EventTurnStart || ev.Slot != timer.SlotOpeningPro || ev.SpeakerID != "alice" {
		t.Fatalf("turn_start = %+v, want opening_pro by alice", ev)
	}

	o.EndSpeech()
	ev = nextEvent(t, events)
	if ev.Type != EventTurnEnd || ev.Slot != timer.SlotOpeningPro {
		t.Fatalf("turn_end = %+v, want opening_pro", ev)
	}
	if ev.NextSlot == nil || *ev.NextSlot != timer.SlotOpeningCon {
		t.Fatalf("turn_end next = %v, want opening_con", ev.NextSlot)
	}

	// The next slot does not start by itself.
	if o.Timer().IsRunning {
		t.Fatal("clock running between turns")
	}
	if !o.StartNextSpeech() {
		t.Fatal("StartNextSpeech rejected")
	}
	ev = nextEvent(t, events)
	if ev.Type != EventTurnStart || ev.Slot != timer.SlotOpeningCon || ev.SpeakerID != "bob" {
		t.Fatalf("turn_start = %+v, want opening_con by bob", ev)
	}
}

func TestEventDeliveryMatchesPublishOrder(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	o, _ := newTestOrchestrator(t, bus, nil)
	assignBoth(t, o)
	events := subscribeEvents(t, bus, "room-1")

	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.EndSpeech()

	// Each clock transition publishes one timer snapshot; subscribers see
	// the whole sequence exactly as published.
	want := []EventType{
		EventDebateStart,
		EventTimerUpdate,
		EventTurnStart,
		EventTimerUpdate,
		EventTurnEnd,
	}
	for i, w := range want {
		select {
		case ev := <-events:
			if ev.Type != w {
				t.Fatalf("event %d = %s, want %s", i, ev.Type, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d (%s)", i, w)
		}
	}
}

func TestCloseRunsRegisteredHooks(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)

	calls := 0
	o.OnClose(func() { calls++ })
	o.OnClose(func() { calls++ })
	o.Close()
	if calls != 2 {
		t.Fatalf("close hooks ran %d times, want 2", calls)
	}

	// Registration after teardown fires immediately.
	o.OnClose(func() { calls++ })
	if calls != 3 {
		t.Fatalf("late hook ran %d times, want 3", calls)
	}
}

func TestDebateEndAfterFinalSlot(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	o, _ := newTestOrchestrator(t, bus, nil)
	assignBoth(t, o)
	events := subscribeEvents(t, bus, "room-1")

	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	plan := timer.DefaultPlan()
	o.EndSpeech()
	for i := 1; i < len(plan); i++ {
		if !o.StartNextSpeech() {
			t.Fatalf("StartNextSpeech rejected at slot %d", i)
		}
		o.EndSpeech()
	}

	var last, secondLast Event
	for drained := false; !drained; {
		select {
		case ev := <-events:
			secondLast, last = last, ev
		case <-time.After(500 * time.Millisecond):
			drained = true
		}
	}
	if last.Type != EventDebateEnd {
		t.Fatalf("final event = %s, want debate_end", last.Type)
	}
	if secondLast.Type != EventTurnEnd || secondLast.NextSlot != nil {
		t.Fatalf("penultimate event = %+v, want terminal turn_end", secondLast)
	}
	if o.Active() {
		t.Fatal("orchestrator still active after final slot")
	}
	if o.StartNextSpeech() {
		t.Fatal("StartNextSpeech accepted after debate end")
	}
}

func TestStaleExtractionDropped(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ext := newBlockingExtractor(Extraction{Arguments: []string{"a1"}})
	o, _ := newTestOrchestrator(t, bus, ext)
	assignBoth(t, o)
	events := subscribeEvents(t, bus, "room-1")

	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	nextEvent(t, events) // debate_start
	nextEvent(t, events) // turn_start

	o.SubmitTranscript(context.Background(), "alice", "opening remarks")
	select {
	case <-ext.started:
	case <-time.After(2 * time.Second):
		t.Fatal("extraction never started")
	}

	// The turn ends before the result arrives.
	o.EndSpeech()
	if ev := nextEvent(t, events); ev.Type != EventTurnEnd {
		t.Fatalf("event = %s, want turn_end", ev.Type)
	}
	close(ext.release)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s after boundary; stale result applied", ev.Type)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestExtractionPublishedWhileCurrent(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ext := newBlockingExtractor(Extraction{Arguments: []string{"claim one", "claim two"}})
	close(ext.release)
	o, _ := newTestOrchestrator(t, bus, ext)
	assignBoth(t, o)
	events := subscribeEvents(t, bus, "room-1")

	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	nextEvent(t, events) // debate_start
	nextEvent(t, events) // turn_start

	o.SubmitTranscript(context.Background(), "alice", "first point.")
	ev := nextEvent(t, events)
	if ev.Type != EventArgumentsExtracted {
		t.Fatalf("event = %s, want arguments_extracted", ev.Type)
	}
	if len(ev.Arguments) != 2 || ev.Arguments[0] != "claim one" {
		t.Fatalf("arguments = %v", ev.Arguments)
	}
	if ev.Version != 0 {
		t.Fatalf("version = %d, want 0 for the first turn", ev.Version)
	}

	// Transcript accumulates across submissions within one turn.
	o.SubmitTranscript(context.Background(), "alice", "second point.")
	<-ext.started
	got := <-ext.started
	if got != "first point. second point." {
		t.Fatalf("accumulated transcript = %q", got)
	}
}

func TestRoomsRegistry(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	rooms := NewRooms(RoomsConfig{
		Clock:    clock.NewFake(time.Unix(1_700_000_000, 0)),
		Bus:      bus,
		PrepBank: timer.DefaultPrepBank,
		Logger:   testLogger(),
	})

	a, err := rooms.Create("")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.RoomID() == "" {
		t.Fatal("generated room id is empty")
	}
	if _, err := rooms.Create(a.RoomID()); err != ErrConflict {
		t.Fatalf("duplicate create = %v, want ErrConflict", err)
	}

	b, err := rooms.Create("debate-42")
	if err != nil {
		t.Fatalf("create named: %v", err)
	}
	if got, ok := rooms.Get("debate-42"); !ok || got != b {
		t.Fatal("Get did not return the named room")
	}
	if rooms.Count() != 2 {
		t.Fatalf("Count = %d, want 2", rooms.Count())
	}

	rooms.Remove(a.RoomID())
	if _, ok := rooms.Get(a.RoomID()); ok {
		t.Fatal("removed room still resolvable")
	}
	if rooms.Count() != 1 {
		t.Fatalf("Count after remove = %d, want 1", rooms.Count())
	}

	rooms.CloseAll()
	if rooms.Count() != 0 {
		t.Fatalf("Count after CloseAll = %d, want 0", rooms.Count())
	}
}
