package player

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rostra-live/rostra/pkg/core/clock"
)

// fixedDecoder maps every payload to a fixed-duration segment and fails on
// payloads marked bad.
type fixedDecoder struct {
	duration time.Duration
}

func (d fixedDecoder) Decode(payload []byte) (Segment, error) {
	if string(payload) == "bad" {
		return Segment{}, errors.New("corrupt payload")
	}
	return Segment{Data: payload, Duration: d.duration}, nil
}

type playRecord struct {
	speakerID string
	data      string
	start     time.Time
}

type recordingOutput struct {
	mu      sync.Mutex
	plays   []playRecord
	stopped int
}

type recordingHandle struct{ out *recordingOutput }

func (h *recordingHandle) Stop() {
	h.out.mu.Lock()
	h.out.stopped++
	h.out.mu.Unlock()
}

func (o *recordingOutput) PlayAt(speakerID string, seg Segment, start time.Time) Handle {
	o.mu.Lock()
	o.plays = append(o.plays, playRecord{speakerID: speakerID, data: string(seg.Data), start: start})
	o.mu.Unlock()
	return &recordingHandle{out: o}
}

func (o *recordingOutput) recorded() []playRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]playRecord(nil), o.plays...)
}

func newTestScheduler(fragDur time.Duration) (*Scheduler, *recordingOutput, *clock.Fake) {
	out := &recordingOutput{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	s := New(fixedDecoder{duration: fragDur}, out, clk, slog.New(slog.DiscardHandler))
	return s, out, clk
}

func TestOutOfOrderFragmentsPlayInIndexOrder(t *testing.T) {
	s, out, clk := newTestScheduler(time.Second)

	// Arrival order 2, 0, 1.
	s.SubmitFragment("x", 2, []byte("frag-2"), true)
	s.SubmitFragment("x", 0, []byte("frag-0"), false)
	s.SubmitFragment("x", 1, []byte("frag-1"), false)

	clk.Advance(3 * time.Second)

	plays := out.recorded()
	if len(plays) != 3 {
		t.Fatalf("plays = %d, want 3", len(plays))
	}
	if plays[0].data != "frag-0" || plays[1].data != "frag-1" || plays[2].data != "frag-2" {
		t.Fatalf("play order = %v", plays)
	}
	for i := 1; i < len(plays); i++ {
		if !plays[i].start.After(plays[i-1].start) {
			t.Fatalf("start times not strictly increasing: %v then %v",
				plays[i-1].start, plays[i].start)
		}
	}
}

func TestQueuedFragmentsReorderBeforePlayback(t *testing.T) {
	s, out, clk := newTestScheduler(time.Second)

	// 3 and 1 queue behind the playing fragment and must come out in index
	// order even though 3 arrived first.
	s.SubmitFragment("x", 0, []byte("frag-0"), false)
	s.SubmitFragment("x", 3, []byte("frag-3"), true)
	s.SubmitFragment("x", 1, []byte("frag-1"), false)

	clk.Advance(3 * time.Second)

	plays := out.recorded()
	if len(plays) != 3 {
		t.Fatalf("plays = %d, want 3", len(plays))
	}
	if plays[0].data != "frag-0" || plays[1].data != "frag-1" || plays[2].data != "frag-3" {
		t.Fatalf("play order = %v", plays)
	}
}

func TestBackToBackScheduling(t *testing.T) {
	s, out, clk := newTestScheduler(1500 * time.Millisecond)

	s.SubmitFragment("x", 0, []byte("a"), false)
	clk.Advance(1500 * time.Millisecond)
	s.SubmitFragment("x", 1, []byte("b"), false)
	clk.Advance(1500 * time.Millisecond)

	plays := out.recorded()
	if len(plays) != 2 {
		t.Fatalf("plays = %d, want 2", len(plays))
	}
	// Second fragment was submitted exactly at the first one's end, so it
	// starts with no gap.
	wantStart := plays[0].start.Add(1500 * time.Millisecond)
	if !plays[1].start.Equal(wantStart) {
		t.Fatalf("second start = %v, want %v", plays[1].start, wantStart)
	}
}

func TestDecodeFailureSkipsFragment(t *testing.T) {
	s, out, clk := newTestScheduler(time.Second)

	s.SubmitFragment("x", 0, []byte("good-0"), false)
	s.SubmitFragment("x", 1, []byte("bad"), false)
	s.SubmitFragment("x", 2, []byte("good-2"), true)

	clk.Advance(2 * time.Second)

	plays := out.recorded()
	if len(plays) != 2 {
		t.Fatalf("plays = %d, want 2 (bad fragment skipped)", len(plays))
	}
	if plays[0].data != "good-0" || plays[1].data != "good-2" {
		t.Fatalf("play order = %v", plays)
	}
}

func TestStopClearsOneSpeakerOnly(t *testing.T) {
	s, out, clk := newTestScheduler(time.Second)

	s.SubmitFragment("x", 0, []byte("x-0"), false)
	s.SubmitFragment("x", 1, []byte("x-1"), false)
	s.SubmitFragment("y", 0, []byte("y-0"), false)
	s.SubmitFragment("y", 1, []byte("y-1"), false)
	clk.Advance(0) // both speakers begin their first fragment

	s.Stop("x")
	if out.stopped != 1 {
		t.Fatalf("stopped handles = %d, want 1", out.stopped)
	}
	if s.PendingCount("x") != 0 || s.Playing("x") {
		t.Fatal("speaker x not fully reset")
	}

	clk.Advance(2 * time.Second)

	var xPlays, yPlays int
	for _, p := range out.recorded() {
		switch p.speakerID {
		case "x":
			xPlays++
		case "y":
			yPlays++
		}
	}
	if xPlays != 1 {
		t.Fatalf("x plays = %d, want 1 (only the pre-stop fragment)", xPlays)
	}
	if yPlays != 2 {
		t.Fatalf("y plays = %d, want 2 (unaffected by stopping x)", yPlays)
	}
}

func TestSpeakersScheduleIndependently(t *testing.T) {
	s, out, clk := newTestScheduler(time.Second)

	for i := 0; i < 3; i++ {
		s.SubmitFragment("x", i, []byte(fmt.Sprintf("x-%d", i)), i == 2)
		s.SubmitFragment("y", i, []byte(fmt.Sprintf("y-%d", i)), i == 2)
	}
	clk.Advance(3 * time.Second)

	starts := map[string][]time.Time{}
	for _, p := range out.recorded() {
		starts[p.speakerID] = append(starts[p.speakerID], p.start)
	}
	for _, speaker := range []string{"x", "y"} {
		got := starts[speaker]
		if len(got) != 3 {
			t.Fatalf("speaker %s plays = %d, want 3", speaker, len(got))
		}
		for i := 1; i < len(got); i++ {
			if !got[i].After(got[i-1]) {
				t.Fatalf("speaker %s starts not increasing: %v", speaker, got)
			}
		}
	}
}

func TestStopAll(t *testing.T) {
	s, out, clk := newTestScheduler(time.Second)

	s.SubmitFragment("x", 0, []byte("x-0"), false)
	s.SubmitFragment("y", 0, []byte("y-0"), false)
	clk.Advance(0)
	s.StopAll()

	if out.stopped != 2 {
		t.Fatalf("stopped handles = %d, want 2", out.stopped)
	}
	if s.Playing("x") || s.Playing("y") {
		t.Fatal("speakers still playing after StopAll")
	}
}
