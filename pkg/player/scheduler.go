// Package player schedules received audio fragments for gapless playback.
// Fragments arrive over the network tagged with sequence indices and may be
// reordered in transit; the scheduler replays them per speaker in index
// order, back to back.
package player

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rostra-live/rostra/pkg/core/clock"
)

// Segment is one decoded audio fragment ready for the output device.
type Segment struct {
	Data     []byte
	Duration time.Duration
}

// Decoder turns a wire payload into playable audio.
type Decoder interface {
	Decode(payload []byte) (Segment, error)
}

// Handle refers to one in-progress playback on the output device.
type Handle interface {
	Stop()
}

// Output is the playback device. PlayAt starts seg at the given wall time;
// implementations own the actual audio pipeline.
type Output interface {
	PlayAt(speakerID string, seg Segment, start time.Time) Handle
}

type fragment struct {
	index   int
	payload []byte
	isFinal bool
}

type speakerState struct {
	pending  []fragment
	playing  bool
	next     time.Time // earliest start for the next fragment
	handle   Handle
	endTask  clock.Task
	pumpTask clock.Task
	gen      uint64
}

// Scheduler reorders and replays audio fragments per speaker. Each speaker
// id has fully independent queue and timing state; one speaker's stream
// never delays another's.
type Scheduler struct {
	dec    Decoder
	out    Output
	clk    clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	speakers map[string]*speakerState
}

// New builds a scheduler over the given decoder and output device.
func New(dec Decoder, out Output, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Scheduler{
		dec:      dec,
		out:      out,
		clk:      clk,
		logger:   logger,
		speakers: make(map[string]*speakerState),
	}
}

// SubmitFragment queues one fragment for its speaker and starts playback if
// the speaker is idle. Out-of-order arrival is expected; fragments are
// replayed in increasing index order.
func (s *Scheduler) SubmitFragment(speakerID string, sequenceIndex int, payload []byte, isFinal bool) {
	s.mu.Lock()
	st := s.speakers[speakerID]
	if st == nil {
		st = &speakerState{}
		s.speakers[speakerID] = st
	}
	st.pending = append(st.pending, fragment{index: sequenceIndex, payload: payload, isFinal: isFinal})
	sort.SliceStable(st.pending, func(i, j int) bool {
		return st.pending[i].index < st.pending[j].index
	})
	if !st.playing && st.pumpTask == nil {
		// Start on a zero-delay task rather than inline so a burst of
		// reordered fragments sorts before the first pop.
		gen := st.gen
		st.pumpTask = s.clk.Schedule(0, func() {
			s.startPump(speakerID, gen)
		})
	}
	s.mu.Unlock()
}

func (s *Scheduler) startPump(speakerID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.speakers[speakerID]
	if st == nil || st.gen != gen {
		return
	}
	st.pumpTask = nil
	if !st.playing {
		s.pumpLocked(speakerID, st)
	}
}

// Stop halts one speaker's playback and discards its queue.
func (s *Scheduler) Stop(speakerID string) {
	s.mu.Lock()
	st := s.speakers[speakerID]
	if st == nil {
		s.mu.Unlock()
		return
	}
	handle := s.resetLocked(st)
	delete(s.speakers, speakerID)
	s.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// StopAll halts every speaker.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	var handles []Handle
	for _, st := range s.speakers {
		if h := s.resetLocked(st); h != nil {
			handles = append(handles, h)
		}
	}
	s.speakers = make(map[string]*speakerState)
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Playing reports whether a fragment is currently scheduled for speakerID.
func (s *Scheduler) Playing(speakerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.speakers[speakerID]
	return st != nil && st.playing
}

// PendingCount returns the number of queued fragments for speakerID.
func (s *Scheduler) PendingCount(speakerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.speakers[speakerID]
	if st == nil {
		return 0
	}
	return len(st.pending)
}

// resetLocked invalidates scheduled work and returns the live handle for the
// caller to stop outside the lock.
func (s *Scheduler) resetLocked(st *speakerState) Handle {
	st.gen++
	if st.endTask != nil {
		st.endTask.Cancel()
		st.endTask = nil
	}
	if st.pumpTask != nil {
		st.pumpTask.Cancel()
		st.pumpTask = nil
	}
	handle := st.handle
	st.handle = nil
	st.playing = false
	st.pending = nil
	st.next = time.Time{}
	return handle
}

// pumpLocked starts the lowest-index pending fragment. Decode failures are
// skipped so one bad fragment cannot stall the stream.
func (s *Scheduler) pumpLocked(speakerID string, st *speakerState) {
	for len(st.pending) > 0 {
		frag := st.pending[0]
		st.pending = st.pending[1:]

		seg, err := s.dec.Decode(frag.payload)
		if err != nil {
			s.logger.Warn("dropping undecodable fragment",
				"speaker_id", speakerID, "sequence_index", frag.index, "error", err)
			continue
		}

		now := s.clk.Now()
		start := st.next
		if start.Before(now) {
			start = now
		}
		st.handle = s.out.PlayAt(speakerID, seg, start)
		st.next = start.Add(seg.Duration)
		st.playing = true

		gen := st.gen
		delay := st.next.Sub(now)
		st.endTask = s.clk.Schedule(delay, func() {
			s.onFragmentEnd(speakerID, gen)
		})
		return
	}
	st.playing = false
	st.handle = nil
}

func (s *Scheduler) onFragmentEnd(speakerID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.speakers[speakerID]
	if st == nil || st.gen != gen {
		return
	}
	st.playing = false
	st.handle = nil
	st.endTask = nil
	s.pumpLocked(speakerID, st)
}
