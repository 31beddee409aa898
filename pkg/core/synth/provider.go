// Package synth turns argument text into streamed speech audio. A Manager
// serializes synthesis per participant; the Synthesizer contract hides the
// concrete speech backend.
package synth

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when audio is pushed into a closed stream.
var ErrStreamClosed = errors.New("synthesis stream closed")

// Options selects voice and output format for one synthesis request.
type Options struct {
	Voice      string  // voice identifier, backend-specific
	Speed      float64 // speed multiplier, 1.0 when zero
	Language   string  // BCP-47 language code
	Format     string  // "pcm", "wav" or "mp3"
	SampleRate int     // output sample rate in Hz
}

// Synthesizer converts text into a stream of audio fragments.
type Synthesizer interface {
	// Name returns the backend identifier.
	Name() string

	// SynthesizeStream starts synthesis of text and returns immediately;
	// audio arrives on the stream's Chunks channel.
	SynthesizeStream(ctx context.Context, text string, opts Options) (*Stream, error)
}

// Stream carries the audio fragments of one synthesis request. The producer
// pushes chunks and finishes (or fails) the stream; the consumer ranges over
// Chunks and checks Err once the channel closes.
type Stream struct {
	chunks chan []byte
	err    error
	done   chan struct{}
}

// NewStream creates an open stream. Backends push into it from their own
// goroutine.
func NewStream() *Stream {
	return &Stream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio fragments. It is closed when the
// request completes or fails.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Err blocks until the stream is finished and returns its terminal error,
// if any.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Close abandons the stream from the consumer side.
func (s *Stream) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

// Push delivers one audio fragment. Returns ErrStreamClosed if the consumer
// already closed the stream.
func (s *Stream) Push(chunk []byte) error {
	select {
	case s.chunks <- chunk:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

// Finish marks successful completion and closes the chunk channel.
func (s *Stream) Finish() {
	close(s.chunks)
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Fail records err and closes the stream.
func (s *Stream) Fail(err error) {
	s.err = err
	s.Finish()
}
