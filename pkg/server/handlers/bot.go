package handlers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rostra-live/rostra/pkg/core/debate"
	"github.com/rostra-live/rostra/pkg/core/synth"
	"github.com/rostra-live/rostra/pkg/core/timer"
)

// ContentGenerator produces the text a synthesized participant speaks for
// one slot.
type ContentGenerator interface {
	Compose(ctx context.Context, roomID string, slot timer.Slot) (string, error)
}

// BotSpeaker is a synthesized-speech participant: when one of its turns
// starts it composes content, feeds it through the synthesis queue, and
// streams the resulting audio fragments onto the room bus for listeners.
type BotSpeaker struct {
	ParticipantID string
	Bus           *debate.Bus
	Queue         *synth.Manager
	Generator     ContentGenerator
	Voice         synth.Options
	Logger        *slog.Logger
}

// Run consumes the room's events until ctx is cancelled. A turn_start naming
// this bot kicks off composition and synthesis; any other turn boundary
// drops whatever synthesis the bot still has queued, so audio from a
// superseded turn never plays into the next one.
func (b *BotSpeaker) Run(ctx context.Context, roomID string) error {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events, err := b.Bus.Subscribe(ctx, roomID)
	if err != nil {
		return err
	}
	for msg := range events {
		ev, err := debate.DecodeEvent(msg)
		msg.Ack()
		if err != nil {
			logger.Warn("undecodable room event", "room_id", roomID, "error", err)
			continue
		}
		switch {
		case ev.Type == debate.EventTurnStart && ev.SpeakerID == b.ParticipantID:
			// Composition hits the network; run it off-loop so the bot
			// keeps acking bus messages while it thinks.
			go b.speak(ctx, roomID, ev.Slot, logger)
		case ev.Type == debate.EventTurnEnd,
			ev.Type == debate.EventTurnStart && ev.SpeakerID != b.ParticipantID,
			ev.Type == debate.EventDebateEnd:
			b.Queue.Clear(b.ParticipantID)
		}
	}
	return nil
}

func (b *BotSpeaker) speak(ctx context.Context, roomID string, slot timer.Slot, logger *slog.Logger) {
	text, err := b.Generator.Compose(ctx, roomID, slot)
	if err != nil {
		logger.Warn("content generation failed",
			"room_id", roomID, "slot", slot, "error", err)
		return
	}
	if text == "" {
		return
	}

	turnID := "turn_" + uuid.NewString()
	b.publish(debate.Event{
		Type:      debate.EventSynthesisStart,
		RoomID:    roomID,
		SpeakerID: b.ParticipantID,
		TurnID:    turnID,
	}, logger)

	b.Queue.Enqueue(ctx, synth.Request{
		ParticipantID: b.ParticipantID,
		RoomID:        roomID,
		TurnID:        turnID,
		Text:          text,
		Options:       b.Voice,
		OnFragment: func(index int, payload []byte, isFinal bool) {
			b.publish(debate.Event{
				Type:          debate.EventSynthesisFragment,
				RoomID:        roomID,
				SpeakerID:     b.ParticipantID,
				TurnID:        turnID,
				SequenceIndex: index,
				Payload:       payload,
				IsFinal:       isFinal,
			}, logger)
		},
		OnComplete: func() {
			b.publish(debate.Event{
				Type:      debate.EventSynthesisEnd,
				RoomID:    roomID,
				SpeakerID: b.ParticipantID,
				TurnID:    turnID,
			}, logger)
		},
		OnError: func(err error) {
			b.publish(debate.Event{
				Type:      debate.EventSynthesisError,
				RoomID:    roomID,
				SpeakerID: b.ParticipantID,
				TurnID:    turnID,
				Message:   err.Error(),
			}, logger)
		},
	})
}

func (b *BotSpeaker) publish(ev debate.Event, logger *slog.Logger) {
	if err := b.Bus.Publish(ev); err != nil {
		logger.Warn("publish synthesis event", "room_id", ev.RoomID, "event", ev.Type, "error", err)
	}
}
