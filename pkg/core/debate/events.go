package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/rostra-live/rostra/pkg/core/timer"
)

// EventType enumerates everything a room publishes on its bus.
type EventType string

const (
	EventDebateStart        EventType = "debate_start"
	EventDebateEnd          EventType = "debate_end"
	EventTurnStart          EventType = "turn_start"
	EventTurnEnd            EventType = "turn_end"
	EventTimerUpdate        EventType = "timer_update"
	EventPrepStart          EventType = "prep_start"
	EventPrepEnd            EventType = "prep_end"
	EventParticipantLeft    EventType = "participant_left"
	EventArgumentsExtracted EventType = "arguments_extracted"
	EventSynthesisStart     EventType = "synthesis_start"
	EventSynthesisFragment  EventType = "synthesis_fragment"
	EventSynthesisEnd       EventType = "synthesis_end"
	EventSynthesisError     EventType = "synthesis_error"
)

// Event is the payload carried on a room's topic. Fields are populated per
// type; consumers switch on Type.
type Event struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"room_id"`

	Slot      timer.Slot  `json:"slot,omitempty"`
	NextSlot  *timer.Slot `json:"next_slot,omitempty"`
	SpeakerID string      `json:"speaker_id,omitempty"`
	Side      timer.Side  `json:"side,omitempty"`

	Timer *timer.State `json:"timer,omitempty"`

	ParticipantID string `json:"participant_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`

	Arguments []string `json:"arguments,omitempty"`
	Version   int      `json:"version,omitempty"`

	TurnID        string `json:"turn_id,omitempty"`
	SequenceIndex int    `json:"sequence_index,omitempty"`
	Payload       []byte `json:"payload,omitempty"`
	IsFinal       bool   `json:"is_final,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Bus fans room events out to every subscriber of that room's topic:
// websocket connections, the extraction pipeline, tests.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus builds an in-process bus. logger may be nil.
//
// Publish blocks until every current subscriber has acked, so events reach
// each subscriber in publish order. Subscribers must ack before doing any
// slow work or they stall the whole room.
func NewBus(logger *slog.Logger) *Bus {
	var wmLogger watermill.LoggerAdapter = watermill.NopLogger{}
	if logger != nil {
		wmLogger = watermill.NewSlogLogger(logger)
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, wmLogger),
	}
}

// Topic returns the bus topic for one room.
func Topic(roomID string) string { return "debate.events." + roomID }

// Publish marshals ev onto its room topic.
func (b *Bus) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(ev.Type))
	return b.pubsub.Publish(Topic(ev.RoomID), msg)
}

// Subscribe returns the room's event stream. The subscription ends when ctx
// is cancelled.
func (b *Bus) Subscribe(ctx context.Context, roomID string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, Topic(roomID))
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error { return b.pubsub.Close() }

// DecodeEvent unmarshals a bus message back into an Event.
func DecodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
