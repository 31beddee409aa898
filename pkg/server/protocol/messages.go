package protocol

import (
	"encoding/json"

	"github.com/rostra-live/rostra/pkg/core/timer"
)

// ServerHelloAck confirms the handshake. Room events after this frame are
// published as debate events with their own type discriminators.
type ServerHelloAck struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionToken    string       `json:"session_token"`
	ParticipantID   string       `json:"participant_id"`
	RoomID          string       `json:"room_id"`
	Side            string       `json:"side,omitempty"`
	Reconnected     bool         `json:"reconnected,omitempty"`
	Timer           *timer.State `json:"timer,omitempty"`
}

// NewHelloAck builds the handshake confirmation.
func NewHelloAck(token, participantID, roomID, side string, reconnected bool, state timer.State) ServerHelloAck {
	return ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: ProtocolVersion1,
		SessionToken:    token,
		ParticipantID:   participantID,
		RoomID:          roomID,
		Side:            side,
		Reconnected:     reconnected,
		Timer:           &state,
	}
}

// ServerError reports a per-frame or fatal failure. Close tells the client
// the server will drop the connection after this frame.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close,omitempty"`
}

// NewError builds an error frame from a decode failure or sentinel.
func NewError(code, message, param string, close bool) ServerError {
	return ServerError{Type: "error", Code: code, Message: message, Param: param, Close: close}
}

// Encode marshals any server frame to its wire form.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
