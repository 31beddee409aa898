// Package protocol defines the websocket wire messages exchanged with
// debate clients. All frames are JSON with a discriminating "type" field,
// snake_case keys throughout.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientHello must be the first frame on every connection. A frame carrying
// a token is a rejoin within the session's lifetime; otherwise it joins the
// room fresh.
type ClientHello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	DisplayName     string `json:"display_name,omitempty"`
	Side            string `json:"side,omitempty"`  // "pro" or "con"; empty for spectators
	Token           string `json:"token,omitempty"` // rejoin with a previously issued token
}

// ClientTurnEndSpeech ends the current speech before its clock expires.
type ClientTurnEndSpeech struct {
	Type string `json:"type"`
}

// ClientTurnStartNext starts the next due slot.
type ClientTurnStartNext struct {
	Type string `json:"type"`
}

// ClientTurnStartPrep starts a prep interval drawing from one side's bank.
type ClientTurnStartPrep struct {
	Type string `json:"type"`
	Side string `json:"side"`
}

// ClientTurnEndPrep ends a running prep interval.
type ClientTurnEndPrep struct {
	Type string `json:"type"`
}

// ClientTurnPause pauses the running clock.
type ClientTurnPause struct {
	Type string `json:"type"`
}

// ClientTurnResume resumes a paused clock.
type ClientTurnResume struct {
	Type string `json:"type"`
}

// ClientSessionLeave leaves the room for good, skipping the grace period.
type ClientSessionLeave struct {
	Type string `json:"type"`
}

// ClientTranscript carries speech-to-text output for the speaking
// participant's current turn.
type ClientTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientFragmentAck acknowledges receipt of a synthesis fragment. Optional
// flow control; the server tolerates clients that never send it.
type ClientFragmentAck struct {
	Type          string `json:"type"`
	TurnID        string `json:"turn_id"`
	SequenceIndex int    `json:"sequence_index"`
}

// DecodeClientMessage parses one inbound frame into its typed message.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "turn_end_speech":
		var msg ClientTurnEndSpeech
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_end_speech", "")
		}
		return msg, nil
	case "turn_start_next":
		var msg ClientTurnStartNext
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_start_next", "")
		}
		return msg, nil
	case "turn_start_prep":
		var msg ClientTurnStartPrep
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_start_prep", "")
		}
		if msg.Side != "pro" && msg.Side != "con" {
			return nil, badRequest("turn_start_prep.side must be pro or con", "side")
		}
		return msg, nil
	case "turn_end_prep":
		var msg ClientTurnEndPrep
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_end_prep", "")
		}
		return msg, nil
	case "turn_pause":
		var msg ClientTurnPause
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_pause", "")
		}
		return msg, nil
	case "turn_resume":
		var msg ClientTurnResume
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_resume", "")
		}
		return msg, nil
	case "session_leave":
		var msg ClientSessionLeave
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid session_leave", "")
		}
		return msg, nil
	case "transcript":
		var msg ClientTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid transcript", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("transcript.text is required", "text")
		}
		return msg, nil
	case "synthesis_fragment_ack":
		var msg ClientFragmentAck
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid synthesis_fragment_ack", "")
		}
		if strings.TrimSpace(msg.TurnID) == "" {
			return nil, badRequest("synthesis_fragment_ack.turn_id is required", "turn_id")
		}
		if msg.SequenceIndex < 0 {
			return nil, badRequest("synthesis_fragment_ack.sequence_index must be >= 0", "sequence_index")
		}
		return msg, nil
	default:
		return nil, unsupported(fmt.Sprintf("unsupported message type %q", typ), "type")
	}
}

// ValidateHello checks the handshake frame beyond JSON shape.
func ValidateHello(msg ClientHello) error {
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol_version", "protocol_version")
	}
	if msg.Token == "" && strings.TrimSpace(msg.DisplayName) == "" {
		return badRequest("hello.display_name is required when joining", "display_name")
	}
	switch msg.Side {
	case "", "pro", "con":
	default:
		return badRequest("hello.side must be pro or con", "side")
	}
	return nil
}
