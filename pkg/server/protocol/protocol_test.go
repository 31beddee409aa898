package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func decodeErr(t *testing.T, err error) *DecodeError {
	t.Helper()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error %v is not a DecodeError", err)
	}
	return de
}

func TestDecodeHelloJoin(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"hello","protocol_version":"1","display_name":"Ada","side":"pro"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded %T, want ClientHello", msg)
	}
	if hello.DisplayName != "Ada" || hello.Side != "pro" || hello.Token != "" {
		t.Fatalf("hello = %+v", hello)
	}
}

func TestDecodeHelloRejoin(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"hello","protocol_version":"1","token":"tok-1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hello := msg.(ClientHello)
	if hello.Token != "tok-1" {
		t.Fatalf("token = %q", hello.Token)
	}
}

func TestDecodeHelloValidation(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		param string
	}{
		{"wrong version", `{"type":"hello","protocol_version":"2","display_name":"Ada"}`, "protocol_version"},
		{"join without name", `{"type":"hello","protocol_version":"1"}`, "display_name"},
		{"bad side", `{"type":"hello","protocol_version":"1","display_name":"Ada","side":"judge"}`, "side"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.frame))
			if err == nil {
				t.Fatal("expected error")
			}
			if de := decodeErr(t, err); de.Param != tc.param {
				t.Fatalf("param = %q, want %q", de.Param, tc.param)
			}
		})
	}
}

func TestDecodeTurnMessages(t *testing.T) {
	cases := []struct {
		frame string
		want  any
	}{
		{`{"type":"turn_end_speech"}`, ClientTurnEndSpeech{}},
		{`{"type":"turn_start_next"}`, ClientTurnStartNext{}},
		{`{"type":"turn_end_prep"}`, ClientTurnEndPrep{}},
		{`{"type":"turn_pause"}`, ClientTurnPause{}},
		{`{"type":"turn_resume"}`, ClientTurnResume{}},
		{`{"type":"session_leave"}`, ClientSessionLeave{}},
	}
	for _, tc := range cases {
		msg, err := DecodeClientMessage([]byte(tc.frame))
		if err != nil {
			t.Fatalf("decode %s: %v", tc.frame, err)
		}
		if got, want := fmt.Sprintf("%T", msg), fmt.Sprintf("%T", tc.want); got != want {
			t.Fatalf("decoded %s for frame %s, want %s", got, tc.frame, want)
		}
	}
}

func TestDecodeStartPrepRequiresValidSide(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"turn_start_prep","side":"con"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prep := msg.(ClientTurnStartPrep); prep.Side != "con" {
		t.Fatalf("side = %q", prep.Side)
	}

	_, err = DecodeClientMessage([]byte(`{"type":"turn_start_prep","side":"audience"}`))
	if de := decodeErr(t, err); de.Param != "side" {
		t.Fatalf("param = %q, want side", de.Param)
	}
}

func TestDecodeTranscript(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"transcript","text":"my first point"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr := msg.(ClientTranscript); tr.Text != "my first point" {
		t.Fatalf("text = %q", tr.Text)
	}

	if _, err := DecodeClientMessage([]byte(`{"type":"transcript","text":"  "}`)); err == nil {
		t.Fatal("blank transcript accepted")
	}
}

func TestDecodeFragmentAck(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"synthesis_fragment_ack","turn_id":"t1","sequence_index":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ack := msg.(ClientFragmentAck)
	if ack.TurnID != "t1" || ack.SequenceIndex != 3 {
		t.Fatalf("ack = %+v", ack)
	}

	_, err = DecodeClientMessage([]byte(`{"type":"synthesis_fragment_ack","sequence_index":0}`))
	if de := decodeErr(t, err); de.Param != "turn_id" {
		t.Fatalf("param = %q, want turn_id", de.Param)
	}
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"dance"}`)); err == nil {
		t.Fatal("unknown type accepted")
	} else if de := decodeErr(t, err); de.Code != "unsupported" {
		t.Fatalf("code = %q, want unsupported", de.Code)
	}

	if _, err := DecodeClientMessage([]byte(`{`)); err == nil {
		t.Fatal("malformed json accepted")
	}
	if _, err := DecodeClientMessage([]byte(`{"side":"pro"}`)); err == nil {
		t.Fatal("missing type accepted")
	}
}
