package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rostra-live/rostra/pkg/core/debate"
	"github.com/rostra-live/rostra/pkg/core/session"
	"github.com/rostra-live/rostra/pkg/core/timer"
	"github.com/rostra-live/rostra/pkg/server/apierror"
	"github.com/rostra-live/rostra/pkg/server/config"
	"github.com/rostra-live/rostra/pkg/server/mw"
	"github.com/rostra-live/rostra/pkg/server/protocol"
)

// DebateWSHandler serves GET /v1/rooms/{id}/ws: one websocket per
// participant connection. The first frame must be a hello; after the
// handshake the connection receives every event on the room's bus and
// accepts the turn-control operations.
type DebateWSHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Rooms    *debate.Rooms
	Sessions *session.Manager
	Bus      *debate.Bus
}

// wsConn is one accepted connection's state after the handshake.
type wsConn struct {
	connID        string
	token         string
	participantID string
	displayName   string
	orch          *debate.Orchestrator
}

func (h DebateWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	roomID := r.PathValue("id")

	orch, ok := h.Rooms.Get(roomID)
	if !ok {
		apierror.WriteJSON(w, session.ErrNotFound, reqID)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "request_id", reqID, "error", err)
		return
	}
	ws.SetReadLimit(h.Config.WSMaxMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan []byte, 16)
	normal := make(chan []byte, h.Config.OutboundQueueSize)
	writer := &outboundWriter{
		ws:           ws,
		ctx:          ctx,
		pingInterval: h.Config.WSPingInterval,
		writeTimeout: h.Config.WSWriteTimeout,
		priority:     priority,
		normal:       normal,
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Run(); err != nil {
			h.Logger.Debug("outbound writer stopped", "room_id", roomID, "error", err)
		}
		cancel()
	}()

	conn, fatal := h.handshake(ws, orch, priority)
	if fatal {
		cancel()
		<-writerDone
		return
	}

	// Forward every room event to this connection.
	events, err := h.Bus.Subscribe(ctx, roomID)
	if err != nil {
		h.Logger.Error("bus subscribe failed", "room_id", roomID, "error", err)
		sendFrame(priority, protocol.NewError("internal", "event subscription failed", "", true))
		cancel()
		<-writerDone
		return
	}
	go func() {
		for msg := range events {
			// Ack before the queue send: the bus blocks publishers until
			// every subscriber acks, and one backed-up client must not
			// stall the room.
			payload := msg.Payload
			msg.Ack()
			select {
			case normal <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	h.readLoop(ctx, ws, conn, priority)

	// Reader is done: either the peer vanished or it left cleanly. The
	// grace period (or Leave above) decides whether the session survives.
	cancel()
	h.Sessions.HandleDisconnect(conn.connID, func(s session.Session) {
		h.publishLeft(s)
	})
	<-writerDone
}

func (h DebateWSHandler) checkOrigin(r *http.Request) bool {
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// handshake reads and answers the hello frame. It returns fatal=true when
// the connection is unusable and should be torn down.
func (h DebateWSHandler) handshake(ws *websocket.Conn, orch *debate.Orchestrator, priority chan<- []byte) (wsConn, bool) {
	roomID := orch.RoomID()

	_ = ws.SetReadDeadline(time.Now().Add(h.Config.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return wsConn{}, true
	}
	_ = ws.SetReadDeadline(time.Time{})

	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		sendDecodeError(priority, err, true)
		return wsConn{}, true
	}
	hello, ok := msg.(protocol.ClientHello)
	if !ok {
		sendFrame(priority, protocol.NewError("bad_request", "first frame must be hello", "type", true))
		return wsConn{}, true
	}

	conn := wsConn{connID: "conn_" + uuid.NewString(), orch: orch}

	if hello.Token != "" {
		sess, err := h.Sessions.Rejoin(hello.Token, conn.connID, hello.DisplayName)
		if err != nil {
			sendRejoinError(priority, err)
			return wsConn{}, true
		}
		conn.token = hello.Token
		conn.participantID = sess.ParticipantID
		conn.displayName = sess.DisplayName

		side := ""
		if sd, ok := orch.SideOf(sess.ParticipantID); ok {
			side = string(sd)
		}
		sendFrame(priority, protocol.NewHelloAck(conn.token, conn.participantID, roomID, side, true, orch.Timer()))
		h.Logger.Info("participant rejoined",
			"room_id", roomID, "participant_id", conn.participantID)
		return conn, false
	}

	conn.participantID = "p_" + uuid.NewString()
	conn.displayName = strings.TrimSpace(hello.DisplayName)
	if hello.Side != "" {
		if err := orch.AssignSide(timer.Side(hello.Side), conn.participantID); err != nil {
			sendFrame(priority, protocol.NewError("conflict", "side already taken", "side", true))
			return wsConn{}, true
		}
	}
	conn.token = h.Sessions.CreateOrReactivate(conn.participantID, roomID, conn.connID, conn.displayName)

	sendFrame(priority, protocol.NewHelloAck(conn.token, conn.participantID, roomID, hello.Side, false, orch.Timer()))
	h.Logger.Info("participant joined",
		"room_id", roomID, "participant_id", conn.participantID, "side", hello.Side)
	return conn, false
}

func (h DebateWSHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn wsConn, priority chan<- []byte) {
	orch := conn.orch
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			sendDecodeError(priority, err, false)
			continue
		}

		switch m := msg.(type) {
		case protocol.ClientHello:
			sendFrame(priority, protocol.NewError("bad_request", "hello is only valid as the first frame", "type", false))
		case protocol.ClientTurnStartNext:
			if !orch.Active() {
				if err := orch.Start(); err != nil {
					sendStateError(priority, err)
				}
				continue
			}
			if !orch.StartNextSpeech() {
				sendFrame(priority, protocol.NewError("conflict", "no slot is due to start", "", false))
			}
		case protocol.ClientTurnEndSpeech:
			orch.EndSpeech()
		case protocol.ClientTurnStartPrep:
			if !orch.StartPrep(timer.Side(m.Side)) {
				sendFrame(priority, protocol.NewError("conflict", "prep cannot start now", "side", false))
			}
		case protocol.ClientTurnEndPrep:
			orch.EndPrep()
		case protocol.ClientTurnPause:
			orch.Pause()
		case protocol.ClientTurnResume:
			orch.Resume()
		case protocol.ClientTranscript:
			if _, ok := orch.SideOf(conn.participantID); ok {
				orch.SubmitTranscript(ctx, conn.participantID, m.Text)
			}
		case protocol.ClientFragmentAck:
			// Optional flow control; receipt is enough.
			h.Logger.Debug("fragment ack",
				"participant_id", conn.participantID,
				"turn_id", m.TurnID, "sequence_index", m.SequenceIndex)
		case protocol.ClientSessionLeave:
			if sess, ok := h.Sessions.ByConnection(conn.connID); ok {
				h.publishLeft(sess)
			}
			h.Sessions.Leave(conn.token)
			return
		}
	}
}

func (h DebateWSHandler) publishLeft(s session.Session) {
	ev := debate.Event{
		Type:          debate.EventParticipantLeft,
		RoomID:        s.RoomID,
		ParticipantID: s.ParticipantID,
		DisplayName:   s.DisplayName,
	}
	if err := h.Bus.Publish(ev); err != nil {
		h.Logger.Warn("publish participant_left", "room_id", s.RoomID, "error", err)
	}
}

func sendFrame(ch chan<- []byte, msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	select {
	case ch <- payload:
	default:
		// Queue full; the connection is beyond saving anyway.
	}
}

func sendDecodeError(ch chan<- []byte, err error, close bool) {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		sendFrame(ch, protocol.NewError(de.Code, de.Message, de.Param, close))
		return
	}
	sendFrame(ch, protocol.NewError("bad_request", err.Error(), "", close))
}

func sendRejoinError(ch chan<- []byte, err error) {
	switch {
	case errors.Is(err, session.ErrExpired):
		sendFrame(ch, protocol.NewError("expired", "session token expired, join again", "token", true))
	case errors.Is(err, session.ErrNotFound):
		sendFrame(ch, protocol.NewError("not_found", "unknown session token", "token", true))
	default:
		sendFrame(ch, protocol.NewError("internal", "rejoin failed", "", true))
	}
}

func sendStateError(ch chan<- []byte, err error) {
	switch {
	case errors.Is(err, debate.ErrNotReady):
		sendFrame(ch, protocol.NewError("not_ready", "both sides must be assigned before starting", "", false))
	case errors.Is(err, debate.ErrConflict):
		sendFrame(ch, protocol.NewError("conflict", "debate is already active", "", false))
	default:
		sendFrame(ch, protocol.NewError("internal", "operation failed", "", false))
	}
}
