package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rostra-live/rostra/pkg/core/debate"
	"github.com/rostra-live/rostra/pkg/core/session"
	"github.com/rostra-live/rostra/pkg/core/synth"
	"github.com/rostra-live/rostra/pkg/core/timer"
	"github.com/rostra-live/rostra/pkg/server/apierror"
	"github.com/rostra-live/rostra/pkg/server/mw"
	"github.com/rostra-live/rostra/pkg/server/protocol"
)

type roomParticipant struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Side          string `json:"side,omitempty"`
	Connected     bool   `json:"connected"`
	InGracePeriod bool   `json:"in_grace_period,omitempty"`
}

type roomSummary struct {
	RoomID       string            `json:"room_id"`
	Active       bool              `json:"active"`
	Timer        timer.State       `json:"timer"`
	Participants []roomParticipant `json:"participants"`
}

// CreateRoomHandler serves POST /v1/rooms. A request may claim one side for
// a synthesized speaker; that requires a configured synthesis backend.
type CreateRoomHandler struct {
	Rooms     *debate.Rooms
	Bus       *debate.Bus
	Queue     *synth.Manager
	Generator ContentGenerator
	Logger    *slog.Logger
}

func (h CreateRoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	var body struct {
		RoomID  string `json:"room_id"`
		BotSide string `json:"bot_side"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierror.WriteJSON(w, &protocol.DecodeError{Code: "bad_request", Message: "invalid json body"}, reqID)
			return
		}
	}
	switch body.BotSide {
	case "", "pro", "con":
	default:
		apierror.WriteJSON(w, &protocol.DecodeError{Code: "bad_request", Message: "bot_side must be pro or con", Param: "bot_side"}, reqID)
		return
	}
	if body.BotSide != "" && (h.Queue == nil || h.Generator == nil) {
		apierror.WriteJSON(w, &protocol.DecodeError{Code: "unsupported", Message: "speech synthesis is not configured", Param: "bot_side"}, reqID)
		return
	}

	orch, err := h.Rooms.Create(strings.TrimSpace(body.RoomID))
	if err != nil {
		apierror.WriteJSON(w, err, reqID)
		return
	}

	resp := map[string]string{"room_id": orch.RoomID()}
	if body.BotSide != "" {
		botID := "bot_" + uuid.NewString()
		if err := orch.AssignSide(timer.Side(body.BotSide), botID); err != nil {
			apierror.WriteJSON(w, err, reqID)
			return
		}
		bot := &BotSpeaker{
			ParticipantID: botID,
			Bus:           h.Bus,
			Queue:         h.Queue,
			Generator:     h.Generator,
			Logger:        h.Logger,
		}
		// The bot lives exactly as long as the room: removing the room
		// cancels its subscription and stops the run loop.
		botCtx, stopBot := context.WithCancel(context.Background())
		orch.OnClose(stopBot)
		go func() {
			if err := bot.Run(botCtx, orch.RoomID()); err != nil {
				h.Logger.Warn("bot speaker stopped", "room_id", orch.RoomID(), "error", err)
			}
		}()
		resp["bot_participant_id"] = botID
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// RoomHandler serves GET and DELETE /v1/rooms/{id}.
type RoomHandler struct {
	Rooms    *debate.Rooms
	Sessions *session.Manager
	Logger   *slog.Logger
}

func (h RoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	roomID := r.PathValue("id")

	orch, ok := h.Rooms.Get(roomID)
	if !ok {
		apierror.WriteJSON(w, session.ErrNotFound, reqID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.serveSummary(w, orch)
	case http.MethodDelete:
		h.Rooms.Remove(roomID)
		h.Sessions.DropRoom(roomID)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h RoomHandler) serveSummary(w http.ResponseWriter, orch *debate.Orchestrator) {
	sessions := h.Sessions.RoomSessions(orch.RoomID())
	participants := make([]roomParticipant, 0, len(sessions))
	for _, s := range sessions {
		side := ""
		if sd, ok := orch.SideOf(s.ParticipantID); ok {
			side = string(sd)
		}
		participants = append(participants, roomParticipant{
			ParticipantID: s.ParticipantID,
			DisplayName:   s.DisplayName,
			Side:          side,
			Connected:     h.Sessions.IsConnected(s.ParticipantID, orch.RoomID()),
			InGracePeriod: s.GracePeriodActive,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(roomSummary{
		RoomID:       orch.RoomID(),
		Active:       orch.Active(),
		Timer:        orch.Timer(),
		Participants: participants,
	})
}
