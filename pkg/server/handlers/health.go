package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rostra-live/rostra/pkg/core/debate"
	"github.com/rostra-live/rostra/pkg/server/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
	Rooms  *debate.Rooms
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK        bool     `json:"ok"`
		RoomCount int      `json:"room_count"`
		Issues    []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.GracePeriod <= 0 {
		issues = append(issues, "grace period must be > 0")
	}
	if h.Config.TokenTTL <= h.Config.GracePeriod {
		issues = append(issues, "token ttl must be > grace period")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "ws timing must be > 0")
	}
	if h.Config.OutboundQueueSize <= 0 {
		issues = append(issues, "outbound queue size must be > 0")
	}
	if h.Rooms == nil {
		issues = append(issues, "room registry not wired")
	}

	roomCount := 0
	if h.Rooms != nil {
		roomCount = h.Rooms.Count()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{OK: ok, RoomCount: roomCount, Issues: issues})
}
