// Package server assembles the HTTP surface: room management, health, and
// the per-room debate websocket.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rostra-live/rostra/pkg/core/clock"
	"github.com/rostra-live/rostra/pkg/core/debate"
	"github.com/rostra-live/rostra/pkg/core/session"
	"github.com/rostra-live/rostra/pkg/core/synth"
	"github.com/rostra-live/rostra/pkg/server/config"
	"github.com/rostra-live/rostra/pkg/server/handlers"
	"github.com/rostra-live/rostra/pkg/server/mw"
)

// Deps carries the optional collaborators. Nil fields get working defaults;
// a nil Synthesizer just disables synthesized participants.
type Deps struct {
	Clock       clock.Clock
	Extractor   debate.Extractor
	Synthesizer synth.Synthesizer
	Generator   handlers.ContentGenerator
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	bus      *debate.Bus
	rooms    *debate.Rooms
	sessions *session.Manager
	queue    *synth.Manager
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System()
	}

	bus := debate.NewBus(logger)
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		bus:    bus,
		rooms: debate.NewRooms(debate.RoomsConfig{
			Clock:     clk,
			Bus:       bus,
			Extractor: deps.Extractor,
			PrepBank:  cfg.PrepBank,
			Logger:    logger,
		}),
		sessions: session.NewManager(session.Config{
			GracePeriod: cfg.GracePeriod,
			TokenTTL:    cfg.TokenTTL,
		}, clk, logger),
	}
	if deps.Synthesizer != nil {
		s.queue = synth.NewManager(deps.Synthesizer, logger)
	}

	s.routes(deps)
	return s
}

func (s *Server) routes(deps Deps) {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Rooms: s.rooms})

	s.mux.Handle("POST /v1/rooms", handlers.CreateRoomHandler{
		Rooms:     s.rooms,
		Bus:       s.bus,
		Queue:     s.queue,
		Generator: deps.Generator,
		Logger:    s.logger,
	})
	s.mux.Handle("/v1/rooms/{id}", handlers.RoomHandler{
		Rooms:    s.rooms,
		Sessions: s.sessions,
		Logger:   s.logger,
	})
	s.mux.Handle("GET /v1/rooms/{id}/ws", handlers.DebateWSHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Rooms:    s.rooms,
		Sessions: s.sessions,
		Bus:      s.bus,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Close tears down every room and the event bus.
func (s *Server) Close(ctx context.Context) error {
	s.rooms.CloseAll()
	return s.bus.Close()
}
