package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rostra-live/rostra/internal/dotenv"
	"github.com/rostra-live/rostra/pkg/core/synth"
	"github.com/rostra-live/rostra/pkg/server"
	"github.com/rostra-live/rostra/pkg/server/config"
	"github.com/rostra-live/rostra/pkg/server/handlers"
)

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	newServer    func(config.Config, *slog.Logger, server.Deps) *server.Server
	newGemini    func(context.Context, synth.GeminiConfig) (*synth.Gemini, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig: config.LoadFromEnv,
		newServer:  server.New,
		newGemini:  synth.NewGemini,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newServer == nil {
		return errors.New("missing newServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var srvDeps server.Deps
	if cfg.GeminiAPIKey != "" && deps.newGemini != nil {
		gem, err := deps.newGemini(ctx, synth.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			Voice:     cfg.GeminiVoice,
			ChunkSize: cfg.SynthChunkBytes,
		})
		if err != nil {
			return fmt.Errorf("init speech synthesis: %w", err)
		}
		srvDeps.Synthesizer = gem

		gen, err := handlers.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, "")
		if err != nil {
			return fmt.Errorf("init content generation: %w", err)
		}
		srvDeps.Generator = gen
	}

	srv := deps.newServer(cfg, logger, srvDeps)
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting server",
		"addr", cfg.Addr,
		"grace_period", cfg.GracePeriod,
		"token_ttl", cfg.TokenTTL,
		"synthesis_enabled", srvDeps.Synthesizer != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := srv.Close(shutdownCtx); err != nil {
		return fmt.Errorf("close server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "rostra-server: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "rostra-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
