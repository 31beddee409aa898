package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Session lifecycle.
	GracePeriod time.Duration
	TokenTTL    time.Duration

	// Debate timing.
	PrepBank time.Duration

	// Live WebSocket.
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	WSMaxMessageBytes int64
	HandshakeTimeout  time.Duration
	OutboundQueueSize int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Speech synthesis backend. Empty API key disables synthesized
	// participants; everything else still works.
	GeminiAPIKey    string
	GeminiModel     string
	GeminiVoice     string
	SynthChunkBytes int
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("ROSTRA_ADDR", ":8080"),
		GracePeriod:         envDurationOr("ROSTRA_GRACE_PERIOD", 30*time.Second),
		TokenTTL:            envDurationOr("ROSTRA_TOKEN_TTL", time.Hour),
		PrepBank:            envDurationOr("ROSTRA_PREP_BANK", 3*time.Minute),
		WSPingInterval:      envDurationOr("ROSTRA_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("ROSTRA_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes:   envInt64Or("ROSTRA_WS_MAX_MESSAGE_BYTES", 64*1024),
		HandshakeTimeout:    envDurationOr("ROSTRA_HANDSHAKE_TIMEOUT", 5*time.Second),
		OutboundQueueSize:   envIntOr("ROSTRA_OUTBOUND_QUEUE_SIZE", 256),
		CORSAllowedOrigins:  make(map[string]struct{}),
		ReadHeaderTimeout:   envDurationOr("ROSTRA_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("ROSTRA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		GeminiAPIKey:        envOr("ROSTRA_GEMINI_API_KEY", ""),
		GeminiModel:         envOr("ROSTRA_GEMINI_MODEL", ""),
		GeminiVoice:         envOr("ROSTRA_GEMINI_VOICE", ""),
		SynthChunkBytes:     envIntOr("ROSTRA_SYNTH_CHUNK_BYTES", 32*1024),
	}

	for _, origin := range splitCSV(os.Getenv("ROSTRA_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("ROSTRA_ADDR must not be empty")
	}
	if cfg.GracePeriod <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_GRACE_PERIOD must be > 0")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_TOKEN_TTL must be > 0")
	}
	if cfg.TokenTTL <= cfg.GracePeriod {
		return Config{}, fmt.Errorf("ROSTRA_TOKEN_TTL must be > ROSTRA_GRACE_PERIOD")
	}
	if cfg.PrepBank <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_PREP_BANK must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.SynthChunkBytes <= 0 {
		return Config{}, fmt.Errorf("ROSTRA_SYNTH_CHUNK_BYTES must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
