// Package config centralises runtime configuration for the realtime
// client: defaults, an optional YAML file, and environment overrides,
// applied in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full configuration tree for a realtime client.
type Settings struct {
	// Endpoint is the websocket URL of the realtime server.
	Endpoint string

	// HandshakeTimeout bounds a single dial attempt.
	HandshakeTimeout time.Duration
	// HeartbeatInterval is the liveness ping period while connected.
	HeartbeatInterval time.Duration

	// ReconnectBase is the first backoff delay after a drop; delays
	// double per attempt up to ReconnectMax.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// ReconnectAttempts bounds consecutive failed attempts before the
	// connection gives up permanently.
	ReconnectAttempts int

	// OutboxCapacity bounds the queue of operations deferred while
	// disconnected; oldest entries are dropped beyond it.
	OutboxCapacity int

	// MessageTimeout and AuctionJoinTimeout bound correlated sends;
	// BidTimeout is shorter because stale bids are worthless.
	MessageTimeout     time.Duration
	AuctionJoinTimeout time.Duration
	BidTimeout         time.Duration

	// TypingWindow is the silence period after which a typing
	// indicator auto-stops.
	TypingWindow time.Duration

	// EmitRate and EmitBurst pace outbound frames.
	EmitRate  float64
	EmitBurst int
}

// Default returns the production defaults.
func Default() Settings {
	return Settings{
		Endpoint:           "wss://realtime.motorlot.app/ws",
		HandshakeTimeout:   10 * time.Second,
		HeartbeatInterval:  25 * time.Second,
		ReconnectBase:      time.Second,
		ReconnectMax:       30 * time.Second,
		ReconnectAttempts:  10,
		OutboxCapacity:     50,
		MessageTimeout:     10 * time.Second,
		AuctionJoinTimeout: 10 * time.Second,
		BidTimeout:         5 * time.Second,
		TypingWindow:       3 * time.Second,
		EmitRate:           20,
		EmitBurst:          40,
	}
}

// fileSettings mirrors Settings with string durations for YAML.
type fileSettings struct {
	Endpoint           string  `yaml:"endpoint"`
	HandshakeTimeout   string  `yaml:"handshake_timeout"`
	HeartbeatInterval  string  `yaml:"heartbeat_interval"`
	ReconnectBase      string  `yaml:"reconnect_base"`
	ReconnectMax       string  `yaml:"reconnect_max"`
	ReconnectAttempts  *int    `yaml:"reconnect_attempts"`
	OutboxCapacity     *int    `yaml:"outbox_capacity"`
	MessageTimeout     string  `yaml:"message_timeout"`
	AuctionJoinTimeout string  `yaml:"auction_join_timeout"`
	BidTimeout         string  `yaml:"bid_timeout"`
	TypingWindow       string  `yaml:"typing_window"`
	EmitRate           float64 `yaml:"emit_rate"`
	EmitBurst          *int    `yaml:"emit_burst"`
}

// LoadFile overlays the YAML file at path onto the defaults.
func LoadFile(path string) (Settings, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	var fs fileSettings
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fs.apply(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (fs fileSettings) apply(cfg *Settings) error {
	if v := strings.TrimSpace(fs.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	durs := []struct {
		raw string
		dst *time.Duration
	}{
		{fs.HandshakeTimeout, &cfg.HandshakeTimeout},
		{fs.HeartbeatInterval, &cfg.HeartbeatInterval},
		{fs.ReconnectBase, &cfg.ReconnectBase},
		{fs.ReconnectMax, &cfg.ReconnectMax},
		{fs.MessageTimeout, &cfg.MessageTimeout},
		{fs.AuctionJoinTimeout, &cfg.AuctionJoinTimeout},
		{fs.BidTimeout, &cfg.BidTimeout},
		{fs.TypingWindow, &cfg.TypingWindow},
	}
	for _, d := range durs {
		raw := strings.TrimSpace(d.raw)
		if raw == "" {
			continue
		}
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}
		*d.dst = dur
	}
	if fs.ReconnectAttempts != nil {
		cfg.ReconnectAttempts = *fs.ReconnectAttempts
	}
	if fs.OutboxCapacity != nil {
		cfg.OutboxCapacity = *fs.OutboxCapacity
	}
	if fs.EmitRate > 0 {
		cfg.EmitRate = fs.EmitRate
	}
	if fs.EmitBurst != nil {
		cfg.EmitBurst = *fs.EmitBurst
	}
	return nil
}

// FromEnv loads environment overrides on top of the given settings.
func FromEnv(base Settings) Settings {
	cfg := base
	if v := strings.TrimSpace(os.Getenv("REALTIME_ENDPOINT")); v != "" {
		cfg.Endpoint = v
	}
	envDur("REALTIME_HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout)
	envDur("REALTIME_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	envDur("REALTIME_RECONNECT_BASE", &cfg.ReconnectBase)
	envDur("REALTIME_RECONNECT_MAX", &cfg.ReconnectMax)
	envDur("REALTIME_MESSAGE_TIMEOUT", &cfg.MessageTimeout)
	envDur("REALTIME_AUCTION_JOIN_TIMEOUT", &cfg.AuctionJoinTimeout)
	envDur("REALTIME_BID_TIMEOUT", &cfg.BidTimeout)
	envDur("REALTIME_TYPING_WINDOW", &cfg.TypingWindow)
	envInt("REALTIME_RECONNECT_ATTEMPTS", &cfg.ReconnectAttempts)
	envInt("REALTIME_OUTBOX_CAPACITY", &cfg.OutboxCapacity)
	envInt("REALTIME_EMIT_BURST", &cfg.EmitBurst)
	if v := strings.TrimSpace(os.Getenv("REALTIME_EMIT_RATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.EmitRate = f
		}
	}
	return cfg
}

func envDur(key string, dst *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*dst = dur
		}
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Load resolves settings from defaults, the optional file at path, and
// the environment. An empty path skips the file layer.
func Load(path string) (Settings, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	return FromEnv(cfg), nil
}

// Validate rejects settings the client cannot run with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("endpoint required")
	}
	if s.ReconnectBase <= 0 || s.ReconnectMax < s.ReconnectBase {
		return fmt.Errorf("reconnect delays must satisfy 0 < base <= max")
	}
	if s.ReconnectAttempts <= 0 {
		return fmt.Errorf("reconnect attempts must be positive")
	}
	if s.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	return nil
}
