package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"meshchat/native/internal/domain"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	defaultRelayURL     = "ws://localhost:8887"
	defaultICEServers   = "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"
	defaultPingInterval = 30 * time.Second
)

// Config holds the application configuration.
type Config struct {
	RelayURL     string
	Username     string
	Avatar       string
	UploadURL    string
	ICEServers   []domain.ICEServer
	PingInterval time.Duration
	LogLevel     zerolog.Level
	RecordDir    string
	VideoFile    string
	AudioFile    string
}

// Load reads configuration from a .env file (if present) and environment variables.
// Environment variables take precedence over .env values. The username is
// not checked here so that a command-line flag can still supply it; call
// Validate once all overrides are applied.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		RelayURL:  getenv("MESHCHAT_RELAY_URL", defaultRelayURL),
		Username:  os.Getenv("MESHCHAT_USERNAME"),
		Avatar:    os.Getenv("MESHCHAT_AVATAR"),
		UploadURL: os.Getenv("MESHCHAT_UPLOAD_URL"),
		RecordDir: os.Getenv("MESHCHAT_RECORD_DIR"),
		VideoFile: os.Getenv("MESHCHAT_VIDEO_FILE"),
		AudioFile: os.Getenv("MESHCHAT_AUDIO_FILE"),
	}

	cfg.ICEServers = ParseICEServers(getenv("MESHCHAT_ICE_SERVERS", defaultICEServers))

	ping, err := time.ParseDuration(getenv("MESHCHAT_PING_INTERVAL", defaultPingInterval.String()))
	if err != nil {
		return nil, fmt.Errorf("MESHCHAT_PING_INTERVAL: %w", err)
	}
	cfg.PingInterval = ping

	level, err := zerolog.ParseLevel(getenv("MESHCHAT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MESHCHAT_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("MESHCHAT_USERNAME environment variable or --username is required")
	}
	if !strings.HasPrefix(c.RelayURL, "ws://") && !strings.HasPrefix(c.RelayURL, "wss://") {
		return fmt.Errorf("relay url %q must use ws:// or wss://", c.RelayURL)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive, got %s", c.PingInterval)
	}
	return nil
}

// ParseICEServers splits a comma-separated list of ICE server URLs.
// Entries may carry credentials as user:pass@turn:host:port.
func ParseICEServers(list string) []domain.ICEServer {
	var servers []domain.ICEServer
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var s domain.ICEServer
		if creds, url, ok := strings.Cut(entry, "@"); ok {
			s.URL = url
			s.Username, s.Credential, _ = strings.Cut(creds, ":")
		} else {
			s.URL = entry
		}
		servers = append(servers, s)
	}
	return servers
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
