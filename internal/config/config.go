package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the echo client runtime.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogPretty bool

	ElevenLabsAPIKey     string
	ElevenLabsAPIBaseURL string
	ElevenLabsWSBaseURL  string
	// DefaultAgentID is the last entry of the agent resolution order.
	DefaultAgentID   string
	DefaultAgentName string
	UserID           string

	ConversationEndGrace time.Duration

	AudioBackend       string
	RecordingsDir      string
	AudioSampleRate    int
	PlaybackStatusTick time.Duration
	StreamMicrophone   bool

	DatabaseURL string
}

// Load reads a local .env file when present, then environment variables, and
// applies safe defaults.
func Load() (Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", "127.0.0.1:8090"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "echo"),
		LogLevel:             envOrDefault("APP_LOG_LEVEL", "info"),
		ElevenLabsAPIKey:     stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsAPIBaseURL: envOrDefault("ELEVENLABS_API_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL:  envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		DefaultAgentID:       stringsTrimSpace("ELEVENLABS_AGENT_ID"),
		DefaultAgentName:     stringsTrimSpace("ELEVENLABS_AGENT_NAME"),
		UserID:               envOrDefault("ELEVENLABS_USER_ID", "demo-user"),
		AudioBackend:         envOrDefault("AUDIO_BACKEND", "auto"),
		RecordingsDir:        envOrDefault("AUDIO_RECORDINGS_DIR", "recordings"),
		AudioSampleRate:      16000,
		PlaybackStatusTick:   100 * time.Millisecond,
		StreamMicrophone:     true,
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:      10 * time.Second,
		ConversationEndGrace: 3 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationEndGrace, err = durationFromEnv("CONVERSATION_END_GRACE", cfg.ConversationEndGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackStatusTick, err = durationFromEnv("AUDIO_PLAYBACK_TICK", cfg.PlaybackStatusTick)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioSampleRate, err = intFromEnv("AUDIO_SAMPLE_RATE", cfg.AudioSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogPretty, err = boolFromEnv("APP_LOG_PRETTY", cfg.LogPretty)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamMicrophone, err = boolFromEnv("CONVERSATION_STREAM_MICROPHONE", cfg.StreamMicrophone)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch strings.ToLower(c.AudioBackend) {
	case "auto", "device", "mock":
	default:
		return fmt.Errorf("invalid AUDIO_BACKEND: %q (expected auto|device|mock)", c.AudioBackend)
	}
	if c.AudioSampleRate < 8000 || c.AudioSampleRate > 48000 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be between 8000 and 48000")
	}
	if c.PlaybackStatusTick < 10*time.Millisecond {
		return fmt.Errorf("AUDIO_PLAYBACK_TICK must be at least 10ms")
	}
	if c.ConversationEndGrace <= 0 {
		return fmt.Errorf("CONVERSATION_END_GRACE must be positive")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("ELEVENLABS_USER_ID must not be blank")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
