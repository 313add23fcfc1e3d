package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const DefaultRealtimeURL = "https://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-12-17"

// Config contains all runtime settings for the voice client.
type Config struct {
	APIBaseURL     string
	Token          string
	TokenFile      string
	BackendTimeout time.Duration

	RealtimeURL                string
	RealtimeTranscriptionModel string
	ICEServers                 []string
	ICEGatherTimeout           time.Duration

	MicFFmpegPath  string
	MicInputFormat string
	MicDevice      string

	PlaybackMode       string
	PlaybackFFplayPath string
	PlaybackFile       string

	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	EventsBuffer     int

	DatabaseURL string
	LogLevel    string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	inputFormat, device := defaultMicInput(runtime.GOOS)
	cfg := Config{
		APIBaseURL:                 envOrDefault("EMORY_API_BASE_URL", "http://localhost:8080"),
		Token:                      stringsTrimSpace("EMORY_TOKEN"),
		TokenFile:                  envOrDefault("EMORY_TOKEN_FILE", defaultTokenFile()),
		RealtimeURL:                envOrDefault("REALTIME_URL", DefaultRealtimeURL),
		RealtimeTranscriptionModel: envOrDefault("REALTIME_TRANSCRIPTION_MODEL", "whisper-1"),
		ICEServers:                 splitList(envOrDefault("REALTIME_ICE_SERVERS", "stun:stun.l.google.com:19302")),
		MicFFmpegPath:              envOrDefault("MIC_FFMPEG_PATH", "ffmpeg"),
		MicInputFormat:             envOrDefault("MIC_INPUT_FORMAT", inputFormat),
		MicDevice:                  envOrDefault("MIC_DEVICE", device),
		PlaybackMode:               strings.ToLower(envOrDefault("PLAYBACK_MODE", "ffplay")),
		PlaybackFFplayPath:         envOrDefault("PLAYBACK_FFPLAY_PATH", "ffplay"),
		PlaybackFile:               envOrDefault("PLAYBACK_FILE", "emory-reply.ogg"),
		BindAddr:                   envOrDefault("APP_BIND_ADDR", "127.0.0.1:7850"),
		MetricsNamespace:           envOrDefault("APP_METRICS_NAMESPACE", "emory_voice"),
		DatabaseURL:                stringsTrimSpace("DATABASE_URL"),
		LogLevel:                   strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		BackendTimeout:             10 * time.Second,
		ICEGatherTimeout:           5 * time.Second,
		ShutdownTimeout:            15 * time.Second,
		EventsBuffer:               64,
	}

	var err error
	cfg.BackendTimeout, err = durationFromEnv("EMORY_BACKEND_TIMEOUT", cfg.BackendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ICEGatherTimeout, err = durationFromEnv("REALTIME_GATHER_TIMEOUT", cfg.ICEGatherTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsBuffer, err = intFromEnv("APP_EVENTS_BUFFER", cfg.EventsBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that Load cannot default away.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("EMORY_API_BASE_URL cannot be empty")
	}
	if strings.TrimSpace(c.RealtimeURL) == "" {
		return fmt.Errorf("REALTIME_URL cannot be empty")
	}
	if c.BackendTimeout < time.Second {
		return fmt.Errorf("EMORY_BACKEND_TIMEOUT must be at least 1s")
	}
	if c.ICEGatherTimeout <= 0 {
		return fmt.Errorf("REALTIME_GATHER_TIMEOUT must be positive")
	}
	if c.EventsBuffer <= 0 {
		return fmt.Errorf("APP_EVENTS_BUFFER must be positive")
	}
	switch c.PlaybackMode {
	case "ffplay", "file", "discard":
	default:
		return fmt.Errorf("PLAYBACK_MODE %q invalid (expected ffplay|file|discard)", c.PlaybackMode)
	}
	if c.PlaybackMode == "file" && strings.TrimSpace(c.PlaybackFile) == "" {
		return fmt.Errorf("PLAYBACK_FILE cannot be empty when PLAYBACK_MODE=file")
	}
	return nil
}

func defaultMicInput(goos string) (format, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".emory", "token")
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

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
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
