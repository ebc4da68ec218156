package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the book voice assistant service.
type Config struct {
	BindAddr                 string
	MetricsNamespace         string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration

	AllowAnyOrigin bool

	BackendBaseURL string
	BackendTimeout time.Duration

	DefaultBook string
	SearchTopK  int

	// AmplitudeThreshold gates transcription: captured audio whose peak
	// absolute sample amplitude falls below it is treated as silence.
	AmplitudeThreshold float64
	// RelevanceThreshold gates citations and generation context; results
	// scoring at or below it are excluded from both.
	RelevanceThreshold float64

	SpeechRateDefault float64
	SpeechRateMin     float64
	SpeechRateMax     float64

	SynthFallbackEnabled bool

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is merged in first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "bookvoice"),
		BackendBaseURL:   envOrDefault("BACKEND_BASE_URL", "http://127.0.0.1:9000/api"),
		DefaultBook:      envOrDefault("APP_DEFAULT_BOOK", ""),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),

		SearchTopK: 3,
		// Relevance score units are unspecified upstream, so both thresholds
		// stay configurable rather than derived.
		AmplitudeThreshold: 0.01,
		RelevanceThreshold: 10,

		SpeechRateDefault: 1.0,
		SpeechRateMin:     0.5,
		SpeechRateMax:     2.0,

		BackendTimeout:           60 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendTimeout, err = durationFromEnv("BACKEND_TIMEOUT", cfg.BackendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchTopK, err = intFromEnv("APP_SEARCH_TOP_K", cfg.SearchTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.AmplitudeThreshold, err = floatFromEnv("APP_AMPLITUDE_THRESHOLD", cfg.AmplitudeThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.RelevanceThreshold, err = floatFromEnv("APP_RELEVANCE_THRESHOLD", cfg.RelevanceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechRateDefault, err = floatFromEnv("APP_SPEECH_RATE_DEFAULT", cfg.SpeechRateDefault)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechRateMin, err = floatFromEnv("APP_SPEECH_RATE_MIN", cfg.SpeechRateMin)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechRateMax, err = floatFromEnv("APP_SPEECH_RATE_MAX", cfg.SpeechRateMax)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthFallbackEnabled, err = boolFromEnv("APP_SYNTH_FALLBACK_ENABLED", cfg.SynthFallbackEnabled)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return Config{}, fmt.Errorf("BACKEND_BASE_URL must not be empty")
	}
	if cfg.SearchTopK <= 0 {
		return Config{}, fmt.Errorf("APP_SEARCH_TOP_K must be positive")
	}
	if cfg.AmplitudeThreshold < 0 || cfg.AmplitudeThreshold > 1 {
		return Config{}, fmt.Errorf("APP_AMPLITUDE_THRESHOLD must be within [0, 1]")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SpeechRateMin <= 0 || cfg.SpeechRateMax <= cfg.SpeechRateMin {
		return Config{}, fmt.Errorf("APP_SPEECH_RATE_MIN and APP_SPEECH_RATE_MAX must satisfy 0 < min < max")
	}
	if cfg.SpeechRateDefault < cfg.SpeechRateMin || cfg.SpeechRateDefault > cfg.SpeechRateMax {
		return Config{}, fmt.Errorf("APP_SPEECH_RATE_DEFAULT must be within [%.1f, %.1f]", cfg.SpeechRateMin, cfg.SpeechRateMax)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
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
