package config

import (
	"testing"
	"time"
)

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_METRICS_NAMESPACE",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_DEFAULT_BOOK",
		"APP_SEARCH_TOP_K",
		"APP_AMPLITUDE_THRESHOLD",
		"APP_RELEVANCE_THRESHOLD",
		"APP_SPEECH_RATE_DEFAULT",
		"APP_SPEECH_RATE_MIN",
		"APP_SPEECH_RATE_MAX",
		"APP_SYNTH_FALLBACK_ENABLED",
		"BACKEND_BASE_URL",
		"BACKEND_TIMEOUT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SearchTopK != 3 {
		t.Fatalf("SearchTopK = %d, want 3", cfg.SearchTopK)
	}
	if cfg.AmplitudeThreshold != 0.01 {
		t.Fatalf("AmplitudeThreshold = %v, want 0.01", cfg.AmplitudeThreshold)
	}
	if cfg.RelevanceThreshold != 10 {
		t.Fatalf("RelevanceThreshold = %v, want 10", cfg.RelevanceThreshold)
	}
	if cfg.SpeechRateDefault != 1.0 || cfg.SpeechRateMin != 0.5 || cfg.SpeechRateMax != 2.0 {
		t.Fatalf("speech rate bounds = %v [%v, %v], want 1.0 [0.5, 2.0]",
			cfg.SpeechRateDefault, cfg.SpeechRateMin, cfg.SpeechRateMax)
	}
	if cfg.SessionInactivityTimeout != 10*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 10m", cfg.SessionInactivityTimeout)
	}
	if cfg.SynthFallbackEnabled {
		t.Fatal("SynthFallbackEnabled = true, want false by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("APP_AMPLITUDE_THRESHOLD", "0.05")
	t.Setenv("APP_RELEVANCE_THRESHOLD", "7.5")
	t.Setenv("APP_SEARCH_TOP_K", "5")
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "30s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("BACKEND_BASE_URL", "http://backend:9000/api/")
	t.Setenv("APP_SPEECH_RATE_DEFAULT", "1.2")
	t.Setenv("APP_SPEECH_RATE_MIN", "0.8")
	t.Setenv("APP_SPEECH_RATE_MAX", "3.0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want :9191", cfg.BindAddr)
	}
	if cfg.AmplitudeThreshold != 0.05 {
		t.Fatalf("AmplitudeThreshold = %v, want 0.05", cfg.AmplitudeThreshold)
	}
	if cfg.RelevanceThreshold != 7.5 {
		t.Fatalf("RelevanceThreshold = %v, want 7.5", cfg.RelevanceThreshold)
	}
	if cfg.SearchTopK != 5 {
		t.Fatalf("SearchTopK = %d, want 5", cfg.SearchTopK)
	}
	if cfg.SessionInactivityTimeout != 30*time.Second {
		t.Fatalf("SessionInactivityTimeout = %v, want 30s", cfg.SessionInactivityTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin = false, want true")
	}
	if cfg.SpeechRateDefault != 1.2 || cfg.SpeechRateMin != 0.8 || cfg.SpeechRateMax != 3.0 {
		t.Fatalf("speech rate bounds = %v [%v, %v], want 1.2 [0.8, 3.0]",
			cfg.SpeechRateDefault, cfg.SpeechRateMin, cfg.SpeechRateMax)
	}
}

func TestLoadParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "APP_SESSION_INACTIVITY_TIMEOUT", "soon"},
		{"bad int", "APP_SEARCH_TOP_K", "three"},
		{"bad float", "APP_AMPLITUDE_THRESHOLD", "quiet"},
		{"bad bool", "APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want parse error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-positive topK", "APP_SEARCH_TOP_K", "0"},
		{"amplitude above one", "APP_AMPLITUDE_THRESHOLD", "1.5"},
		{"inactivity too short", "APP_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"rate out of bounds", "APP_SPEECH_RATE_DEFAULT", "3.0"},
		{"inverted rate bounds", "APP_SPEECH_RATE_MIN", "2.5"},
		{"non-positive rate floor", "APP_SPEECH_RATE_MIN", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want validation error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
