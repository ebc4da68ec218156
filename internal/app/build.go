// Package app assembles the service from its parts: config, metrics, the
// chat log store, the backend client, synthesis, sessions, and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/bookvoice/bookvoice/internal/audio"
	"github.com/bookvoice/bookvoice/internal/backend"
	"github.com/bookvoice/bookvoice/internal/chatlog"
	"github.com/bookvoice/bookvoice/internal/config"
	"github.com/bookvoice/bookvoice/internal/httpapi"
	"github.com/bookvoice/bookvoice/internal/observability"
	"github.com/bookvoice/bookvoice/internal/session"
	"github.com/bookvoice/bookvoice/internal/synth"
)

// App is the assembled service: the handler to serve, the session janitor to
// start, and the cleanup hook to run on shutdown.
type App struct {
	Handler  http.Handler
	Sessions *session.Manager
	Cleanup  func()
}

func Build(ctx context.Context, cfg config.Config) (*App, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := chatlog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("build chat log store: %w", err)
	}

	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)

	synthesizer := buildSynthesizer(cfg, backendClient)

	sessions := session.NewManager(
		cfg.SessionInactivityTimeout,
		cfg.SpeechRateDefault,
		cfg.SpeechRateMin,
		cfg.SpeechRateMax,
	)
	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("session %s expired after inactivity", s.ID)
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	server := httpapi.New(cfg, sessions, store, backendClient, synthesizer, metrics)

	return &App{
		Handler:  server.Router(),
		Sessions: sessions,
		Cleanup: func() {
			if err := store.Close(); err != nil {
				log.Printf("chat log store close failed: %v", err)
			}
		},
	}, nil
}

// buildSynthesizer prefers the backend's synthesis endpoint. When the local
// fallback is enabled and the binary is present, the two run as a failover
// pair; otherwise the backend stands alone.
func buildSynthesizer(cfg config.Config, client *backend.Client) synth.Synthesizer {
	primary := synth.Func(func(ctx context.Context, text string) ([]byte, error) {
		raw, err := client.Synthesize(ctx, text)
		if err != nil {
			return nil, err
		}
		// Playback pacing reads the WAV header; a backend that returns bare
		// PCM gets its clip wrapped here.
		return audio.EnsureWAV(raw, audio.DefaultSampleRate)
	})
	if !cfg.SynthFallbackEnabled {
		return primary
	}
	local, err := synth.NewLocalSynthesizer("")
	if err != nil {
		log.Printf("synthesis fallback disabled: %v", err)
		return primary
	}
	log.Printf("synthesis fallback enabled")
	return synth.NewFailover(primary, local)
}
