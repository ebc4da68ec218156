package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookvoice/bookvoice/internal/audio"
	"github.com/bookvoice/bookvoice/internal/backend"
	"github.com/bookvoice/bookvoice/internal/config"
)

func TestBuildSynthesizerWrapsBarePCM(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			http.NotFound(w, r)
			return
		}
		w.Write(pcm)
	}))
	defer ts.Close()

	client := backend.NewClient(ts.URL, 5*time.Second)
	s := buildSynthesizer(config.Config{}, client)

	got, err := s.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(got) < 44 || string(got[0:4]) != "RIFF" || string(got[8:12]) != "WAVE" {
		t.Fatalf("clip header = %q, want a WAV container around the PCM", got[:min(len(got), 12)])
	}
	if !bytes.Equal(got[44:], pcm) {
		t.Fatalf("clip data = %v, want the backend payload", got[44:])
	}
}

func TestBuildSynthesizerPassesThroughWAV(t *testing.T) {
	clip, err := audio.EncodeWAVPCM16LE([]byte{5, 6, 7, 8}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(clip)
	}))
	defer ts.Close()

	client := backend.NewClient(ts.URL, 5*time.Second)
	s := buildSynthesizer(config.Config{}, client)

	got, err := s.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(got, clip) {
		t.Fatal("Synthesize() rewrote a clip that already had a WAV header")
	}
}
