package synth

import (
	"context"
	"errors"
	"testing"
)

type scriptedSynth struct {
	fail  bool
	out   []byte
	calls int
}

func (s *scriptedSynth) Synthesize(context.Context, string) ([]byte, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("synthesis down")
	}
	return s.out, nil
}

func TestFailoverPrefersPrimary(t *testing.T) {
	primary := &scriptedSynth{out: []byte("primary")}
	fallback := &scriptedSynth{out: []byte("fallback")}
	s := NewFailover(primary, fallback)

	audio, err := s.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "primary" {
		t.Fatalf("audio = %q, want primary output", audio)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback calls = %d, want 0", fallback.calls)
	}
}

func TestFailoverSticksToFallbackAfterPrimaryFailure(t *testing.T) {
	primary := &scriptedSynth{fail: true}
	fallback := &scriptedSynth{out: []byte("fallback")}
	s := NewFailover(primary, fallback)

	audio, err := s.Synthesize(context.Background(), "one")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "fallback" {
		t.Fatalf("audio = %q, want fallback output", audio)
	}

	primaryCalls := primary.calls
	if _, err := s.Synthesize(context.Background(), "two"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if primary.calls != primaryCalls {
		t.Fatalf("primary calls = %d, want no retry while fallback is active", primary.calls)
	}
}

func TestFailoverReturnsToPrimaryWhenFallbackFails(t *testing.T) {
	primary := &scriptedSynth{fail: true}
	fallback := &scriptedSynth{out: []byte("fallback")}
	s := NewFailover(primary, fallback)

	if _, err := s.Synthesize(context.Background(), "one"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	// Fallback goes down, primary recovers.
	fallback.fail = true
	primary.fail = false
	audio, err := s.Synthesize(context.Background(), "two")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "primary" {
		t.Fatalf("audio = %q, want primary output after recovery", audio)
	}

	// Primary stays preferred again.
	fallback.fail = false
	fallbackCalls := fallback.calls
	if _, err := s.Synthesize(context.Background(), "three"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if fallback.calls != fallbackCalls {
		t.Fatalf("fallback calls = %d, want primary preferred again", fallback.calls)
	}
}

func TestFailoverBothDown(t *testing.T) {
	s := NewFailover(&scriptedSynth{fail: true}, &scriptedSynth{fail: true})
	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("Synthesize() error = nil, want combined failure")
	}
}
