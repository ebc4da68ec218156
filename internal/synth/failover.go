package synth

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailover builds a synthesizer that prefers primary and switches to
// fallback when primary fails. Once fallback succeeds it stays active until
// fallback itself fails; then primary is retried.
func NewFailover(primary, fallback Synthesizer) Synthesizer {
	return &failoverSynthesizer{primary: primary, fallback: fallback}
}

type failoverSynthesizer struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func (s *failoverSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.fallbackActive.Load() {
		audio, fbErr := s.fallback.Synthesize(ctx, text)
		if fbErr == nil {
			return audio, nil
		}
		// Fallback failed after being active; try primary again.
		audio, prErr := s.primary.Synthesize(ctx, text)
		if prErr == nil {
			s.fallbackActive.Store(false)
			return audio, nil
		}
		return nil, fmt.Errorf("synth fallback failed: %v; synth primary failed: %w", fbErr, prErr)
	}

	audio, prErr := s.primary.Synthesize(ctx, text)
	if prErr == nil {
		return audio, nil
	}
	audio, fbErr := s.fallback.Synthesize(ctx, text)
	if fbErr != nil {
		return nil, fmt.Errorf("synth primary failed: %v; synth fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	return audio, nil
}
