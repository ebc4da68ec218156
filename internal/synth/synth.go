// Package synth defines the per-sentence speech synthesizer contract and its
// local fallback / failover implementations.
package synth

import "context"

// Synthesizer produces audio bytes for one sentence of text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Func adapts a plain function to the Synthesizer interface.
type Func func(ctx context.Context, text string) ([]byte, error)

func (f Func) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}
