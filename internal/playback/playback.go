// Package playback owns the single audio output path. Exactly one item is
// audible at a time; pacing keeps consecutive clips from overlapping.
package playback

import (
	"context"
	"errors"
	"sync"
)

// Item is one queued utterance: synthesized audio plus the sentence it was
// produced from. The audio buffer is released after one playback.
type Item struct {
	Audio []byte
	Text  string
}

// Device renders a single clip and blocks until it has finished or failed.
type Device interface {
	Play(ctx context.Context, item *Item, rate float64) error
}

var ErrBusy = errors.New("playback already in progress")

// Engine wraps one output device. Callers (the queue manager) are expected
// to serialize playback; Engine still rejects overlap as a hard invariant.
type Engine struct {
	mu      sync.Mutex
	device  Device
	playing bool
}

func NewEngine(device Device) *Engine {
	return &Engine{device: device}
}

// Play renders one item at the given rate. The rate is sampled by the caller
// at the moment playback starts; it is not re-read mid-clip. The item's audio
// buffer is released before Play returns, on success and on error alike, so a
// long conversation cannot accumulate clip buffers.
func (e *Engine) Play(ctx context.Context, item *Item, rate float64) error {
	e.mu.Lock()
	if e.playing {
		e.mu.Unlock()
		return ErrBusy
	}
	e.playing = true
	e.mu.Unlock()

	err := e.device.Play(ctx, item, rate)
	item.Audio = nil

	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	return err
}
