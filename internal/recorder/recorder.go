// Package recorder manages the microphone capture lifecycle: device
// acquisition, chunk buffering, and assembly of the final audio payload.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the capture lifecycle position.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StateStopped              State = "stopped"
)

// Chunk is one raw audio fragment captured at a fixed interval.
type Chunk struct {
	PCM        []byte
	SampleRate int
}

// Payload is the assembled capture handed to the processing pipeline.
type Payload struct {
	PCM        []byte
	SampleRate int
}

// CaptureDevice is an exclusive audio input session. Acquire may fail with a
// permission or availability error; Release must be callable exactly once
// per successful Acquire.
type CaptureDevice interface {
	Acquire(ctx context.Context) (<-chan Chunk, error)
	Release() error
}

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// Controller drives one capture device. On stop it releases the device
// immediately, assembles the buffered chunks, and hands the payload to the
// configured sink (the processing state machine).
type Controller struct {
	device    CaptureDevice
	onPayload func(Payload)

	mu         sync.Mutex
	state      State
	chunks     [][]byte
	sampleRate int
	done       chan struct{}
}

func NewController(device CaptureDevice, onPayload func(Payload)) *Controller {
	return &Controller{
		device:    device,
		onPayload: onPayload,
		state:     StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the device and begins buffering chunks. Permission denial
// or device unavailability returns the controller to Idle; no retry is
// attempted here.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.state = StateRequestingPermission
	c.mu.Unlock()

	chunks, err := c.device.Acquire(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return fmt.Errorf("acquire capture device: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.state = StateRecording
	c.chunks = nil
	c.sampleRate = 0
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for chunk := range chunks {
			c.mu.Lock()
			if c.state != StateRecording {
				c.mu.Unlock()
				return
			}
			if chunk.SampleRate > 0 {
				c.sampleRate = chunk.SampleRate
			}
			c.chunks = append(c.chunks, chunk.PCM)
			c.mu.Unlock()
		}
	}()

	return nil
}

// Stop releases the input device immediately, then assembles the buffered
// chunks into one payload and hands it to the sink. Downstream processing
// happens after the device is already free.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.state = StateStopped
	done := c.done
	c.mu.Unlock()

	releaseErr := c.device.Release()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	total := 0
	for _, part := range c.chunks {
		total += len(part)
	}
	pcm := make([]byte, 0, total)
	for _, part := range c.chunks {
		pcm = append(pcm, part...)
	}
	payload := Payload{PCM: pcm, SampleRate: c.sampleRate}
	c.chunks = nil
	c.done = nil
	c.state = StateIdle
	c.mu.Unlock()

	if c.onPayload != nil {
		c.onPayload(payload)
	}
	if releaseErr != nil {
		return fmt.Errorf("release capture device: %w", releaseErr)
	}
	return nil
}
