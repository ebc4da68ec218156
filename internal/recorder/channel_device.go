package recorder

import (
	"context"
	"errors"
	"sync"
)

// ChannelDevice adapts chunk pushes from a transport (the websocket reader)
// into the CaptureDevice contract. At most one session holds it at a time.
type ChannelDevice struct {
	mu       sync.Mutex
	ch       chan Chunk
	acquired bool
}

func NewChannelDevice() *ChannelDevice {
	return &ChannelDevice{}
}

func (d *ChannelDevice) Acquire(_ context.Context) (<-chan Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquired {
		return nil, errors.New("capture device busy")
	}
	d.acquired = true
	d.ch = make(chan Chunk, 64)
	return d.ch, nil
}

func (d *ChannelDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired {
		return errors.New("capture device not acquired")
	}
	d.acquired = false
	close(d.ch)
	d.ch = nil
	return nil
}

// Push feeds one chunk into the active session. Chunks arriving while no
// session is active, or while the buffer is saturated, are dropped. The send
// happens under the lock so Release cannot close the channel mid-send.
func (d *ChannelDevice) Push(chunk Chunk) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired || d.ch == nil {
		return false
	}
	select {
	case d.ch <- chunk:
		return true
	default:
		return false
	}
}
