package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
)

// DeliverFunc hands one finished clip to the transport (the websocket
// writer). It must not block for longer than the transport's write deadline.
type DeliverFunc func(audio []byte, text string) error

// StreamDevice delivers clips to a remote listener and paces itself for the
// clip's real duration, scaled by the playback rate, so the next clip cannot
// start before the current one has finished sounding.
type StreamDevice struct {
	deliver DeliverFunc
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewStreamDevice(deliver DeliverFunc) *StreamDevice {
	return &StreamDevice{
		deliver: deliver,
		sleep:   sleepFor,
	}
}

func (d *StreamDevice) Play(ctx context.Context, item *Item, rate float64) error {
	if len(item.Audio) == 0 {
		return fmt.Errorf("empty audio clip")
	}
	if err := d.deliver(item.Audio, item.Text); err != nil {
		return fmt.Errorf("deliver clip: %w", err)
	}
	dur := clipDuration(item.Audio)
	if rate > 0 {
		dur = time.Duration(float64(dur) / rate)
	}
	return d.sleep(ctx, dur)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// clipDuration reads the fmt and data chunks of a WAV clip. Non-WAV or
// malformed audio gets a conservative flat estimate so pacing still works.
func clipDuration(audio []byte) time.Duration {
	const fallback = 2 * time.Second
	if len(audio) < 44 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return fallback
	}
	byteRate := binary.LittleEndian.Uint32(audio[28:32])
	if byteRate == 0 {
		return fallback
	}
	// Walk chunks to find the data chunk; some encoders insert extras.
	off := 12
	for off+8 <= len(audio) {
		id := string(audio[off : off+4])
		size := int(binary.LittleEndian.Uint32(audio[off+4 : off+8]))
		if id == "data" {
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second))
		}
		off += 8 + size
		if size%2 == 1 {
			off++
		}
	}
	return fallback
}
