// Package ttsqueue sequences sentence-level speech synthesis and playback.
// Sentences are synthesized in submission order and played strictly FIFO,
// with at most one clip audible at any instant.
package ttsqueue

import (
	"context"
	"log"
	"sync"

	"github.com/bookvoice/bookvoice/internal/observability"
	"github.com/bookvoice/bookvoice/internal/playback"
	"github.com/bookvoice/bookvoice/internal/synth"
)

// Player is the playback engine contract the manager drives.
type Player interface {
	Play(ctx context.Context, item *playback.Item, rate float64) error
}

// Manager holds the ordered queue of synthesized clips and drains it through
// a single playback engine. Both workers are explicit loops guarded by a
// flag; neither recurses.
type Manager struct {
	synth   synth.Synthesizer
	player  Player
	rate    func() float64
	metrics *observability.Metrics

	mu sync.Mutex
	// pending holds sentences awaiting synthesis, in submission order. A
	// single worker consumes it so clip order always matches sentence order
	// even when synthesis latency varies.
	pending      []string
	synthesizing bool
	queue        []*playback.Item
	playing      bool
}

func NewManager(s synth.Synthesizer, player Player, rate func() float64, metrics *observability.Metrics) *Manager {
	if rate == nil {
		rate = func() float64 { return 1.0 }
	}
	return &Manager{
		synth:   s,
		player:  player,
		rate:    rate,
		metrics: metrics,
	}
}

// EnqueueAll synthesizes the given sentences in order and queues each
// successful clip for playback. It returns immediately; synthesis and
// playback proceed in the background. A synthesis failure drops that one
// sentence and does not block the sentences after it.
func (m *Manager) EnqueueAll(ctx context.Context, sentences []string) {
	if len(sentences) == 0 {
		return
	}
	m.mu.Lock()
	m.pending = append(m.pending, sentences...)
	start := !m.synthesizing
	if start {
		m.synthesizing = true
	}
	m.mu.Unlock()

	if start {
		go m.synthLoop(ctx)
	}
}

// Enqueue synthesizes a single utterance and queues it. Same failure policy
// as EnqueueAll.
func (m *Manager) Enqueue(ctx context.Context, text string) {
	m.EnqueueAll(ctx, []string{text})
}

func (m *Manager) synthLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.synthesizing = false
			m.mu.Unlock()
			return
		}
		sentence := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		audio, err := m.synth.Synthesize(ctx, sentence)
		if err != nil {
			// The failed sentence is dropped; the ones after it still play.
			log.Printf("tts synthesis failed for sentence %q: %v", sentence, err)
			if m.metrics != nil {
				m.metrics.PipelineEvents.WithLabelValues("tts_sentence_dropped").Inc()
			}
			continue
		}
		m.push(&playback.Item{Audio: audio, Text: sentence})
		m.drain(ctx)
	}
}

func (m *Manager) push(item *playback.Item) {
	m.mu.Lock()
	m.queue = append(m.queue, item)
	depth := len(m.queue)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.QueueDepth.Set(float64(depth))
	}
}

// drain starts the playback worker unless one is already running. Calling it
// while playback is in progress is a no-op.
func (m *Manager) drain(ctx context.Context) {
	m.mu.Lock()
	if m.playing || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	m.playing = true
	m.mu.Unlock()

	go m.drainLoop(ctx)
}

func (m *Manager) drainLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			// Only here does the worker go quiet; an append racing with
			// this branch re-enters drain and sees playing == false.
			m.playing = false
			m.mu.Unlock()
			return
		}
		item := m.queue[0]
		m.queue = m.queue[1:]
		depth := len(m.queue)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.QueueDepth.Set(float64(depth))
		}

		// Rate is sampled once per clip, at playback start.
		if err := m.player.Play(ctx, item, m.rate()); err != nil {
			// A failed clip advances the queue rather than stalling it.
			log.Printf("playback failed for sentence %q: %v", item.Text, err)
			if m.metrics != nil {
				m.metrics.PipelineEvents.WithLabelValues("playback_error").Inc()
			}
		}
	}
}

// Depth reports how many synthesized clips are waiting for playback.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Playing reports whether the drain worker is active.
func (m *Manager) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}
