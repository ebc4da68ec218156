// Package pipeline implements the processing state machine that serializes
// one user query end-to-end: record, transcribe, search, generate, narrate.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bookvoice/bookvoice/internal/audio"
	"github.com/bookvoice/bookvoice/internal/backend"
	"github.com/bookvoice/bookvoice/internal/chatlog"
	"github.com/bookvoice/bookvoice/internal/observability"
	"github.com/bookvoice/bookvoice/internal/recorder"
	"github.com/bookvoice/bookvoice/internal/segment"
)

// State is the pipeline's position. Exactly one value at a time; transitions
// are the only mutation path.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateSearching    State = "searching"
	StateGenerating   State = "generating"
)

// Backend is the slice of the remote service surface the pipeline drives.
type Backend interface {
	Init(ctx context.Context, book string) error
	Transcribe(ctx context.Context, audioBase64 string, sampleRate int) (string, error)
	Search(ctx context.Context, query string, topK int) ([]backend.SearchResult, error)
	Generate(ctx context.Context, query, contextText string, results []backend.SearchResult, history []backend.HistoryMessage) (string, error)
}

// Narrator queues sentences for sequential speech playback.
type Narrator interface {
	EnqueueAll(ctx context.Context, sentences []string)
}

// Config carries the pipeline's gate thresholds and retrieval fan-out.
type Config struct {
	TopK               int
	AmplitudeThreshold float64
	RelevanceThreshold float64
}

// Pipeline owns all mutable query-handling state for one session. A single
// busy guard ensures at most one query is in flight end-to-end; a second
// request is rejected with a "please wait" status and no other mutation.
type Pipeline struct {
	backendClient Backend
	log           chatlog.Store
	narrator      Narrator
	metrics       *observability.Metrics
	cfg           Config
	sessionID     string

	// onStatus delivers the visual half of a status update; the spoken half
	// goes through the narrator when speak is set.
	onStatus  func(message string, speak bool)
	onMessage func(chatlog.Message)

	mu    sync.Mutex
	state State
}

func New(
	sessionID string,
	backendClient Backend,
	logStore chatlog.Store,
	narrator Narrator,
	metrics *observability.Metrics,
	cfg Config,
	onStatus func(message string, speak bool),
	onMessage func(chatlog.Message),
) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Pipeline{
		backendClient: backendClient,
		log:           logStore,
		narrator:      narrator,
		metrics:       metrics,
		cfg:           cfg,
		sessionID:     sessionID,
		onStatus:      onStatus,
		onMessage:     onMessage,
		state:         StateIdle,
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return false
	}
	p.state = to
	return true
}

func (p *Pipeline) setState(to State) {
	p.mu.Lock()
	p.state = to
	p.mu.Unlock()
}

func (p *Pipeline) announce(ctx context.Context, message string, speak bool) {
	if p.onStatus != nil {
		p.onStatus(message, speak)
	}
	if speak && p.narrator != nil {
		p.narrator.EnqueueAll(ctx, segment.Split(message))
	}
}

func (p *Pipeline) event(name string) {
	if p.metrics != nil {
		p.metrics.PipelineEvents.WithLabelValues(name).Inc()
	}
}

func (p *Pipeline) stage(name string, since time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(name, time.Since(since))
	}
}

func (p *Pipeline) providerError(endpoint string, err error) {
	if p.metrics == nil {
		return
	}
	code := "network"
	var httpErr *backend.HTTPError
	var statusErr *backend.StatusError
	switch {
	case errors.As(err, &httpErr):
		code = strconv.Itoa(httpErr.StatusCode)
	case errors.As(err, &statusErr):
		code = "status"
	}
	p.metrics.ProviderErrors.WithLabelValues(endpoint, code).Inc()
}

// SelectBook loads a corpus on the backend for this session.
func (p *Pipeline) SelectBook(ctx context.Context, book string) error {
	p.announce(ctx, "Loading models...", false)
	if err := p.backendClient.Init(ctx, book); err != nil {
		p.event("init_failed")
		p.providerError("init", err)
		p.announce(ctx, "Error loading models. Please make sure the backend server is running.", false)
		return fmt.Errorf("init book %q: %w", book, err)
	}
	p.announce(ctx, "System ready. Press Space to start voice input or type your question.", false)
	return nil
}

// BeginRecording moves Idle to Recording. While any query is in flight the
// request is rejected with a please-wait status and nothing else changes.
func (p *Pipeline) BeginRecording(ctx context.Context) bool {
	if !p.transition(StateIdle, StateRecording) {
		p.event("busy_rejected")
		p.announce(ctx, "Please wait for processing to complete.", true)
		return false
	}
	p.announce(ctx, "Recording started. Speak now.", true)
	return true
}

// AbortRecording returns to Idle after a capture failure.
func (p *Pipeline) AbortRecording(ctx context.Context) {
	p.setState(StateIdle)
	p.event("recording_aborted")
	p.announce(ctx, "Could not access microphone. Please check permissions.", true)
}

// SubmitAudio runs the captured payload through the full pipeline. It must
// be called from the Recording state (the recorder's stop path).
func (p *Pipeline) SubmitAudio(ctx context.Context, payload recorder.Payload) {
	if !p.transition(StateRecording, StateTranscribing) {
		p.event("busy_rejected")
		p.announce(ctx, "Please wait for processing to complete.", true)
		return
	}
	p.announce(ctx, "Converting speech to text...", true)

	samples, decodeErr := audio.DecodePCM16(payload.PCM)
	if decodeErr != nil {
		log.Printf("captured audio decode failed: %v", decodeErr)
		p.event("audio_decode_failed")
		p.announce(ctx, "Error processing audio. Please try again.", true)
		p.setState(StateIdle)
		return
	}
	// Amplitude gate: skip the transcription round trip entirely on silence.
	if audio.PeakAmplitude(samples) < p.cfg.AmplitudeThreshold {
		p.event("amplitude_gate")
		p.announce(ctx, "Audio too quiet. Please speak louder.", true)
		p.setState(StateIdle)
		return
	}

	started := time.Now()
	text, err := p.backendClient.Transcribe(ctx, base64.StdEncoding.EncodeToString(payload.PCM), payload.SampleRate)
	p.stage("transcribe", started)
	if err != nil {
		log.Printf("transcription failed: %v", err)
		p.event("transcribe_failed")
		p.providerError("transcribe", err)
		p.announce(ctx, "Error processing audio. Please try again.", true)
		p.setState(StateIdle)
		return
	}
	text = strings.TrimSpace(text)
	if isBlankTranscription(text) {
		p.event("blank_transcription")
		p.announce(ctx, "No speech detected. Please try again.", true)
		p.setState(StateIdle)
		return
	}

	p.appendMessage(ctx, chatlog.Message{SessionID: p.sessionID, Text: text, IsUser: true})
	p.announce(ctx, fmt.Sprintf("You said: %s", text), true)
	p.runQuery(ctx, text)
}

// SubmitText runs a typed question through the search/generate stages. While
// a query is in flight the request is rejected without touching the log or
// the queue.
func (p *Pipeline) SubmitText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		p.announce(ctx, "Please enter a question.", true)
		return
	}
	if !p.transition(StateIdle, StateSearching) {
		p.event("busy_rejected")
		p.announce(ctx, "Please wait for the current question to be processed.", true)
		return
	}

	p.appendMessage(ctx, chatlog.Message{SessionID: p.sessionID, Text: text, IsUser: true})
	p.announce(ctx, fmt.Sprintf("You asked: %s", text), true)
	p.runQueryFromSearching(ctx, text)
}

// runQuery enters the search stage from transcription.
func (p *Pipeline) runQuery(ctx context.Context, text string) {
	p.setState(StateSearching)
	p.runQueryFromSearching(ctx, text)
}

func (p *Pipeline) runQueryFromSearching(ctx context.Context, query string) {
	p.announce(ctx, "Searching the book for relevant information...", true)

	started := time.Now()
	results, err := p.backendClient.Search(ctx, query, p.cfg.TopK)
	p.stage("search", started)
	if err != nil {
		log.Printf("search failed: %v", err)
		p.event("search_failed")
		p.providerError("search", err)
		p.announce(ctx, "I encountered an error. Please try again.", true)
		p.setState(StateIdle)
		return
	}
	if len(results) == 0 {
		p.event("no_results")
		const noResult = "I could not find relevant information in the book for your question."
		p.appendMessage(ctx, chatlog.Message{SessionID: p.sessionID, Text: noResult, IsUser: false})
		p.setState(StateIdle)
		p.narrate(ctx, noResult)
		return
	}

	// Relevance gate: only qualifying results feed the context string and
	// the citation. The full, unfiltered set still goes to generation.
	contextText := buildContext(results, p.cfg.RelevanceThreshold)
	var citation string
	if results[0].Score > p.cfg.RelevanceThreshold {
		citation = fmt.Sprintf("Source: %s, Page %s, Paragraph %s", results[0].Chapter, results[0].Page, results[0].Paragraph)
	}

	p.setState(StateGenerating)
	p.announce(ctx, "Generating answer from the book...", true)

	history := p.history(ctx)
	started = time.Now()
	answer, err := p.backendClient.Generate(ctx, query, contextText, results, history)
	p.stage("generate", started)
	if err != nil {
		log.Printf("generation failed: %v", err)
		p.event("generate_failed")
		p.providerError("generate", err)
		p.announce(ctx, "I encountered an error. Please try again.", true)
		p.setState(StateIdle)
		return
	}

	p.appendMessage(ctx, chatlog.Message{
		SessionID: p.sessionID,
		Text:      answer,
		IsUser:    false,
		Source:    citation,
	})
	p.event("query_completed")

	// Narration is a fire-and-forget side effect of leaving Generating; the
	// pipeline is ready for the next query before playback finishes.
	p.setState(StateIdle)
	p.narrate(ctx, answer)
	p.announce(ctx, "Response complete. Press Space for voice input or type your question.", false)
}

// RepeatLast re-narrates the most recent assistant message.
func (p *Pipeline) RepeatLast(ctx context.Context) {
	messages, err := p.log.All(ctx, p.sessionID)
	if err != nil {
		log.Printf("chat log read failed: %v", err)
		return
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].IsUser {
			p.announce(ctx, "Repeating last response...", true)
			p.narrate(ctx, messages[i].Text)
			return
		}
	}
	p.announce(ctx, "No response to repeat.", true)
}

// ClearChat replaces the whole conversation log with an empty one.
func (p *Pipeline) ClearChat(ctx context.Context) error {
	if err := p.log.Clear(ctx, p.sessionID); err != nil {
		return fmt.Errorf("clear chat log: %w", err)
	}
	p.event("chat_cleared")
	p.announce(ctx, "Chat history cleared.", true)
	return nil
}

func (p *Pipeline) narrate(ctx context.Context, text string) {
	if p.narrator == nil {
		return
	}
	p.narrator.EnqueueAll(ctx, segment.Split(text))
}

func (p *Pipeline) appendMessage(ctx context.Context, msg chatlog.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := p.log.Append(ctx, msg); err != nil {
		log.Printf("chat log append failed: %v", err)
		return
	}
	if p.onMessage != nil {
		p.onMessage(msg)
	}
}

func (p *Pipeline) history(ctx context.Context) []backend.HistoryMessage {
	messages, err := p.log.All(ctx, p.sessionID)
	if err != nil {
		log.Printf("chat log read failed: %v", err)
		return nil
	}
	out := make([]backend.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, backend.HistoryMessage{
			Text:      m.Text,
			IsUser:    m.IsUser,
			Source:    m.Source,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func buildContext(results []backend.SearchResult, threshold float64) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Score <= threshold {
			continue
		}
		parts = append(parts, fmt.Sprintf(
			"From %s, Page %s, Paragraph %s (Score: %g): %s",
			r.Chapter, r.Page, r.Paragraph, r.Score, r.Text,
		))
	}
	return strings.Join(parts, "\n\n")
}

// isBlankTranscription detects the recognizer's blank-audio markers.
func isBlankTranscription(text string) bool {
	if text == "" {
		return true
	}
	if text == "[BLANK_AUDIO]" || text == "[INAUDIBLE]" {
		return true
	}
	return strings.Contains(text, "BLANK")
}
