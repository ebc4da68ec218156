package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bookvoice/bookvoice/internal/chatlog"
	"github.com/bookvoice/bookvoice/internal/pipeline"
	"github.com/bookvoice/bookvoice/internal/playback"
	"github.com/bookvoice/bookvoice/internal/protocol"
	"github.com/bookvoice/bookvoice/internal/recorder"
	"github.com/bookvoice/bookvoice/internal/ttsqueue"
)

const (
	writeTimeout    = 10 * time.Second
	outboundBacklog = 256
)

// wsConn is the per-connection wiring: the websocket plus the recorder,
// pipeline, and narration queue bound to one session.
type wsConn struct {
	server    *Server
	sock      *websocket.Conn
	sessionID string

	outbound chan any
	closed   atomic.Bool

	device     *recorder.ChannelDevice
	controller *recorder.Controller
	pipe       *pipeline.Pipeline
	narrator   *ttsqueue.Manager
	audioSeq   atomic.Int64
}

// handleSessionWS upgrades the connection and runs the session loop until the
// client disconnects. All assistant output for the session flows back over
// this socket: status updates, chat log entries, and synthesized audio clips.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for session %s: %v", sessionID, err)
		return
	}

	c := s.newWSConn(sock, sessionID)
	s.registerPipeline(sessionID, c.pipe)
	defer s.unregisterPipeline(sessionID)

	c.run(r.Context())
}

func (s *Server) newWSConn(sock *websocket.Conn, sessionID string) *wsConn {
	c := &wsConn{
		server:    s,
		sock:      sock,
		sessionID: sessionID,
		outbound:  make(chan any, outboundBacklog),
	}

	engine := playback.NewEngine(playback.NewStreamDevice(c.deliverAudio))
	c.narrator = ttsqueue.NewManager(
		s.synthesizer,
		engine,
		func() float64 { return s.sessions.SpeechRate(sessionID) },
		s.metrics,
	)

	c.pipe = pipeline.New(
		sessionID,
		s.backend,
		s.logStore,
		c.narrator,
		s.metrics,
		pipeline.Config{
			TopK:               s.cfg.SearchTopK,
			AmplitudeThreshold: s.cfg.AmplitudeThreshold,
			RelevanceThreshold: s.cfg.RelevanceThreshold,
		},
		c.sendStatus,
		c.sendChatMessage,
	)

	c.device = recorder.NewChannelDevice()
	c.controller = recorder.NewController(c.device, func(p recorder.Payload) {
		// The stop path must not block the reader; the pipeline serializes
		// concurrent submissions itself.
		go c.pipe.SubmitAudio(context.Background(), p)
	})

	return c
}

func (c *wsConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)

	defer func() {
		c.closed.Store(true)
		close(c.outbound)
		<-writerDone
		_ = c.sock.Close()
		if c.controller.State() == recorder.StateRecording {
			_ = c.controller.Stop()
		}
	}()

	c.readLoop(ctx)
}

func (c *wsConn) readLoop(ctx context.Context) {
	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read ended for session %s: %v", c.sessionID, err)
			}
			return
		}
		c.countMessage("inbound", "raw")

		msg, err := protocol.ParseClientMessage(raw)
		if err != nil {
			c.sendError("bad_message", "client", false, err.Error())
			continue
		}
		if err := c.server.sessions.Touch(c.sessionID); err != nil {
			c.sendError("session_expired", "session", false, err.Error())
			return
		}

		switch m := msg.(type) {
		case protocol.ClientAudioChunk:
			c.handleAudioChunk(m)
		case protocol.ClientControl:
			c.handleControl(ctx, m)
		}
	}
}

func (c *wsConn) handleAudioChunk(m protocol.ClientAudioChunk) {
	pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
	if err != nil {
		c.sendError("bad_audio_chunk", "client", false, "pcm payload is not valid base64")
		return
	}
	if !c.device.Push(recorder.Chunk{PCM: pcm, SampleRate: m.SampleRate}) {
		// No active recording, or the buffer is saturated. Either way the
		// chunk is dropped; the client keeps streaming regardless.
		c.countMessage("inbound", "dropped_chunk")
	}
}

func (c *wsConn) handleControl(ctx context.Context, m protocol.ClientControl) {
	switch m.Action {
	case protocol.ActionStartRecord:
		if !c.pipe.BeginRecording(ctx) {
			return
		}
		if err := c.controller.Start(ctx); err != nil {
			log.Printf("capture start failed for session %s: %v", c.sessionID, err)
			c.pipe.AbortRecording(ctx)
		}
	case protocol.ActionStopRecord:
		if err := c.controller.Stop(); err != nil {
			if !errors.Is(err, recorder.ErrNotRecording) {
				log.Printf("capture stop failed for session %s: %v", c.sessionID, err)
			}
		}
	case protocol.ActionSubmitText:
		go c.pipe.SubmitText(context.WithoutCancel(ctx), m.Text)
	case protocol.ActionClearChat:
		if err := c.pipe.ClearChat(ctx); err != nil {
			log.Printf("clear chat failed for session %s: %v", c.sessionID, err)
			c.sendError("chat_log_error", "storage", true, err.Error())
		}
	case protocol.ActionSetRate:
		rate, err := c.server.sessions.SetSpeechRate(c.sessionID, m.Rate)
		if err != nil {
			c.sendError("session_expired", "session", false, err.Error())
			return
		}
		c.sendStatus(rateStatusMessage(rate), false)
	case protocol.ActionSelectBook:
		if err := c.server.sessions.SetBook(c.sessionID, m.Book); err != nil {
			c.sendError("session_expired", "session", false, err.Error())
			return
		}
		go func() {
			if err := c.pipe.SelectBook(context.WithoutCancel(ctx), m.Book); err != nil {
				log.Printf("book init failed for session %s: %v", c.sessionID, err)
			}
		}()
	case protocol.ActionRepeatLast:
		go c.pipe.RepeatLast(context.WithoutCancel(ctx))
	default:
		c.sendError("unknown_action", "client", false, "unrecognized control action: "+m.Action)
	}
}

func (c *wsConn) writeLoop(done chan<- struct{}) {
	defer close(done)
	for msg := range c.outbound {
		_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.sock.WriteJSON(msg); err != nil {
			log.Printf("websocket write failed for session %s: %v", c.sessionID, err)
			// Keep draining so senders never block on a dead socket.
		}
	}
}

// send queues one outbound message. Messages are dropped once the backlog is
// full or the connection is closing; the log and metrics record the loss.
func (c *wsConn) send(kind string, msg any) {
	if c.closed.Load() {
		return
	}
	defer func() {
		// Losing the close race means sending on a closed channel; treat it
		// the same as a post-close drop.
		_ = recover()
	}()
	select {
	case c.outbound <- msg:
		c.countMessage("outbound", kind)
	default:
		log.Printf("outbound backlog full for session %s, dropping %s", c.sessionID, kind)
		c.countMessage("outbound", "dropped")
	}
}

func (c *wsConn) sendStatus(message string, speak bool) {
	c.send("status_event", protocol.StatusEvent{
		Type:      protocol.TypeStatusEvent,
		SessionID: c.sessionID,
		Message:   message,
		Speak:     speak,
	})
}

func (c *wsConn) sendChatMessage(msg chatlog.Message) {
	c.send("chat_message", protocol.ChatMessage{
		Type:      protocol.TypeChatMessage,
		SessionID: c.sessionID,
		Text:      msg.Text,
		IsUser:    msg.IsUser,
		Source:    msg.Source,
		Timestamp: msg.CreatedAt,
	})
}

func (c *wsConn) sendError(code, source string, retryable bool, detail string) {
	c.send("error_event", protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: c.sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	})
}

// deliverAudio is the playback device's transport hook: one synthesized clip
// per call, in strict queue order.
func (c *wsConn) deliverAudio(audio []byte, text string) error {
	if c.closed.Load() {
		return errors.New("connection closed")
	}
	c.send("assistant_audio", protocol.AssistantAudio{
		Type:        protocol.TypeAssistantAudio,
		SessionID:   c.sessionID,
		Seq:         int(c.audioSeq.Add(1)),
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Text:        text,
	})
	return nil
}

func (c *wsConn) countMessage(direction, kind string) {
	if c.server.metrics != nil {
		c.server.metrics.WSMessages.WithLabelValues(direction, kind).Inc()
	}
}

func rateStatusMessage(rate float64) string {
	switch {
	case rate < 0.9:
		return "Speech rate set to slow."
	case rate > 1.1:
		return "Speech rate set to fast."
	default:
		return "Speech rate set to normal."
	}
}
