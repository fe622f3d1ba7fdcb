package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liamashdown/tokenradar/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Frame is the JSON message a bridge sends per inbound chat message.
// source_id may be a string or a number; a missing timestamp means now.
type Frame struct {
	SourceID  json.RawMessage `json:"source_id"`
	Text      string          `json:"text"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// WebSocketSource reads frames from a bridge (e.g. a userbot relaying
// channels the bot cannot join) and reconnects with exponential backoff.
type WebSocketSource struct {
	url     string
	queue   *Queue
	log     *logrus.Logger
	dialer  *websocket.Dialer
	backoff *backoff
	now     func() time.Time
}

// NewWebSocketSource creates a new bridge source
func NewWebSocketSource(url string, queue *Queue, log *logrus.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:     url,
		queue:   queue,
		log:     log,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: newBackoff(InitialBackoff, MaxBackoff),
		now:     time.Now,
	}
}

// Run connects and reads until ctx is cancelled
func (s *WebSocketSource) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			fields := logrus.Fields{"url": s.url}
			if resp != nil {
				fields["status"] = resp.StatusCode
			}
			s.log.WithError(err).WithFields(fields).Warn("Bridge dial failed")
			if !s.backoff.wait(ctx, 0) {
				return nil
			}
			continue
		}

		s.backoff.reset()
		s.log.WithField("url", s.url).Info("Bridge connected")

		if err := s.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("Bridge read failed, reconnecting")
		}
		conn.Close()

		if !s.backoff.wait(ctx, 0) {
			return nil
		}
	}
}

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		ev, err := s.parse(data)
		if err != nil {
			s.log.WithError(err).Debug("Skipping malformed bridge frame")
			continue
		}
		s.queue.Push(ev)
		metrics.EventsIngested.WithLabelValues("websocket").Inc()
	}
}

func (s *WebSocketSource) parse(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	source := strings.Trim(strings.TrimSpace(string(f.SourceID)), `"`)
	if source == "" || source == "null" {
		return Event{}, fmt.Errorf("frame without source_id")
	}
	if f.Text == "" {
		return Event{}, fmt.Errorf("frame without text")
	}

	ts := s.now().UTC()
	if f.Timestamp != nil && !f.Timestamp.IsZero() {
		ts = f.Timestamp.UTC()
	}
	return Event{SourceID: source, Text: f.Text, Timestamp: ts}, nil
}
