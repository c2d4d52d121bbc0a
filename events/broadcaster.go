package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SSEEvent is one Server-Sent Event frame.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// WriteTo writes the event in text/event-stream format.
func (e SSEEvent) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Event)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

const (
	clientBuffer      = 32
	heartbeatInterval = 15 * time.Second
)

// Broadcaster is a Publisher that fans events out to connected SSE clients.
// Only the topics it was created with are forwarded. A client that falls
// behind by more than its buffer misses events rather than blocking
// publishers.
type Broadcaster struct {
	topics  map[string]bool
	logger  logrus.FieldLogger
	clients map[string]chan SSEEvent
	closed  bool
	mu      sync.RWMutex
}

// NewBroadcaster creates a Broadcaster forwarding the given topics.
func NewBroadcaster(logger logrus.FieldLogger, topics ...string) *Broadcaster {
	allowed := make(map[string]bool, len(topics))
	for _, t := range topics {
		allowed[t] = true
	}
	return &Broadcaster{
		topics:  allowed,
		logger:  logger,
		clients: make(map[string]chan SSEEvent),
	}
}

// Subscribe registers a client and returns its id and event channel. The
// channel is closed by Unsubscribe or Close.
func (b *Broadcaster) Subscribe() (string, <-chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan SSEEvent, clientBuffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.clients[id] = ch
	b.logger.WithField("client", id).Debug("sse client subscribed")
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		b.logger.WithField("client", id).Debug("sse client removed")
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Publish(_ context.Context, topic string, event any) error {
	if !b.topics[topic] {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg := SSEEvent{ID: uuid.NewString(), Event: topic, Data: string(data)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.clients {
		select {
		case ch <- msg:
		default:
			b.logger.WithFields(logrus.Fields{"client": id, "topic": topic}).Warn("sse client is falling behind; event dropped")
		}
	}
	return nil
}

// Close disconnects every client. Later subscribers get a closed channel.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
	b.closed = true
	return nil
}

// ServeHTTP streams events to the client until it disconnects or the
// broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	id, events := b.Subscribe()
	defer b.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-events:
			if !ok {
				return
			}
			if _, err := msg.WriteTo(w); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
