// Package logstream fans harness log messages out to Server-Sent Events
// subscribers.
package logstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/psantana5/crashloop/pkg/logging"
)

// ConnectedFrame is the first frame every subscriber receives.
const ConnectedFrame = "data: Connected to SSE stream\n\n"

const defaultBuffer = 64

// Hub broadcasts messages to every connected subscriber. A subscriber whose
// buffer is full misses messages; Broadcast never blocks.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan string]struct{}
	buffer  int
	dropped uint64
}

// NewHub creates a hub with a per-subscriber buffer of bufferSize messages.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	return &Hub{subs: make(map[chan string]struct{}), buffer: bufferSize}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Broadcast delivers msg to every subscriber that has room for it.
func (h *Hub) Broadcast(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped++
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Sink mirrors log entries of at least level into the hub.
func (h *Hub) Sink(level logging.Level) logging.Sink {
	return func(entry logging.LogEntry) {
		if logging.ParseLevel(entry.Level) < level {
			return
		}
		h.Broadcast(entry.Text())
	}
}

// Close ends every open stream. Later subscribers are unaffected.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Frame encodes msg as one SSE data frame: data: {"message":"..."}
func Frame(msg string) string {
	b, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{msg})
	return fmt.Sprintf("data: %s\n\n", b)
}

// ServeHTTP streams messages to the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	msgs, unsubscribe := h.Subscribe()
	defer unsubscribe()

	fmt.Fprint(w, ConnectedFrame)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, Frame(msg)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
