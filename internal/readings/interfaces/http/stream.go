package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"hydro-cloud/internal/observability/metrics"
	"hydro-cloud/internal/readings/application"
)

// StreamEvent is one encoded alert queued for a stream client.
type StreamEvent struct {
	ID   string
	Data []byte
}

// SSEBroker fans out alert events to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan StreamEvent]struct{}
	logger  *log.Logger
}

// NewSSEBroker constructs a broker.
func NewSSEBroker(logger *log.Logger) *SSEBroker {
	if logger == nil {
		logger = log.Default()
	}
	return &SSEBroker{clients: make(map[chan StreamEvent]struct{}), logger: logger}
}

// Notify implements application.AlertNotifier.
func (b *SSEBroker) Notify(_ context.Context, event application.AlertEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Printf("alert stream: encode event: %v", err)
		return
	}
	b.broadcast(StreamEvent{ID: event.ID, Data: payload})
	metrics.ObserveNotification("sse", metrics.ResultSuccess)
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan StreamEvent {
	if b == nil {
		return nil
	}
	ch := make(chan StreamEvent, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	metrics.AddStreamClients(1)
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan StreamEvent) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
		metrics.AddStreamClients(-1)
	}
	b.mu.Unlock()
}

// Clients returns the number of subscribers.
func (b *SSEBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// broadcast drops the event for clients whose buffer is full.
func (b *SSEBroker) broadcast(event StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

// StreamHandler serves the SSE alert stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/stream/alerts.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.ID != "" {
				_, _ = w.Write([]byte("id: " + event.ID + "\n"))
			}
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(event.Data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
