package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hydro-cloud/internal/readings/application"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	broker := NewSSEBroker(log.New(io.Discard, "", 0))
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	event := application.AlertEvent{
		ID:             "evt-1",
		Type:           application.EventTypeAlert,
		UnitID:         "u1",
		Timestamp:      time.Date(2025, 5, 24, 12, 0, 0, 0, time.UTC),
		Readings:       map[string]float64{"pH": 8},
		Classification: "Needs Attention",
	}
	broker.Notify(context.Background(), event)

	select {
	case msg := <-ch:
		if msg.ID != "evt-1" {
			t.Fatalf("expected event id evt-1, got %q", msg.ID)
		}
		var got application.AlertEvent
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.UnitID != "u1" || got.Type != "alert" || got.Readings["pH"] != 8 {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBrokerUnsubscribeIsIdempotent(t *testing.T) {
	broker := NewSSEBroker(nil)
	ch := broker.Subscribe()
	broker.Unsubscribe(ch)
	broker.Unsubscribe(ch)
	if broker.Clients() != 0 {
		t.Fatalf("expected no clients, got %d", broker.Clients())
	}
	broker.Notify(context.Background(), application.AlertEvent{Type: application.EventTypeAlert})
}

func TestBrokerDropsWhenClientIsSlow(t *testing.T) {
	broker := NewSSEBroker(nil)
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)
	for i := 0; i < cap(ch)+5; i++ {
		broker.Notify(context.Background(), application.AlertEvent{Type: application.EventTypeAlert})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected buffer full at %d, got %d", cap(ch), len(ch))
	}
}

func TestStreamHandlerWritesAlertEvents(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/stream/alerts", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string, string) {
		var id, name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return id, name, data
			case strings.HasPrefix(line, "id: "):
				id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	if _, name, _ := readEvent(); name != "ready" {
		t.Fatalf("expected ready event, got %q", name)
	}

	body := sensorBody("u7", "2025-05-24T12:00:00Z", 4.2)
	post, err := http.Post(server.URL+"/api/sensor", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()

	id, name, data := readEvent()
	if name != "alert" {
		t.Fatalf("expected alert event, got %q", name)
	}
	var event application.AlertEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.UnitID != "u7" || event.Classification != "Needs Attention" || event.ID != id {
		t.Fatalf("unexpected event %+v", event)
	}
}
