package notify

import (
	"context"

	"hydro-cloud/internal/readings/application"
)

// MultiNotifier hands each unit alert to every configured sink: the live SSE
// stream, the webhook notifier and the Kafka publisher. Sinks are called in
// order on the caller's goroutine; each one logs and counts its own failures.
type MultiNotifier struct {
	sinks []application.AlertNotifier
}

// NewMultiNotifier keeps the non-nil sinks in the order given.
func NewMultiNotifier(sinks ...application.AlertNotifier) *MultiNotifier {
	kept := make([]application.AlertNotifier, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &MultiNotifier{sinks: kept}
}

// Len reports how many alert sinks are attached.
func (m *MultiNotifier) Len() int {
	if m == nil {
		return 0
	}
	return len(m.sinks)
}

// Notify implements application.AlertNotifier.
func (m *MultiNotifier) Notify(ctx context.Context, event application.AlertEvent) {
	if m == nil {
		return
	}
	for _, sink := range m.sinks {
		sink.Notify(ctx, event)
	}
}
