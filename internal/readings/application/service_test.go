package application

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	readings "hydro-cloud/internal/readings/domain"
	"hydro-cloud/internal/readings/infrastructure/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event AlertEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingNotifier) Events() []AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertEvent(nil), r.events...)
}

type recordingSink struct {
	mu       sync.Mutex
	readings []readings.Reading
	err      error
}

func (r *recordingSink) Archive(ctx context.Context, reading readings.Reading) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	r.mu.Lock()
	r.readings = append(r.readings, reading)
	r.mu.Unlock()
	return r.err
}

func (r *recordingSink) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

var ts0 = time.Date(2025, 5, 24, 12, 34, 56, 0, time.UTC)

func values(ph float64) map[string]float64 {
	return map[string]float64{readings.MetricPH: ph, readings.MetricTemp: 22.1, readings.MetricEC: 1.2}
}

func newService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	service, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, store
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestIngestHealthyAndAlert(t *testing.T) {
	notifier := &recordingNotifier{}
	service, _ := newService(t, WithNotifier(notifier))
	ctx := context.Background()

	healthy, err := service.Ingest(ctx, IngestCommand{UnitID: "u1", Timestamp: ts0, Values: values(6.5)})
	if err != nil {
		t.Fatalf("ingest healthy: %v", err)
	}
	if healthy.Classification != readings.ClassificationHealthy {
		t.Fatalf("expected Healthy, got %s", healthy.Classification)
	}
	alert, err := service.Ingest(ctx, IngestCommand{UnitID: "u1", Timestamp: ts0.Add(time.Minute), Values: values(8.0)})
	if err != nil {
		t.Fatalf("ingest alert: %v", err)
	}
	if alert.Classification != readings.ClassificationNeedsAttention {
		t.Fatalf("expected Needs Attention, got %s", alert.Classification)
	}
	service.Wait()

	recent, _ := service.Recent(ctx, "u1")
	if len(recent) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(recent))
	}
	alerts, _ := service.Alerts(ctx, "u1")
	if len(alerts) != 1 || alerts[0].Values[readings.MetricPH] != 8.0 {
		t.Fatalf("expected the pH 8.0 alert, got %+v", alerts)
	}

	events := notifier.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 alert event, got %d", len(events))
	}
	if events[0].Type != EventTypeAlert || events[0].UnitID != "u1" || events[0].Classification != "Needs Attention" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestIngestRejectsWithoutStoring(t *testing.T) {
	service, store := newService(t)
	vals := values(6.5)
	delete(vals, readings.MetricEC)

	_, err := service.Ingest(context.Background(), IngestCommand{UnitID: "u1", Timestamp: ts0, Values: vals})
	if !errors.Is(err, readings.ErrMissingReadings) {
		t.Fatalf("expected ErrMissingReadings, got %v", err)
	}
	if store.UnitCount() != 0 {
		t.Fatalf("expected nothing stored, got %d units", store.UnitCount())
	}
}

func TestQueriesUseWindow(t *testing.T) {
	service, _ := newService(t, WithQueryWindow(3))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := service.Ingest(ctx, IngestCommand{UnitID: "u1", Timestamp: ts0.Add(time.Duration(i) * time.Minute), Values: values(9)}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	recent, _ := service.Recent(ctx, "u1")
	alerts, _ := service.Alerts(ctx, "u1")
	if len(recent) != 3 || len(alerts) != 3 {
		t.Fatalf("expected window of 3, got %d readings and %d alerts", len(recent), len(alerts))
	}
	if _, err := service.Recent(ctx, ""); !errors.Is(err, readings.ErrEmptyUnitID) {
		t.Fatalf("expected ErrEmptyUnitID, got %v", err)
	}
}

func TestArchiveFailureDoesNotFailIngest(t *testing.T) {
	var buf bytes.Buffer
	good := &recordingSink{}
	bad := &recordingSink{err: errors.New("connection refused")}
	service, _ := newService(t,
		WithArchive("good", good),
		WithArchive("bad", bad),
		WithLogger(log.New(&buf, "", 0)),
		WithArchiveTimeout(time.Second),
	)

	if _, err := service.Ingest(context.Background(), IngestCommand{UnitID: "u1", Timestamp: ts0, Values: values(6.0)}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	service.Wait()

	if good.Count() != 1 || bad.Count() != 1 {
		t.Fatalf("expected both sinks called once, got %d and %d", good.Count(), bad.Count())
	}
	if !strings.Contains(buf.String(), "archive bad") {
		t.Fatalf("expected archive failure logged, got %q", buf.String())
	}
}

func TestBackgroundWorkOutlivesRequestContext(t *testing.T) {
	sink := &recordingSink{}
	service, _ := newService(t, WithArchive("mirror", sink))
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := service.Ingest(ctx, IngestCommand{UnitID: "u1", Timestamp: ts0, Values: values(6.0)}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	cancel()
	service.Wait()
	if sink.Count() != 1 {
		t.Fatalf("expected archive write after cancel, got %d", sink.Count())
	}
}

func TestNewAlertEventCopiesValues(t *testing.T) {
	reading, err := readings.NewReading("u1", ts0, values(4.0))
	if err != nil {
		t.Fatalf("new reading: %v", err)
	}
	event := NewAlertEvent(reading)
	if event.ID == "" || event.ID == NewAlertEvent(reading).ID {
		t.Fatalf("expected unique event id, got %q", event.ID)
	}
	event.Readings[readings.MetricPH] = 1
	if reading.Values[readings.MetricPH] != 4.0 {
		t.Fatalf("expected reading untouched")
	}
}
