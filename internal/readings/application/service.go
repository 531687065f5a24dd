package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hydro-cloud/internal/observability/metrics"
	readings "hydro-cloud/internal/readings/domain"
)

// DefaultQueryWindow is the number of readings returned by history queries.
const DefaultQueryWindow = 10

// EventTypeAlert labels alert events.
const EventTypeAlert = "alert"

// IngestCommand carries one decoded sensor submission.
type IngestCommand struct {
	UnitID    string
	Timestamp time.Time
	Values    map[string]float64
}

// AlertEvent is published for every reading classified as an alert.
type AlertEvent struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	UnitID         string             `json:"unitId"`
	Timestamp      time.Time          `json:"timestamp"`
	Readings       map[string]float64 `json:"readings"`
	Classification string             `json:"classification"`
}

// NewAlertEvent builds the alert event for a reading under a fresh event id.
func NewAlertEvent(r readings.Reading) AlertEvent {
	r = r.Clone()
	return AlertEvent{
		ID:             uuid.NewString(),
		Type:           EventTypeAlert,
		UnitID:         r.UnitID,
		Timestamp:      r.Timestamp,
		Readings:       r.Values,
		Classification: string(r.Classification),
	}
}

// AlertNotifier publishes alert events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// ArchiveSink mirrors accepted readings to a secondary store.
type ArchiveSink interface {
	Archive(ctx context.Context, reading readings.Reading) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type namedSink struct {
	name string
	sink ArchiveSink
}

// Service ingests sensor readings and answers history queries.
type Service struct {
	store          readings.Store
	notifier       AlertNotifier
	sinks          []namedSink
	clock          Clock
	logger         *log.Logger
	window         int
	archiveTimeout time.Duration
	wg             sync.WaitGroup
}

// ServiceOption customizes the readings service.
type ServiceOption func(*Service)

// WithNotifier assigns the alert notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithArchive adds an archive mirror. Failures are logged and never reach the caller.
func WithArchive(name string, sink ArchiveSink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQueryWindow overrides how many readings history queries return.
func WithQueryWindow(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithArchiveTimeout bounds each background notification and archive write.
func WithArchiveTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.archiveTimeout = timeout
		}
	}
}

// NewService constructs a readings service.
func NewService(store readings.Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("readings: nil store")
	}
	service := &Service{
		store:          store,
		clock:          systemClock{},
		logger:         log.Default(),
		window:         DefaultQueryWindow,
		archiveTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest validates, classifies and stores a reading. Alert readings are
// published and every accepted reading is mirrored to the archives in the
// background.
func (s *Service) Ingest(ctx context.Context, cmd IngestCommand) (readings.Reading, error) {
	if s == nil {
		return readings.Reading{}, errors.New("readings: nil service")
	}
	start := s.clock.Now()
	reading, err := readings.NewReading(cmd.UnitID, cmd.Timestamp, cmd.Values)
	if err != nil {
		metrics.IncIngestError(errorReason(err))
		metrics.ObserveIngest(metrics.ResultError, s.clock.Now().Sub(start))
		return readings.Reading{}, err
	}

	s.store.Append(reading.UnitID, reading)
	metrics.IncReading(string(reading.Classification))
	metrics.ObserveIngest(metrics.ResultSuccess, s.clock.Now().Sub(start))

	if reading.Classification.IsAlert() {
		s.publish(ctx, reading)
	}
	s.archive(ctx, reading)
	return reading, nil
}

// Recent returns the unit's most recent readings in ascending timestamp order.
func (s *Service) Recent(_ context.Context, unitID string) ([]readings.Reading, error) {
	if unitID == "" {
		return nil, readings.ErrEmptyUnitID
	}
	metrics.IncQuery("readings")
	return s.store.Recent(unitID, s.window), nil
}

// Alerts returns the unit's most recent alert readings in ascending timestamp order.
func (s *Service) Alerts(_ context.Context, unitID string) ([]readings.Reading, error) {
	if unitID == "" {
		return nil, readings.ErrEmptyUnitID
	}
	metrics.IncQuery("alerts")
	return s.store.Alerts(unitID, s.window), nil
}

// Wait blocks until background notifications and archive writes finish.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *Service) publish(ctx context.Context, reading readings.Reading) {
	if s.notifier == nil {
		return
	}
	event := NewAlertEvent(reading)
	s.background(ctx, func(ctx context.Context) {
		s.notifier.Notify(ctx, event)
	})
}

func (s *Service) archive(ctx context.Context, reading readings.Reading) {
	for _, ns := range s.sinks {
		ns := ns
		copied := reading.Clone()
		s.background(ctx, func(ctx context.Context) {
			if err := ns.sink.Archive(ctx, copied); err != nil {
				metrics.ObserveArchive(ns.name, metrics.ResultError)
				s.logger.Printf("readings: archive %s: unit %s: %v", ns.name, copied.UnitID, err)
				return
			}
			metrics.ObserveArchive(ns.name, metrics.ResultSuccess)
		})
	}
}

// background runs fn detached from the request lifetime, bounded by the archive timeout.
func (s *Service) background(parent context.Context, fn func(ctx context.Context)) {
	base := context.WithoutCancel(parent)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(base, s.archiveTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, readings.ErrMissingReadings):
		return "missing_readings"
	case errors.Is(err, readings.ErrPHRequired):
		return "ph_required"
	case errors.Is(err, readings.ErrEmptyUnitID):
		return "empty_unit_id"
	case errors.Is(err, readings.ErrZeroTimestamp):
		return "zero_timestamp"
	default:
		return "unknown"
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
