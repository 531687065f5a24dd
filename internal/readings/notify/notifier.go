package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hydro-cloud/internal/observability/metrics"
	"hydro-cloud/internal/readings/application"
	readings "hydro-cloud/internal/readings/domain"
)

// Clock provides time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and sends them through a channel, applying a
// per-unit cooldown and a content dedupe window.
type Notifier struct {
	name         string
	channel      Channel
	template     *Template
	clock        Clock
	logger       *log.Logger
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithName sets the channel label used in logs and metrics.
func WithName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.name = name
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same unit.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		name:     "webhook",
		channel:  channel,
		template: template,
		clock:    systemClock{},
		logger:   log.Default(),
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event application.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		n.logger.Printf("alert notifier: render: unit %s: %v", event.UnitID, err)
		metrics.ObserveNotification(n.name, metrics.ResultError)
		return
	}
	previous, ok := n.reserve(event.UnitID, content)
	if !ok {
		metrics.ObserveNotification(n.name, metrics.ResultSkipped)
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.release(event.UnitID, previous)
		n.logger.Printf("alert notifier: %s send: unit %s: %v", n.name, event.UnitID, err)
		metrics.ObserveNotification(n.name, metrics.ResultError)
		return
	}
	metrics.ObserveNotification(n.name, metrics.ResultSuccess)
}

// reserve records a send for unitID when cooldown and dedupe allow it and
// returns the record it replaced.
func (n *Notifier) reserve(unitID, content string) (*sendRecord, bool) {
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	defer n.mu.Unlock()
	record, ok := n.sent[unitID]
	if ok {
		if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
			return nil, false
		}
		if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
			return nil, false
		}
	}
	n.sent[unitID] = sendRecord{at: now, hash: hash}
	if !ok {
		return nil, true
	}
	return &record, true
}

// release undoes a reservation after a failed send.
func (n *Notifier) release(unitID string, previous *sendRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if previous == nil {
		delete(n.sent, unitID)
		return
	}
	n.sent[unitID] = *previous
}

func buildTemplateData(event application.AlertEvent) TemplateData {
	data := TemplateData{
		UnitID:         event.UnitID,
		Timestamp:      event.Timestamp.Format(time.RFC3339),
		Classification: event.Classification,
		PH:             formatMetric(event.Readings, readings.MetricPH),
		Temp:           formatMetric(event.Readings, readings.MetricTemp),
		EC:             formatMetric(event.Readings, readings.MetricEC),
		HealthyRange:   fmt.Sprintf("%.1f-%.1f", readings.MinHealthyPH, readings.MaxHealthyPH),
		Suggestion:     suggestionFor(event.Readings),
	}
	var extra []string
	for key, value := range event.Readings {
		switch key {
		case readings.MetricPH, readings.MetricTemp, readings.MetricEC:
			continue
		}
		extra = append(extra, key+"="+strconv.FormatFloat(value, 'f', -1, 64))
	}
	sort.Strings(extra)
	data.Extra = strings.Join(extra, ", ")
	return data
}

func formatMetric(values map[string]float64, key string) string {
	value, ok := values[key]
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", value)
}

func suggestionFor(values map[string]float64) string {
	ph, ok := values[readings.MetricPH]
	switch {
	case !ok:
		return "Check the pH probe."
	case ph < readings.MinHealthyPH:
		return "Solution is too acidic; add pH up and recheck."
	case ph > readings.MaxHealthyPH:
		return "Solution is too alkaline; add pH down and recheck."
	default:
		return "Monitor the unit."
	}
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
