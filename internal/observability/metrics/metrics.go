package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "hydro_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once
	gaugeOnce    sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	readingsTotal *prometheus.CounterVec
	queryRequests *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
	archiveWrites      *prometheus.CounterVec
	mqttMessages       *prometheus.CounterVec
	streamClients      prometheus.Gauge
)

// Init registers service metrics with the default registry.
func Init(logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		readingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_total",
				Help: "Total stored readings by classification",
			},
			[]string{"classification"},
		)
		queryRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "query_requests_total",
				Help: "Total history queries by endpoint",
			},
			[]string{"endpoint"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_notifications_total",
				Help: "Total alert notifications by channel and result",
			},
			[]string{"channel", "result"},
		)
		archiveWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "archive_writes_total",
				Help: "Total archive writes by sink and result",
			},
			[]string{"sink", "result"},
		)
		mqttMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_messages_total",
				Help: "Total MQTT messages by result",
			},
			[]string{"result"},
		)
		streamClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alert_stream_clients",
				Help: "Connected alert stream subscribers",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			readingsTotal,
			queryRequests,
			notificationsTotal,
			archiveWrites,
			mqttMessages,
			streamClients,
		)
		if logger != nil {
			logger.Printf("metrics: registered collectors with prefix %s", metricPrefix)
		}
	})
}

// RegisterUnitsGauge exposes the number of known units through fn.
func RegisterUnitsGauge(fn func() float64) {
	if fn == nil {
		return
	}
	gaugeOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "units",
				Help: "Units with at least one stored reading",
			},
			fn,
		))
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncReading counts a stored reading by classification.
func IncReading(classification string) {
	if classification == "" {
		classification = "unknown"
	}
	if readingsTotal != nil {
		readingsTotal.WithLabelValues(classification).Inc()
	}
}

// IncQuery counts a history query.
func IncQuery(endpoint string) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if queryRequests != nil {
		queryRequests.WithLabelValues(endpoint).Inc()
	}
}

// ObserveNotification counts an alert notification attempt.
func ObserveNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObserveArchive counts an archive write.
func ObserveArchive(sink, result string) {
	if sink == "" {
		sink = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if archiveWrites != nil {
		archiveWrites.WithLabelValues(sink, result).Inc()
	}
}

// IncMQTTMessage counts a received MQTT message by outcome.
func IncMQTTMessage(result string) {
	if result == "" {
		result = "unknown"
	}
	if mqttMessages != nil {
		mqttMessages.WithLabelValues(result).Inc()
	}
}

// AddStreamClients adjusts the connected stream subscriber gauge.
func AddStreamClients(delta float64) {
	if streamClients != nil {
		streamClients.Add(delta)
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
