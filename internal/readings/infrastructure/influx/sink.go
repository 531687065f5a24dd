package influx

import (
	"context"
	"errors"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	readings "hydro-cloud/internal/readings/domain"
)

const defaultMeasurement = "unit_reading"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Config describes the InfluxDB target.
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Sink mirrors readings into an InfluxDB bucket.
type Sink struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
}

// NewSink connects a blocking write API for cfg.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("influx sink: url and bucket required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	sink := newSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement)
	sink.client = client
	return sink, nil
}

func newSink(writer pointWriter, measurement string) *Sink {
	if measurement == "" {
		measurement = defaultMeasurement
	}
	return &Sink{writer: writer, measurement: measurement}
}

// Archive writes the reading as one point.
func (s *Sink) Archive(ctx context.Context, reading readings.Reading) error {
	if s == nil || s.writer == nil {
		return errors.New("influx sink: nil writer")
	}
	if err := s.writer.WritePoint(ctx, ReadingToPoint(s.measurement, reading)); err != nil {
		return fmt.Errorf("influx sink: write unit %s: %w", reading.UnitID, err)
	}
	return nil
}

// Close releases the client.
func (s *Sink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}

// ReadingToPoint maps a reading to a point tagged by unit and classification
// with one field per metric.
func ReadingToPoint(measurement string, reading readings.Reading) *write.Point {
	tags := map[string]string{
		"unit_id":        reading.UnitID,
		"classification": string(reading.Classification),
	}
	fields := make(map[string]interface{}, len(reading.Values))
	for key, value := range reading.Values {
		fields[key] = value
	}
	return influxdb2.NewPoint(measurement, tags, fields, reading.Timestamp)
}
