package influx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	readings "hydro-cloud/internal/readings/domain"
)

type recordingWriter struct {
	points []*write.Point
	err    error
}

func (r *recordingWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	if r.err != nil {
		return r.err
	}
	r.points = append(r.points, points...)
	return nil
}

func sampleReading(t *testing.T) readings.Reading {
	t.Helper()
	reading, err := readings.NewReading("u1", time.Date(2025, 5, 24, 12, 34, 56, 0, time.UTC), map[string]float64{
		readings.MetricPH: 8.1, readings.MetricTemp: 22.1, readings.MetricEC: 1.2,
	})
	if err != nil {
		t.Fatalf("new reading: %v", err)
	}
	return reading
}

func TestReadingToPoint(t *testing.T) {
	point := ReadingToPoint("unit_reading", sampleReading(t))
	if point.Name() != "unit_reading" {
		t.Fatalf("unexpected measurement %s", point.Name())
	}
	line := write.PointToLineProtocol(point, time.Second)
	for _, expected := range []string{"unit_id=u1", `classification=Needs\ Attention`, "pH=8.1", "temp=22.1", "ec=1.2", "1748090096"} {
		if !strings.Contains(line, expected) {
			t.Fatalf("expected line protocol to include %q, got %s", expected, line)
		}
	}
}

func TestSinkArchive(t *testing.T) {
	writer := &recordingWriter{}
	sink := newSink(writer, "")
	if err := sink.Archive(context.Background(), sampleReading(t)); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(writer.points) != 1 || writer.points[0].Name() != defaultMeasurement {
		t.Fatalf("expected one point in default measurement, got %d", len(writer.points))
	}

	writer.err = errors.New("unauthorized")
	if err := sink.Archive(context.Background(), sampleReading(t)); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestNewSinkValidates(t *testing.T) {
	if _, err := NewSink(Config{URL: "http://localhost:8086"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
	sink, err := NewSink(Config{URL: "http://localhost:8086", Bucket: "hydro", Org: "acme"})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	sink.Close()
}
