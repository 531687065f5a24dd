package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	if ingestRequests != nil {
		t.Skip("metrics already initialised")
	}
	ObserveIngest(ResultSuccess, time.Millisecond)
	IncIngestError("")
	IncReading("")
	IncQuery("recent")
	ObserveNotification("webhook", ResultError)
	ObserveArchive("postgres", "")
	IncMQTTMessage("")
	AddStreamClients(1)
}

func TestCountersAfterInit(t *testing.T) {
	Init(nil)

	before := testutil.ToFloat64(readingsTotal.WithLabelValues("Needs Attention"))
	IncReading("Needs Attention")
	if got := testutil.ToFloat64(readingsTotal.WithLabelValues("Needs Attention")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	before = testutil.ToFloat64(ingestErrors.WithLabelValues("unknown"))
	IncIngestError("")
	if got := testutil.ToFloat64(ingestErrors.WithLabelValues("unknown")); got != before+1 {
		t.Fatalf("expected empty reason to count as unknown, got %v", got)
	}

	before = testutil.ToFloat64(notificationsTotal.WithLabelValues("kafka", ResultSuccess))
	ObserveNotification("kafka", "")
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("kafka", ResultSuccess)); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}
}

func TestRegisterUnitsGaugeIgnoresNil(t *testing.T) {
	RegisterUnitsGauge(nil)
}
