package readings

import (
	"sort"
	"time"
)

// Metric keys every reading must carry.
const (
	MetricPH   = "pH"
	MetricTemp = "temp"
	MetricEC   = "ec"
)

// RequiredMetrics lists the metric keys checked before classification.
var RequiredMetrics = []string{MetricPH, MetricTemp, MetricEC}

// Reading is one timestamped set of metric values from a unit.
type Reading struct {
	UnitID         string
	Timestamp      time.Time
	Values         map[string]float64
	Classification Classification
}

// NewReading validates the values, classifies them and returns an immutable reading.
func NewReading(unitID string, ts time.Time, values map[string]float64) (Reading, error) {
	if unitID == "" {
		return Reading{}, ErrEmptyUnitID
	}
	if ts.IsZero() {
		return Reading{}, ErrZeroTimestamp
	}
	for _, key := range RequiredMetrics {
		if _, ok := values[key]; !ok {
			return Reading{}, ErrMissingReadings
		}
	}
	classification, err := Classify(values)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		UnitID:         unitID,
		Timestamp:      ts,
		Values:         copyValues(values),
		Classification: classification,
	}, nil
}

// Clone returns a deep copy of the reading.
func (r Reading) Clone() Reading {
	r.Values = copyValues(r.Values)
	return r
}

// MetricKeys returns the reading's metric names in sorted order.
func (r Reading) MetricKeys() []string {
	keys := make([]string, 0, len(r.Values))
	for key := range r.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func copyValues(values map[string]float64) map[string]float64 {
	if values == nil {
		return nil
	}
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
