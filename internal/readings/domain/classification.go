package readings

// Classification is the health label derived from a reading.
type Classification string

const (
	ClassificationHealthy        Classification = "Healthy"
	ClassificationNeedsAttention Classification = "Needs Attention"
)

// Healthy pH band, inclusive on both ends.
const (
	MinHealthyPH = 5.5
	MaxHealthyPH = 7.0
)

// IsAlert reports whether the classification marks an alert.
func (c Classification) IsAlert() bool {
	return c == ClassificationNeedsAttention
}

// Classify derives the health label from the metric values.
func Classify(values map[string]float64) (Classification, error) {
	ph, ok := values[MetricPH]
	if !ok {
		return "", ErrPHRequired
	}
	if ph < MinHealthyPH || ph > MaxHealthyPH {
		return ClassificationNeedsAttention, nil
	}
	return ClassificationHealthy, nil
}
