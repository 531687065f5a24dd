package readings

import "errors"

var (
	// ErrMissingReadings indicates that one of the required metrics is absent.
	ErrMissingReadings = errors.New("readings: missing required readings")
	// ErrPHRequired indicates that the classifier received no pH value.
	ErrPHRequired = errors.New("readings: pH reading is required")
	// ErrEmptyUnitID indicates a reading without a unit id.
	ErrEmptyUnitID = errors.New("readings: empty unit id")
	// ErrZeroTimestamp indicates a reading without a timestamp.
	ErrZeroTimestamp = errors.New("readings: zero timestamp")
)

// IsValidation reports whether err is a domain rule violation on the metric values.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingReadings) || errors.Is(err, ErrPHRequired)
}
