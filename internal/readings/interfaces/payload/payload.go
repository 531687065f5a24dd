package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"hydro-cloud/internal/readings/application"
)

// offsetLayouts are tried first, in order.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts carry no offset and are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// SchemaError reports a body that does not match the reading schema.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "payload: " + e.Reason
	}
	return fmt.Sprintf("payload: %s: %s", e.Field, e.Reason)
}

// Detail returns the client-facing message.
func (e *SchemaError) Detail() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// IsSchemaError reports whether err is a *SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

// Request is the JSON body accepted by the ingestion transports.
type Request struct {
	UnitID    *string             `json:"unitId"`
	Timestamp *string             `json:"timestamp"`
	Readings  map[string]json.RawMessage `json:"readings"`
}

// Decode parses one reading submission.
func Decode(r io.Reader) (application.IngestCommand, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return application.IngestCommand{}, &SchemaError{Reason: "unreadable body"}
	}
	return DecodeBytes(data)
}

// DecodeBytes parses one reading submission held in memory.
func DecodeBytes(data []byte) (application.IngestCommand, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return application.IngestCommand{}, &SchemaError{Reason: "empty body"}
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return application.IngestCommand{}, schemaErrorFromJSON(err)
	}
	return req.Command()
}

// Command validates the request shape and converts it.
func (r Request) Command() (application.IngestCommand, error) {
	if r.UnitID == nil {
		return application.IngestCommand{}, &SchemaError{Field: "unitId", Reason: "field required"}
	}
	if strings.TrimSpace(*r.UnitID) == "" {
		return application.IngestCommand{}, &SchemaError{Field: "unitId", Reason: "must not be empty"}
	}
	if r.Timestamp == nil {
		return application.IngestCommand{}, &SchemaError{Field: "timestamp", Reason: "field required"}
	}
	ts, err := ParseTimestamp(*r.Timestamp)
	if err != nil {
		return application.IngestCommand{}, &SchemaError{Field: "timestamp", Reason: "invalid datetime format"}
	}
	if r.Readings == nil {
		return application.IngestCommand{}, &SchemaError{Field: "readings", Reason: "field required"}
	}
	keys := make([]string, 0, len(r.Readings))
	for key := range r.Readings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make(map[string]float64, len(keys))
	for _, key := range keys {
		var value *float64
		if err := json.Unmarshal(r.Readings[key], &value); err != nil || value == nil {
			return application.IngestCommand{}, &SchemaError{Field: "readings." + key, Reason: "value must be a number"}
		}
		values[key] = *value
	}
	return application.IngestCommand{
		UnitID:    *r.UnitID,
		Timestamp: ts,
		Values:    values,
	}, nil
}

// ParseTimestamp accepts ISO-8601 date-times: T or space separated, minute
// or second precision, extended or basic offsets, Z in either case, or a bare
// date. Values without an offset are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "z") {
		value = value[:len(value)-1] + "Z"
	}
	for _, layout := range offsetLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		ts, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("payload: parse timestamp %q: %w", value, lastErr)
}

// FormatTimestamp renders a timestamp the way the API returns it.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(time.RFC3339Nano)
}

func schemaErrorFromJSON(err error) *SchemaError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return &SchemaError{Reason: "body must be a JSON object"}
		}
		return &SchemaError{Field: field, Reason: "must be " + expectedType(field)}
	}
	return &SchemaError{Reason: "invalid JSON"}
}

func expectedType(field string) string {
	switch field {
	case "readings":
		return "an object of numbers"
	default:
		return "a string"
	}
}
