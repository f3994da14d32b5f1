package history

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Older history files carry zone-less timestamps; they are read as local time.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is an ISO-8601 instant. The zero value marshals as an empty string.
type Timestamp struct {
	time.Time
}

// At wraps t with the monotonic clock reading stripped, so values compare
// equal after a JSON round trip.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t.Round(0)}
}

// String returns the RFC 3339 form with nanoseconds.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Time.Format(time.RFC3339Nano)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Timestamp) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timestamp) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO-8601 forms.
func ParseTimestamp(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{Time: v}, nil
	}
	for _, layout := range legacyLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Timestamp{Time: v}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("timestamp: unrecognized format %q", s)
}
