package handlers

import (
	"encoding/json"
	"time"
)

// naiveLayout is accepted alongside RFC 3339 and read as UTC.
const naiveLayout = "2006-01-02T15:04:05"

// timestamp decodes RFC 3339 values and offset-less ones such as
// "2030-06-10T10:00:00".
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := parseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = timestamp(parsed)
	return nil
}

func (t timestamp) Time() time.Time { return time.Time(t) }

func parseTimestamp(s string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		return parsed, nil
	}
	return time.ParseInLocation(naiveLayout, s, time.UTC)
}

func optionalTime(t *timestamp) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time()
	return &v
}
