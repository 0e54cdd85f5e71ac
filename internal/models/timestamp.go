package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the wire format of Timestamp: UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a time.Time that always serializes in UTC with millisecond
// precision and accepts any RFC 3339 input.
type Timestamp time.Time

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Truncate(time.Millisecond))
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(ts).UTC().Format(TimestampLayout) + `"`), nil
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*ts = Timestamp(time.Time{})
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*ts = Timestamp(t)
	return nil
}

func (ts Timestamp) Time() time.Time {
	return time.Time(ts)
}
