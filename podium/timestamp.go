package podium

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a time.Time that marshals in Podium's wire format. Use it in
// typed request and response structs; generic payloads are handled by
// ToNative and ToWire instead.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, normalized to UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// MarshalJSON implements json.Marshaler
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatWireTime(ts.Time))
}

// UnmarshalJSON accepts the wire format as well as RFC 3339, which is how a
// time.Time produced by ToNative re-encodes.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}

	if t, ok := ParseWireTime(s); ok {
		ts.Time = t
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	ts.Time = t.UTC()
	return nil
}

// String returns the wire representation
func (ts Timestamp) String() string {
	return FormatWireTime(ts.Time)
}

// Decode copies a payload returned by a Resource into dst, typically a
// pointer to a struct. time.Time leaves survive the trip, and fields typed
// as Timestamp or time.Time both work.
func Decode(payload any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
