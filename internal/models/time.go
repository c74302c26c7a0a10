package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// UnixMillis is a timestamp that travels as milliseconds since the Unix
// epoch, both over the wire (JSON integer) and in the database (INTEGER
// column). Embedding time.Time keeps the full method set available.
type UnixMillis struct {
	time.Time
}

// Now returns the current time truncated to millisecond precision.
func Now() UnixMillis {
	return At(time.Now())
}

// At wraps a time.Time, truncated to millisecond precision.
func At(t time.Time) UnixMillis {
	return UnixMillis{time.UnixMilli(t.UnixMilli()).UTC()}
}

// FromMillis builds a timestamp from a millisecond epoch value.
func FromMillis(ms int64) UnixMillis {
	return UnixMillis{time.UnixMilli(ms).UTC()}
}

// MarshalJSON encodes the timestamp as a millisecond epoch integer.
func (u UnixMillis) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, u.UnixMilli(), 10), nil
}

// UnmarshalJSON decodes a millisecond epoch integer.
func (u *UnixMillis) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be a millisecond epoch integer: %w", err)
	}
	*u = FromMillis(ms)
	return nil
}

// Value stores the timestamp as a millisecond epoch integer.
func (u UnixMillis) Value() (driver.Value, error) {
	return u.UnixMilli(), nil
}

// Scan accepts millisecond epoch integers and native time values.
func (u *UnixMillis) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*u = UnixMillis{}
	case int64:
		*u = FromMillis(v)
	case time.Time:
		*u = At(v)
	default:
		return fmt.Errorf("cannot scan %T into UnixMillis", src)
	}
	return nil
}
