package ntime

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"time"
)

// NTime represents a nullable time.Time.
// It can be used a scan destination and can be marshalled to JSON.
type NTime struct {
	time    time.Time
	isValid bool // false when Time is null
}

var null = []byte("null")

// UnmarshalJSON parses a quoted RFC3339 time string, or null, into an NTime
func (nt *NTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, null) {
		*nt = NTime{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid time literal %s", b)
	}
	parsedTime, err := time.Parse(time.RFC3339, string(b[1:len(b)-1]))
	if err != nil {
		return err
	}
	*nt = NTime{parsedTime.UTC(), true}
	return nil
}

// MarshalJSON implements the Marshaller interface and operates on values rather than pointers, given NTime's heft.
func (nt NTime) MarshalJSON() ([]byte, error) {
	if nt.isValid {
		return []byte(fmt.Sprintf("%q", nt.time.UTC().Format(time.RFC3339))), nil
	}
	return null, nil
}

// Scan implements the Scanner interface.
// Both drivers in use hand back time.Time for TIMESTAMP columns; anything else, NULL included, is invalid.
func (nt *NTime) Scan(value any) error {
	nt.time, nt.isValid = value.(time.Time)
	if nt.isValid {
		nt.time = nt.time.UTC()
	}
	return nil
}

// Value implements the driver Valuer interface.
func (nt NTime) Value() (driver.Value, error) {
	if nt.isValid {
		return nt.time.UTC(), nil
	}
	return nil, nil
}

func Now() NTime {
	return NTime{time: time.Now().UTC(), isValid: true}
}

func (nt NTime) Time() time.Time {
	return nt.time
}

func (nt NTime) Valid() bool {
	return nt.isValid
}

