package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateLayout portal date format, e.g. 2023-04-17
	DateLayout = "2006-01-02"
	// DateTimeLayout portal timestamp format, e.g. 2023-04-17 09:30:00
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Date calendar date without zone, held as UTC midnight
type Date struct {
	time.Time
}

// DateTime wall-clock timestamp without zone, held as UTC
type DateTime struct {
	time.Time
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses DateLayout.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("failed to parse date '%s': %w", s, err)
	}
	return Date{t}, nil
}

// ParseDateTime parses DateTimeLayout.
func ParseDateTime(s string) (DateTime, error) {
	t, err := time.ParseInLocation(DateTimeLayout, s, time.UTC)
	if err != nil {
		return DateTime{}, fmt.Errorf("failed to parse datetime '%s': %w", s, err)
	}
	return DateTime{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d DateTime) String() string {
	return d.Format(DateTimeLayout)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("datetime must be a string: %w", err)
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
