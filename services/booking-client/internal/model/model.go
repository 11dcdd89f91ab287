package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
)

// SlotLength is the only reservation length the client books.
const SlotLength = time.Hour

// DefaultDuration is SlotLength in the backend's "HH:MM" notation.
const DefaultDuration = "01:00"

// AvailabilityWindow is a recurring weekly open period. DayOfWeek is 1..7
// with 1 = Sunday. From and To are "HH:00" strings.
type AvailabilityWindow struct {
	DayOfWeek int    `json:"dayOfWeek"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type Field struct {
	ID           string               `json:"_id"`
	Name         string               `json:"name"`
	Type         string               `json:"type,omitempty"`
	ComplexID    string               `json:"complexId"`
	Availability []AvailabilityWindow `json:"availability"`
}

type Reservation struct {
	ID        string  `json:"_id"`
	FieldID   string  `json:"fieldId"`
	UserID    string  `json:"userId"`
	ComplexID string  `json:"complexId"`
	StartTime string  `json:"startTime"`
	Duration  string  `json:"duration"`
	Price     float64 `json:"price"`
	Status    Status  `json:"status,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// Occupies reports whether the reservation blocks its slot. Canceled
// reservations do not.
func (r Reservation) Occupies() bool {
	return r.Status != StatusCanceled
}

// Start parses StartTime, reading zone-less values in loc.
func (r Reservation) Start(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(r.StartTime, loc)
}

// Length parses Duration, defaulting to SlotLength when empty.
func (r Reservation) Length() (time.Duration, error) {
	if strings.TrimSpace(r.Duration) == "" {
		return SlotLength, nil
	}
	return ParseClockDuration(r.Duration)
}

type Complex struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Region  string   `json:"region,omitempty"`
	Country string   `json:"country"`
	City    string   `json:"city"`
	Address string   `json:"address"`
	Stars   *float64 `json:"stars"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type Profile struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
	Address  string  `json:"address"`
	City     string  `json:"city"`
	Country  string  `json:"country"`
	ImageURL string  `json:"image_url"`
	DNI      string  `json:"dni"`
}

// HasIdentity reports whether the national id needed to book is filled in.
func (p *Profile) HasIdentity() bool {
	return p != nil && strings.TrimSpace(p.DNI) != ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts RFC3339 values and zone-less wall times. Zone-less
// values are read in loc; a nil loc means time.Local.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts[1:] {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// FloorHour converts t to loc and zeroes minutes and below.
func FloorHour(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
}

// FormatTimestamp is the wire form used when submitting.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseClockDuration parses "HH:MM".
func ParseClockDuration(raw string) (time.Duration, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, nil
}
