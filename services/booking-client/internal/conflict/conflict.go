// Package conflict decides the display state of each hourly slot by
// cross-referencing known reservations and the wall clock.
package conflict

import (
	"time"

	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/availability"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/calendar"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
)

type State string

const (
	Free     State = "free"
	Reserved State = "reserved"
	Past     State = "past"
	// Unavailable marks slots that cannot be trusted because the reservation
	// fetch failed and the client is configured to fail closed.
	Unavailable State = "unavailable"
)

// Selectable reports whether the slot may be tapped.
func (s State) Selectable() bool { return s == Free }

// Checker is pure given its clock and location.
type Checker struct {
	loc *time.Location
	now func() time.Time
}

// NewChecker builds a checker for the device location loc. A nil loc means
// time.Local and a nil now means time.Now.
func NewChecker(loc *time.Location, now func() time.Time) *Checker {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Checker{loc: loc, now: now}
}

func (c *Checker) Location() *time.Location { return c.loc }

// Now returns the wall clock in the device location.
func (c *Checker) Now() time.Time { return c.now().In(c.loc) }

// SlotTime is the absolute start of label on day's calendar date.
func (c *Checker) SlotTime(day time.Time, label string) (time.Time, bool) {
	hour, ok := availability.ParseHour(label)
	if !ok {
		return time.Time{}, false
	}
	d := day.In(c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, c.loc), true
}

// State classifies one slot. Reserved wins over past. Labels that do not
// parse are reported as past so they are never selectable.
func (c *Checker) State(fieldID string, day time.Time, label string, reservations []model.Reservation) State {
	slot, ok := c.SlotTime(day, label)
	if !ok {
		return Past
	}
	if c.reserved(fieldID, slot, reservations) {
		return Reserved
	}
	if c.past(day, slot) {
		return Past
	}
	return Free
}

func (c *Checker) reserved(fieldID string, slot time.Time, reservations []model.Reservation) bool {
	for _, r := range reservations {
		if r.FieldID != fieldID || !r.Occupies() {
			continue
		}
		start, err := r.Start(c.loc)
		if err != nil {
			continue
		}
		if model.FloorHour(start, c.loc).Equal(slot) {
			return true
		}
	}
	return false
}

func (c *Checker) past(day, slot time.Time) bool {
	now := c.Now()
	if !calendar.SameDate(day.In(c.loc), now) {
		return false
	}
	return slot.Before(now)
}

// SlotView is one annotated slot.
type SlotView struct {
	Label string
	Start time.Time
	State State
}

// DayView is the derived, never-cached slot sheet for one field and day.
type DayView struct {
	FieldID   string
	FieldName string
	Day       time.Time
	Window    model.AvailabilityWindow
	HasWindow bool
	Slots     []SlotView
	// Degraded is set when the reservation set could not be loaded.
	Degraded bool
}

// Options tune DayView for degraded reservation data.
type Options struct {
	Degraded   bool
	FailClosed bool
}

// Free returns the labels that can be booked.
func (v DayView) Free() []string {
	out := []string{}
	for _, s := range v.Slots {
		if s.State.Selectable() {
			out = append(out, s.Label)
		}
	}
	return out
}

// Lookup finds a slot by label.
func (v DayView) Lookup(label string) (SlotView, bool) {
	want, ok := availability.ParseHour(label)
	if !ok {
		return SlotView{}, false
	}
	for _, s := range v.Slots {
		if h, _ := availability.ParseHour(s.Label); h == want {
			return s, true
		}
	}
	return SlotView{}, false
}

// DayView resolves the field's window for day, enumerates slots and
// annotates each one.
func (c *Checker) DayView(field model.Field, day time.Time, reservations []model.Reservation, opts Options) DayView {
	local := day.In(c.loc)
	view := DayView{
		FieldID:   field.ID,
		FieldName: field.Name,
		Day:       calendar.Midnight(local),
		Degraded:  opts.Degraded,
		Slots:     []SlotView{},
	}
	w, labels, ok := availability.ForDay(field.Availability, calendar.DayOfWeek(local))
	if !ok {
		return view
	}
	view.Window = w
	view.HasWindow = true
	for _, label := range labels {
		start, _ := c.SlotTime(local, label)
		state := c.State(field.ID, local, label, reservations)
		if state == Free && opts.Degraded && opts.FailClosed {
			state = Unavailable
		}
		view.Slots = append(view.Slots, SlotView{Label: label, Start: start, State: state})
	}
	return view
}
