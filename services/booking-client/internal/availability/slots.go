package availability

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
)

// Resolve returns the first window for dayOfWeek. Later windows for the same
// day are ignored.
func Resolve(windows []model.AvailabilityWindow, dayOfWeek int) (model.AvailabilityWindow, bool) {
	for _, w := range windows {
		if w.DayOfWeek == dayOfWeek {
			return w, true
		}
	}
	return model.AvailabilityWindow{}, false
}

// HasDay reports whether any window covers dayOfWeek.
func HasDay(windows []model.AvailabilityWindow, dayOfWeek int) bool {
	_, ok := Resolve(windows, dayOfWeek)
	return ok
}

// ParseHour reads the hour part of an "H:MM" / "HH:MM" string. Minutes are
// not modeled and are ignored.
func ParseHour(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	h, _, _ := strings.Cut(raw, ":")
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 24 {
		return 0, false
	}
	return hour, true
}

// Label formats an hour the way slots are shown: "9:00", "16:00".
func Label(hour int) string {
	return strconv.Itoa(hour) + ":00"
}

// Slots yields hourly labels in [from, to). Malformed bounds or to <= from
// yield nothing. Each range over the sequence starts from scratch.
func Slots(from, to string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start, ok := ParseHour(from)
		if !ok {
			return
		}
		end, ok := ParseHour(to)
		if !ok || end <= start {
			return
		}
		for h := start; h < end; h++ {
			if !yield(Label(h)) {
				return
			}
		}
	}
}

// SlotList is Slots collected into a slice; never nil.
func SlotList(from, to string) []string {
	out := slices.Collect(Slots(from, to))
	if out == nil {
		return []string{}
	}
	return out
}

// ForDay resolves the window for dayOfWeek and enumerates its slots.
func ForDay(windows []model.AvailabilityWindow, dayOfWeek int) (model.AvailabilityWindow, []string, bool) {
	w, ok := Resolve(windows, dayOfWeek)
	if !ok {
		return model.AvailabilityWindow{}, []string{}, false
	}
	return w, SlotList(w.From, w.To), true
}
