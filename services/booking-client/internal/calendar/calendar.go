// Package calendar builds the rolling seven-day window the user picks a
// booking day from.
package calendar

import (
	"time"

	"golang.org/x/text/language"
)

// WindowSize is the number of selectable days, today included.
const WindowSize = 7

// Day describes one selectable day.
type Day struct {
	Date      time.Time // local midnight
	DayOfWeek int       // 1..7, 1 = Sunday
	Label     string    // today label for index 0, weekday name otherwise
	Display   string    // formatted date
}

// Locale holds the strings used for day descriptors.
type Locale struct {
	Tag        language.Tag
	Today      string
	Weekdays   [7]string // indexed by time.Weekday
	DateLayout string
}

var (
	Spanish = Locale{
		Tag:        language.Spanish,
		Today:      "Hoy",
		Weekdays:   [7]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"},
		DateLayout: "2/1/2006",
	}
	English = Locale{
		Tag:        language.English,
		Today:      "Today",
		Weekdays:   [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		DateLayout: "1/2/2006",
	}
)

var (
	supported = []Locale{Spanish, English}
	matcher   = language.NewMatcher([]language.Tag{Spanish.Tag, English.Tag})
)

// MatchLocale picks the supported locale closest to the given BCP 47 tags
// (e.g. "es-AR", "en-US"). Spanish is the fallback.
func MatchLocale(tags ...string) Locale {
	var prefs []language.Tag
	for _, raw := range tags {
		if t, err := language.Parse(raw); err == nil {
			prefs = append(prefs, t)
		}
	}
	if len(prefs) == 0 {
		return Spanish
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return Spanish
	}
	return supported[idx]
}

// WeekdayName returns the localized name for a 1..7 day-of-week value.
func (l Locale) WeekdayName(dayOfWeek int) string {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return ""
	}
	return l.Weekdays[dayOfWeek-1]
}

// DayOfWeek maps a date to 1..7 with 1 = Sunday.
func DayOfWeek(t time.Time) int {
	return int(t.Weekday()) + 1
}

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate compares calendar dates, ignoring the time of day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Window returns WindowSize consecutive days starting at now's calendar date.
// now is used as-is; callers convert it to the device location first.
func Window(now time.Time, loc Locale) []Day {
	today := Midnight(now)
	days := make([]Day, 0, WindowSize)
	for i := 0; i < WindowSize; i++ {
		date := today.AddDate(0, 0, i)
		label := loc.Weekdays[date.Weekday()]
		if i == 0 {
			label = loc.Today
		}
		days = append(days, Day{
			Date:      date,
			DayOfWeek: DayOfWeek(date),
			Label:     label,
			Display:   date.Format(loc.DateLayout),
		})
	}
	return days
}
