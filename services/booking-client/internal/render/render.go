// Package render draws the client screens as plain terminal text.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/backend"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/calendar"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/conflict"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/expansion"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/screen"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/submission"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiDim   = "\x1b[2m"
	ansiBold  = "\x1b[1m"
	ansiYel   = "\x1b[33m"
)

const (
	nameWidth = 28
	cellWidth = 7
	perRow    = 6
)

type Renderer struct {
	w     io.Writer
	color bool
	msgs  Messages
}

// New renders to w in locale's language. Colour is used only when w is a
// terminal and NO_COLOR is unset.
func New(w io.Writer, locale calendar.Locale) *Renderer {
	return &Renderer{w: w, color: colorable(w), msgs: MessagesFor(locale.Tag)}
}

func colorable(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Renderer) Messages() Messages { return r.msgs }

func (r *Renderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return code + s + ansiReset
}

func (r *Renderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format, args...)
}

// Days prints the day strip, marking the selected index.
func (r *Renderer) Days(days []calendar.Day, selected int) {
	for i, d := range days {
		mark := " "
		label := fmt.Sprintf("[%d] %s %s", i, d.Label, d.Display)
		if i == selected {
			mark = ">"
			label = r.paint(ansiBold, label)
		}
		r.printf("%s %s\n", mark, label)
	}
}

// Panels prints every field header and the slot grid of the open one.
func (r *Renderer) Panels(panels []screen.Panel) {
	for _, p := range panels {
		arrow := "▸"
		if p.State != expansion.Collapsed {
			arrow = "▾"
		}
		name := runewidth.Truncate(p.Field.Name, nameWidth, "…")
		r.printf("%s %s %s\n", arrow, runewidth.FillRight(name, nameWidth), r.paint(ansiDim, p.Field.ID))
		switch {
		case p.Loading:
			r.printf("    %s\n", r.msgs.Loading)
		case p.View != nil:
			r.Slots(*p.View)
		}
	}
}

// cellStyle returns the suffix and colour of a slot cell. The suffix keeps
// states apart without colour.
func cellStyle(s conflict.State) (string, string) {
	switch s {
	case conflict.Free:
		return "", ansiGreen
	case conflict.Reserved:
		return "x", ansiRed
	case conflict.Unavailable:
		return "?", ansiYel
	default:
		return "-", ansiDim
	}
}

// Slots prints one day view as a grid of labelled cells.
func (r *Renderer) Slots(v conflict.DayView) {
	if v.Degraded {
		r.printf("    %s\n", r.paint(ansiYel, r.msgs.Degraded))
	}
	if !v.HasWindow || len(v.Slots) == 0 {
		r.printf("    %s\n", r.msgs.NoWindow)
		return
	}
	for i := 0; i < len(v.Slots); i += perRow {
		end := min(i+perRow, len(v.Slots))
		var b strings.Builder
		b.WriteString("    ")
		for _, s := range v.Slots[i:end] {
			suffix, code := cellStyle(s.State)
			b.WriteString(r.paint(code, runewidth.FillRight(s.Label+suffix, cellWidth)))
		}
		r.printf("%s\n", strings.TrimRight(b.String(), " "))
	}
	legend := fmt.Sprintf("    %s  x %s  - %s", r.msgs.Free, r.msgs.Reserved, r.msgs.Past)
	if v.Degraded {
		legend += "  ? " + r.msgs.Unavailable
	}
	r.printf("%s\n", r.paint(ansiDim, legend))
}

// Prompt prints the guard prompt or the confirmation modal.
func (r *Renderer) Prompt(p submission.Prompt) {
	switch p.Guard {
	case submission.GuardLogin:
		r.printf("%s\n", r.msgs.LoginRequired)
	case submission.GuardProfile:
		r.printf("%s\n", r.msgs.ProfileRequired)
	default:
		r.printf("%s\n", r.paint(ansiBold, r.msgs.ConfirmTitle))
		r.printf("  %s  %s  %s\n", p.Selection.FieldName, p.Selection.Start.Format("02/01/2006"), p.Selection.Label)
		r.printf("  %s: $%.2f\n", r.msgs.ConfirmPrice, p.Price)
		r.printf("  %s\n", fmt.Sprintf(r.msgs.CancellationNote, p.CancellationHours))
	}
}

// Notice prints a transient notification.
func (r *Renderer) Notice(n submission.Notice) {
	switch n.Kind {
	case submission.NoticeSuccess:
		r.printf("%s\n", r.paint(ansiGreen, fmt.Sprintf(r.msgs.Success, n.Selection.FieldName, n.Selection.Label)))
	case submission.NoticeError:
		r.Error(n.Err)
	}
}

// Error prints err the way a submission failure is shown.
func (r *Renderer) Error(err error) {
	if backend.IsConflict(err) {
		r.printf("%s\n", r.paint(ansiRed, r.msgs.SlotTaken))
		return
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		err = errors.New(apiErr.Message)
	}
	r.printf("%s\n", r.paint(ansiRed, fmt.Sprintf(r.msgs.Failure, err)))
}

func (r *Renderer) Complexes(list []model.Complex) {
	if len(list) == 0 {
		r.printf("%s\n", r.msgs.NoComplexes)
		return
	}
	for _, c := range list {
		name := runewidth.FillRight(runewidth.Truncate(c.Name, nameWidth, "…"), nameWidth)
		r.printf("%s %s, %s  %s\n", name, c.City, c.Country, r.paint(ansiDim, c.ID))
	}
}

// Reservations prints the user's reservations sorted by start time, with
// the end time when the duration parses. Unparseable start times sort last.
func (r *Renderer) Reservations(list []model.Reservation, loc *time.Location) {
	if len(list) == 0 {
		r.printf("%s\n", r.msgs.NoReservations)
		return
	}
	type row struct {
		res   model.Reservation
		start time.Time
		ok    bool
	}
	rows := make([]row, 0, len(list))
	for _, res := range list {
		t, err := res.Start(loc)
		rows = append(rows, row{res: res, start: t.In(loc), ok: err == nil})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ok != rows[j].ok {
			return rows[i].ok
		}
		return rows[i].start.Before(rows[j].start)
	})
	for _, row := range rows {
		when := row.res.StartTime
		if row.ok {
			when = row.start.Format("02/01/2006 15:04")
			if d, err := row.res.Length(); err == nil {
				when += row.start.Add(d).Format("-15:04")
			}
		}
		status := r.msgs.Status[string(row.res.Status)]
		if status == "" {
			status = string(row.res.Status)
		}
		r.printf("%s  %s  %s  %s\n", runewidth.FillRight(when, 22), runewidth.FillRight(status, 10), row.res.FieldID, r.paint(ansiDim, row.res.ID))
	}
}

func (r *Renderer) Canceled() {
	r.printf("%s\n", r.msgs.Canceled)
}

func (r *Renderer) UnknownReservation(id string) {
	r.printf("%s\n", r.paint(ansiRed, fmt.Sprintf(r.msgs.UnknownReservation, id)))
}
