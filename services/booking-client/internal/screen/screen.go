// Package screen is the complex detail screen: a day strip, one panel per
// field, and the slot grid of the open panel. It owns the reservation set
// for its lifetime and wires the expansion controller and the submission
// flow to it.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/availability"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/calendar"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/conflict"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/expansion"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/reservations"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/submission"
)

var (
	ErrNotLoaded    = errors.New("screen: fields not loaded")
	ErrUnknownDay   = errors.New("screen: day out of range")
	ErrUnknownField = errors.New("screen: unknown field")
	ErrNotExpanded  = errors.New("screen: field is not expanded")
)

type FieldLister interface {
	ListFields(ctx context.Context, complexID string) ([]model.Field, error)
}

// Deps are the collaborators of a Screen. A backend.Client satisfies
// Fields, Reservations, Profiles and Creator.
type Deps struct {
	Fields       FieldLister
	Reservations expansion.Fetcher
	Profiles     submission.ProfileSource
	Creator      submission.Creator
	Identity     submission.Identity
	Notifier     submission.Notifier
	Checker      *conflict.Checker
	Locale       calendar.Locale
	Logger       *slog.Logger
	Submission   submission.Config
	// FailClosed disables free slots while the reservation set is degraded.
	FailClosed bool
	// OnChange runs after every change to the reservation set.
	OnChange func(reservations.Change)
}

// Panel is one field as rendered.
type Panel struct {
	Field     model.Field
	State     expansion.State
	Loading   bool
	HasWindow bool
	// View is set only for the expanded field once its fetch resolved.
	View *conflict.DayView
}

type Screen struct {
	complexID string
	deps      Deps
	logger    *slog.Logger

	set       *reservations.Set
	expansion *expansion.Controller
	flow      *submission.Flow

	mu       sync.Mutex
	fields   []model.Field
	days     []calendar.Day
	selected int
	loaded   bool
}

func New(complexID string, deps Deps) *Screen {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Checker == nil {
		deps.Checker = conflict.NewChecker(nil, nil)
	}
	set := reservations.New()
	if deps.OnChange != nil {
		set.Subscribe(reservations.ObserverFunc(deps.OnChange))
	}
	s := &Screen{
		complexID: complexID,
		deps:      deps,
		logger:    logger.With("complex_id", complexID),
		set:       set,
		selected:  -1,
	}
	s.expansion = expansion.New(deps.Reservations, set, s.logger)
	s.flow = submission.New(deps.Identity, deps.Profiles, deps.Creator, set, deps.Notifier, s.logger, deps.Submission)
	return s
}

// Load fetches the complex's fields, builds the day window and selects the
// first day on which any field opens, falling back to today.
func (s *Screen) Load(ctx context.Context) error {
	fields, err := s.deps.Fields.ListFields(ctx, s.complexID)
	if err != nil {
		return fmt.Errorf("screen: list fields: %w", err)
	}
	days := calendar.Window(s.deps.Checker.Now(), s.deps.Locale)

	s.mu.Lock()
	s.fields = fields
	s.days = days
	s.loaded = true
	s.selected = initialDay(days, fields)
	s.mu.Unlock()
	return nil
}

func initialDay(days []calendar.Day, fields []model.Field) int {
	for i, d := range days {
		for _, f := range fields {
			if availability.HasDay(f.Availability, d.DayOfWeek) {
				return i
			}
		}
	}
	return 0
}

func (s *Screen) Days() []calendar.Day {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]calendar.Day(nil), s.days...)
}

func (s *Screen) Fields() []model.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Field(nil), s.fields...)
}

// SelectedDay returns the selected day and its index.
func (s *Screen) SelectedDay() (calendar.Day, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected < 0 || s.selected >= len(s.days) {
		return calendar.Day{}, -1, false
	}
	return s.days[s.selected], s.selected, true
}

// SelectDay switches to the i-th day of the window. Any open field is
// collapsed and the loaded reservations are dropped.
func (s *Screen) SelectDay(i int) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if i < 0 || i >= len(s.days) {
		s.mu.Unlock()
		return ErrUnknownDay
	}
	changed := s.selected != i
	s.selected = i
	s.mu.Unlock()
	if changed {
		s.expansion.Collapse()
	}
	return nil
}

func (s *Screen) field(id string) (model.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fields {
		if f.ID == id {
			return f, true
		}
	}
	return model.Field{}, false
}

// ToggleField taps fieldID's header. It blocks until the fetch for a newly
// expanded field resolves.
func (s *Screen) ToggleField(ctx context.Context, fieldID string) (expansion.Status, error) {
	if _, ok := s.field(fieldID); !ok {
		return expansion.Status{}, ErrUnknownField
	}
	if t, ok := s.expansion.Toggle(fieldID); ok {
		s.expansion.Load(ctx, t)
	}
	return s.expansion.Status(), nil
}

// ExpandField opens fieldID, reloading it when it is already open.
func (s *Screen) ExpandField(ctx context.Context, fieldID string) (expansion.Status, error) {
	if _, ok := s.field(fieldID); !ok {
		return expansion.Status{}, ErrUnknownField
	}
	return s.expansion.Expand(ctx, fieldID), nil
}

// View derives the slot sheet for fieldID on the selected day. It is
// recomputed on every call.
func (s *Screen) View(fieldID string) (conflict.DayView, error) {
	f, ok := s.field(fieldID)
	if !ok {
		return conflict.DayView{}, ErrUnknownField
	}
	day, _, ok := s.SelectedDay()
	if !ok {
		return conflict.DayView{}, ErrNotLoaded
	}
	st := s.expansion.Status()
	if st.FieldID != fieldID || st.State != expansion.Expanded || s.set.FieldID() != fieldID {
		return conflict.DayView{}, ErrNotExpanded
	}
	return s.deps.Checker.DayView(f, day.Date, s.set.Snapshot(), conflict.Options{
		Degraded:   st.Degraded,
		FailClosed: s.deps.FailClosed,
	}), nil
}

// Panels describes every field for the selected day. A field whose fetch
// has not resolved is Loading and carries no view.
func (s *Screen) Panels() []Panel {
	day, _, ok := s.SelectedDay()
	fields := s.Fields()
	out := make([]Panel, 0, len(fields))
	for _, f := range fields {
		p := Panel{Field: f, State: s.expansion.StateOf(f.ID)}
		if ok {
			p.HasWindow = availability.HasDay(f.Availability, day.DayOfWeek)
		}
		switch p.State {
		case expansion.Expanding:
			p.Loading = true
		case expansion.Expanded:
			if v, err := s.View(f.ID); err == nil {
				p.View = &v
			} else {
				p.Loading = true
			}
		}
		out = append(out, p)
	}
	return out
}

// Tap handles a tap on a slot of the open field.
func (s *Screen) Tap(ctx context.Context, fieldID, label string) (submission.Prompt, error) {
	view, err := s.View(fieldID)
	if err != nil {
		return submission.Prompt{}, err
	}
	return s.flow.Tap(ctx, s.complexID, view, label)
}

func (s *Screen) Confirm(ctx context.Context) (model.Reservation, error) {
	return s.flow.Confirm(ctx)
}

func (s *Screen) CancelConfirmation() { s.flow.Cancel() }

func (s *Screen) Submission() submission.State { return s.flow.State() }

// Refresh rolls the day window forward when the date changed, keeping the
// selected date if it is still in range, and refetches the open field. When
// the selected date fell out of the window the first day is selected and
// the open field collapses.
func (s *Screen) Refresh(ctx context.Context) {
	days := calendar.Window(s.deps.Checker.Now(), s.deps.Locale)

	s.mu.Lock()
	if len(s.days) > 0 && calendar.SameDate(s.days[0].Date, days[0].Date) {
		s.mu.Unlock()
		s.expansion.Reload(ctx)
		return
	}
	next, kept := 0, false
	if s.selected >= 0 && s.selected < len(s.days) {
		for i, d := range days {
			if calendar.SameDate(d.Date, s.days[s.selected].Date) {
				next, kept = i, true
				break
			}
		}
	}
	s.days = days
	s.selected = next
	s.mu.Unlock()

	if !kept {
		s.logger.Info("day window rolled", "selected", days[next].Date.Format("2006-01-02"))
		s.expansion.Collapse()
		return
	}
	s.expansion.Reload(ctx)
}
