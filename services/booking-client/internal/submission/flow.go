// Package submission runs the tap, confirm, submit sequence for one slot.
//
// Guards are checked on tap, before any submission call: a logged-out user
// gets GuardLogin and a user whose profile lacks a national id gets
// GuardProfile. Neither is an error. Only a confirmed selection by a
// logged-in, profile-complete user reaches the backend.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	otelx "github.com/md-rashed-zaman/canchas/libs/otel"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/backend"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/conflict"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/reservations"
)

var (
	ErrSlotNotSelectable  = errors.New("submission: slot is not free")
	ErrNothingPending     = errors.New("submission: no selection awaiting confirmation")
	ErrSubmissionInFlight = errors.New("submission: already submitting")
)

type State int

const (
	Idle State = iota
	PendingConfirmation
	Canceled
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case PendingConfirmation:
		return "pendingConfirmation"
	case Canceled:
		return "canceled"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	default:
		return "idle"
	}
}

type Guard int

const (
	GuardNone Guard = iota
	GuardLogin
	GuardProfile
)

// Identity is the current session.
type Identity interface {
	Authenticated(ctx context.Context) bool
	UserID(ctx context.Context) string
}

type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
}

type Creator interface {
	CreateReservation(ctx context.Context, in backend.CreateReservationRequest, idempotencyKey string) (model.Reservation, error)
}

// Selection is the slot a user tapped.
type Selection struct {
	FieldID   string
	FieldName string
	ComplexID string
	Label     string
	Start     time.Time
}

// Prompt is what the UI shows after a tap: a guard prompt, or the
// confirmation modal when Guard is GuardNone.
type Prompt struct {
	Guard             Guard
	Selection         Selection
	Price             float64
	CancellationHours int
}

type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota + 1
	NoticeError
)

type Notice struct {
	Kind        NoticeKind
	Selection   Selection
	Reservation *model.Reservation
	Err         error
}

// Notifier shows transient notifications.
type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type Config struct {
	Price             float64
	CancellationHours int
}

type Flow struct {
	identity Identity
	profiles ProfileSource
	creator  Creator
	set      *reservations.Set
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	validate *validator.Validate
	newKey   func() string

	mu      sync.Mutex
	state   State
	pending *Selection
}

func New(identity Identity, profiles ProfileSource, creator Creator, set *reservations.Set, notifier Notifier, logger *slog.Logger, cfg Config) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &Flow{
		identity: identity,
		profiles: profiles,
		creator:  creator,
		set:      set,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		validate: validator.New(),
		newKey:   uuid.NewString,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending is the selection awaiting confirmation, if any.
func (f *Flow) Pending() (Selection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return Selection{}, false
	}
	return *f.pending, true
}

// Tap handles a tap on label in view. Only free slots are accepted. When
// both guards pass the flow moves to PendingConfirmation.
func (f *Flow) Tap(ctx context.Context, complexID string, view conflict.DayView, label string) (Prompt, error) {
	slot, ok := view.Lookup(label)
	if !ok || !slot.State.Selectable() {
		return Prompt{}, ErrSlotNotSelectable
	}

	f.mu.Lock()
	if f.state == Submitting {
		f.mu.Unlock()
		return Prompt{}, ErrSubmissionInFlight
	}
	f.mu.Unlock()

	sel := Selection{
		FieldID:   view.FieldID,
		FieldName: view.FieldName,
		ComplexID: complexID,
		Label:     slot.Label,
		Start:     slot.Start,
	}
	prompt := Prompt{Selection: sel, Price: f.cfg.Price, CancellationHours: f.cfg.CancellationHours}

	if !f.identity.Authenticated(ctx) {
		f.drop()
		prompt.Guard = GuardLogin
		return prompt, nil
	}
	profile, err := f.profiles.GetProfile(ctx, f.identity.UserID(ctx))
	if err != nil {
		f.drop()
		f.logger.Warn("profile fetch failed", "field_id", sel.FieldID, "err", err)
		return Prompt{}, fmt.Errorf("submission: load profile: %w", err)
	}
	if !profile.HasIdentity() {
		f.drop()
		prompt.Guard = GuardProfile
		return prompt, nil
	}

	f.mu.Lock()
	f.state = PendingConfirmation
	f.pending = &sel
	f.mu.Unlock()
	return prompt, nil
}

// Cancel dismisses the confirmation modal. Canceled and Submitted accept
// the next tap the same way Idle does.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != PendingConfirmation {
		return
	}
	f.state = Canceled
	f.pending = nil
}

// Confirm submits the pending selection. On success the created reservation
// is appended to the set so the slot reads as reserved without a refetch.
// On failure nothing local changes and the flow is idle again.
func (f *Flow) Confirm(ctx context.Context) (model.Reservation, error) {
	f.mu.Lock()
	switch {
	case f.state == Submitting:
		f.mu.Unlock()
		return model.Reservation{}, ErrSubmissionInFlight
	case f.state != PendingConfirmation || f.pending == nil:
		f.mu.Unlock()
		return model.Reservation{}, ErrNothingPending
	}
	sel := *f.pending
	f.state = Submitting
	f.mu.Unlock()

	ctx, span := otelx.Tracer("booking-client/submission").Start(ctx, "submission.Confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("field.id", sel.FieldID),
		attribute.String("slot", sel.Label),
	)

	created, err := f.submit(ctx, sel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		f.logger.Warn("reservation submit failed", "field_id", sel.FieldID, "slot", sel.Label, "err", err)
		f.finish(Idle)
		f.notifier.Notify(Notice{Kind: NoticeError, Selection: sel, Err: err})
		return model.Reservation{}, err
	}

	f.set.Append(created)
	f.finish(Submitted)
	f.logger.Info("reservation created", "field_id", sel.FieldID, "reservation_id", created.ID, "start", created.StartTime)
	f.notifier.Notify(Notice{Kind: NoticeSuccess, Selection: sel, Reservation: &created})
	return created, nil
}

// drop forgets an earlier selection still awaiting confirmation.
func (f *Flow) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == PendingConfirmation {
		f.state = Idle
	}
	f.pending = nil
}

func (f *Flow) finish(s State) {
	f.mu.Lock()
	f.state = s
	f.pending = nil
	f.mu.Unlock()
}

func (f *Flow) submit(ctx context.Context, sel Selection) (model.Reservation, error) {
	req := backend.CreateReservationRequest{
		FieldID:   sel.FieldID,
		UserID:    f.identity.UserID(ctx),
		ComplexID: sel.ComplexID,
		StartTime: model.FormatTimestamp(sel.Start),
		Price:     f.cfg.Price,
		Duration:  model.DefaultDuration,
	}
	if err := f.validate.Struct(req); err != nil {
		return model.Reservation{}, fmt.Errorf("submission: invalid payload: %w", err)
	}
	created, err := f.creator.CreateReservation(ctx, req, f.newKey())
	if err != nil {
		return model.Reservation{}, err
	}
	// Some backends echo only the id; fill in what was sent.
	if created.FieldID == "" {
		created.FieldID = req.FieldID
	}
	if created.StartTime == "" {
		created.StartTime = req.StartTime
	}
	if created.UserID == "" {
		created.UserID = req.UserID
	}
	if created.ComplexID == "" {
		created.ComplexID = req.ComplexID
	}
	return created, nil
}
