package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/canchas/libs/runtime"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/backend"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/conflict"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/expansion"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/reservations"
)

type fakeIdentity struct {
	loggedIn bool
	userID   string
}

func (f fakeIdentity) Authenticated(context.Context) bool { return f.loggedIn }
func (f fakeIdentity) UserID(context.Context) string      { return f.userID }

type fakeProfiles struct {
	profile model.Profile
	err     error
	calls   int
}

func (f *fakeProfiles) GetProfile(context.Context, string) (model.Profile, error) {
	f.calls++
	return f.profile, f.err
}

type switchIdentity struct {
	mu       sync.Mutex
	loggedIn bool
}

func (s *switchIdentity) Authenticated(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}
func (s *switchIdentity) UserID(context.Context) string { return "u" }

func (s *switchIdentity) set(v bool) {
	s.mu.Lock()
	s.loggedIn = v
	s.mu.Unlock()
}

type fieldFetcher struct {
	data map[string][]model.Reservation
}

func (f fieldFetcher) ListReservations(_ context.Context, fieldID string) ([]model.Reservation, error) {
	return f.data[fieldID], nil
}

type fakeCreator struct {
	mu    sync.Mutex
	err   error
	calls []backend.CreateReservationRequest
	keys  []string
	block chan struct{}
}

func (f *fakeCreator) CreateReservation(_ context.Context, in backend.CreateReservationRequest, key string) (model.Reservation, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return model.Reservation{}, f.err
	}
	return model.Reservation{ID: "new", FieldID: in.FieldID, StartTime: in.StartTime, Status: model.StatusConfirmed}, nil
}

type harness struct {
	flow     *Flow
	set      *reservations.Set
	checker  *conflict.Checker
	field    model.Field
	day      time.Time
	creator  *fakeCreator
	profiles *fakeProfiles
	notices  []Notice
}

func newHarness(t *testing.T, id Identity, profile model.Profile) *harness {
	t.Helper()
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	now := time.Date(2026, 10, 14, 14, 30, 0, 0, loc)

	h := &harness{
		set:      reservations.New(),
		checker:  conflict.NewChecker(loc, func() time.Time { return now }),
		field:    model.Field{ID: "F", Name: "Cancha 1", ComplexID: "C", Availability: []model.AvailabilityWindow{{DayOfWeek: 2, From: "9:00", To: "12:00"}}},
		day:      time.Date(2026, 10, 19, 0, 0, 0, 0, loc),
		creator:  &fakeCreator{},
		profiles: &fakeProfiles{profile: profile},
	}
	h.flow = New(id, h.profiles, h.creator, h.set, NotifierFunc(func(n Notice) {
		h.notices = append(h.notices, n)
	}), runtime.Discard(), Config{Price: 10000, CancellationHours: 6})
	return h
}

func (h *harness) view() conflict.DayView {
	return h.checker.DayView(h.field, h.day, h.set.Snapshot(), conflict.Options{})
}

func complete() model.Profile { return model.Profile{DNI: "30111222"} }

func TestUnauthenticatedTapNeverSubmits(t *testing.T) {
	h := newHarness(t, fakeIdentity{}, complete())

	p, err := h.flow.Tap(context.Background(), "C", h.view(), "10:00")
	require.NoError(t, err)
	assert.Equal(t, GuardLogin, p.Guard)
	assert.Equal(t, Idle, h.flow.State())
	assert.Zero(t, h.profiles.calls)

	_, err = h.flow.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNothingPending)
	assert.Empty(t, h.creator.calls)
}

func TestIncompleteProfileGetsProfilePrompt(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, model.Profile{DNI: "  "})

	p, err := h.flow.Tap(context.Background(), "C", h.view(), "10:00")
	require.NoError(t, err)
	assert.Equal(t, GuardProfile, p.Guard)
	assert.Equal(t, Idle, h.flow.State())
	assert.Empty(t, h.creator.calls)
}

func TestConfirmAppendsAndMarksReserved(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	ctx := context.Background()

	p, err := h.flow.Tap(ctx, "C", h.view(), "11:00")
	require.NoError(t, err)
	assert.Equal(t, GuardNone, p.Guard)
	assert.Equal(t, 6, p.CancellationHours)
	assert.Equal(t, "Cancha 1", p.Selection.FieldName)
	assert.Equal(t, PendingConfirmation, h.flow.State())

	created, err := h.flow.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", created.ID)
	assert.Equal(t, Submitted, h.flow.State())

	require.Len(t, h.creator.calls, 1)
	sent := h.creator.calls[0]
	assert.Equal(t, "2026-10-19T11:00:00-03:00", sent.StartTime)
	assert.Equal(t, "01:00", sent.Duration)
	assert.Equal(t, 10000.0, sent.Price)
	assert.Equal(t, "u", sent.UserID)
	assert.Equal(t, "C", sent.ComplexID)
	assert.NotEmpty(t, h.creator.keys[0])

	// the merged reservation is visible without a refetch
	assert.Equal(t, conflict.Reserved, h.checker.State("F", h.day, "11:00", h.set.Snapshot()))

	_, err = h.flow.Tap(ctx, "C", h.view(), "11:00")
	assert.ErrorIs(t, err, ErrSlotNotSelectable)

	require.Len(t, h.notices, 1)
	assert.Equal(t, NoticeSuccess, h.notices[0].Kind)
}

func TestFailedSubmissionLeavesSetUntouched(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	h.creator.err = &backend.APIError{Status: 409, Message: "time slot already booked"}
	ctx := context.Background()

	_, err := h.flow.Tap(ctx, "C", h.view(), "9:00")
	require.NoError(t, err)
	_, err = h.flow.Confirm(ctx)
	require.Error(t, err)
	assert.True(t, backend.IsConflict(err))

	assert.Equal(t, Idle, h.flow.State())
	assert.Zero(t, h.set.Len())
	require.Len(t, h.notices, 1)
	assert.Equal(t, NoticeError, h.notices[0].Kind)
	assert.True(t, errors.Is(h.notices[0].Err, err))
}

func TestCancelReturnsWithoutSubmitting(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	ctx := context.Background()

	_, err := h.flow.Tap(ctx, "C", h.view(), "9:00")
	require.NoError(t, err)
	h.flow.Cancel()
	assert.Equal(t, Canceled, h.flow.State())
	_, ok := h.flow.Pending()
	assert.False(t, ok)

	_, err = h.flow.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNothingPending)
	assert.Empty(t, h.creator.calls)
}

func TestSecondConfirmWhileSubmittingIsRejected(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	h.creator.block = make(chan struct{})
	ctx := context.Background()

	_, err := h.flow.Tap(ctx, "C", h.view(), "9:00")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.flow.Confirm(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.flow.State() == Submitting }, time.Second, time.Millisecond)

	_, err = h.flow.Confirm(ctx)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = h.flow.Tap(ctx, "C", h.view(), "10:00")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(h.creator.block)
	require.NoError(t, <-done)
	assert.Len(t, h.creator.calls, 1)
}

func TestUnavailableSlotsCannotBeTapped(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	view := h.checker.DayView(h.field, h.day, nil, conflict.Options{Degraded: true, FailClosed: true})

	_, err := h.flow.Tap(context.Background(), "C", view, "9:00")
	assert.ErrorIs(t, err, ErrSlotNotSelectable)
	assert.Zero(t, h.profiles.calls)
}

func TestUnknownLabel(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	_, err := h.flow.Tap(context.Background(), "C", h.view(), "20:00")
	assert.ErrorIs(t, err, ErrSlotNotSelectable)
}

func TestGuardOnLaterTapDropsEarlierSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("logged out", func(t *testing.T) {
		id := &switchIdentity{loggedIn: true}
		h := newHarness(t, id, complete())
		_, err := h.flow.Tap(ctx, "C", h.view(), "9:00")
		require.NoError(t, err)
		require.Equal(t, PendingConfirmation, h.flow.State())

		id.set(false)
		p, err := h.flow.Tap(ctx, "C", h.view(), "10:00")
		require.NoError(t, err)
		assert.Equal(t, GuardLogin, p.Guard)
		assert.Equal(t, Idle, h.flow.State())
		_, ok := h.flow.Pending()
		assert.False(t, ok)

		_, err = h.flow.Confirm(ctx)
		assert.ErrorIs(t, err, ErrNothingPending)
		assert.Empty(t, h.creator.calls)
	})

	t.Run("profile incomplete", func(t *testing.T) {
		h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
		_, err := h.flow.Tap(ctx, "C", h.view(), "9:00")
		require.NoError(t, err)

		h.profiles.profile = model.Profile{}
		p, err := h.flow.Tap(ctx, "C", h.view(), "10:00")
		require.NoError(t, err)
		assert.Equal(t, GuardProfile, p.Guard)
		assert.Equal(t, Idle, h.flow.State())

		_, err = h.flow.Confirm(ctx)
		assert.ErrorIs(t, err, ErrNothingPending)
		assert.Empty(t, h.creator.calls)
	})

	t.Run("profile fetch fails", func(t *testing.T) {
		h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
		_, err := h.flow.Tap(ctx, "C", h.view(), "9:00")
		require.NoError(t, err)

		h.profiles.err = errors.New("connection reset")
		_, err = h.flow.Tap(ctx, "C", h.view(), "10:00")
		require.Error(t, err)
		assert.Equal(t, Idle, h.flow.State())

		_, err = h.flow.Confirm(ctx)
		assert.ErrorIs(t, err, ErrNothingPending)
		assert.Empty(t, h.creator.calls)
	})
}

func TestSubmissionResolvingAfterReexpandAppendsToCurrentSet(t *testing.T) {
	h := newHarness(t, fakeIdentity{loggedIn: true, userID: "u"}, complete())
	h.creator.block = make(chan struct{})
	ctx := context.Background()

	other := model.Reservation{ID: "r9", FieldID: "F", StartTime: "2026-10-19T09:00", Status: model.StatusConfirmed}
	exp := expansion.New(fieldFetcher{data: map[string][]model.Reservation{"F": {other}}}, h.set, runtime.Discard())
	require.Equal(t, expansion.Expanded, exp.Expand(ctx, "F").State)

	_, err := h.flow.Tap(ctx, "C", h.view(), "11:00")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.flow.Confirm(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.flow.State() == Submitting }, time.Second, time.Millisecond)

	_, ok := exp.Toggle("F")
	require.False(t, ok)
	require.Equal(t, expansion.Expanded, exp.Expand(ctx, "F").State)
	require.Equal(t, 1, h.set.Len())

	close(h.creator.block)
	require.NoError(t, <-done)

	assert.Equal(t, 2, h.set.Len())
	assert.Equal(t, "F", h.set.FieldID())
	snap := h.set.Snapshot()
	assert.Equal(t, conflict.Reserved, h.checker.State("F", h.day, "11:00", snap))
	assert.Equal(t, conflict.Reserved, h.checker.State("F", h.day, "9:00", snap))
	assert.Equal(t, conflict.Free, h.checker.State("F", h.day, "10:00", snap))
}
