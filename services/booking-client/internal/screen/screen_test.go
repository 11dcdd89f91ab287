package screen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/canchas/libs/backendsim"
	"github.com/md-rashed-zaman/canchas/libs/httpx"
	"github.com/md-rashed-zaman/canchas/libs/runtime"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/backend"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/calendar"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/conflict"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/expansion"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/reservations"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/submission"
)

var art = mustLoad("America/Argentina/Buenos_Aires")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type identity struct{ userID string }

func (i identity) Authenticated(context.Context) bool { return i.userID != "" }
func (i identity) UserID(context.Context) string      { return i.userID }

type bearer string

func (b bearer) Token(context.Context) (string, error)           { return string(b), nil }
func (b bearer) Refresh(context.Context, string) (string, error) { return "", nil }

// gatedCreator holds CreateReservation until gate is closed, when set.
type gatedCreator struct {
	next submission.Creator
	gate chan struct{}
}

func (g *gatedCreator) CreateReservation(ctx context.Context, in backend.CreateReservationRequest, key string) (model.Reservation, error) {
	if g.gate != nil {
		<-g.gate
	}
	return g.next.CreateReservation(ctx, in, key)
}

type fixture struct {
	sim     *backendsim.Server
	screen  *Screen
	creator *gatedCreator
	now     *time.Time
	changes []reservations.Change
}

func newFixture(t *testing.T, seed backendsim.Seed, userID string, failClosed bool) *fixture {
	t.Helper()
	sim, err := backendsim.New(seed, backendsim.Options{Secret: "test", Location: art})
	require.NoError(t, err)
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)

	var rt http.RoundTripper = srv.Client().Transport
	if userID != "" {
		token, _, err := sim.IssueToken(userID)
		require.NoError(t, err)
		rt = httpx.Chain(rt, httpx.WithBearer(bearer(token)))
	}
	api := backend.New(backend.Options{BaseURL: srv.URL, Transport: rt})

	now := time.Date(2026, 10, 14, 14, 30, 0, 0, art) // Wednesday
	f := &fixture{sim: sim, now: &now, creator: &gatedCreator{next: api}}
	f.screen = New("cx-norte", Deps{
		Fields:       api,
		Reservations: api,
		Profiles:     api,
		Creator:      f.creator,
		Identity:     identity{userID: userID},
		Checker:      conflict.NewChecker(art, func() time.Time { return *f.now }),
		Locale:       calendar.Spanish,
		Logger:       runtime.Discard(),
		Submission:   submission.Config{Price: 10000, CancellationHours: 6},
		FailClosed:   failClosed,
		OnChange:     func(c reservations.Change) { f.changes = append(f.changes, c) },
	})
	require.NoError(t, f.screen.Load(context.Background()))
	return f
}

func TestInitialDayIsFirstWithAvailability(t *testing.T) {
	seed := backendsim.DefaultSeed()
	seed.Fields = seed.Fields[1:] // pádel only: Mon, Wed, Fri
	seed.Fields[0].Availability = seed.Fields[0].Availability[2:]

	f := newFixture(t, seed, "", false)
	day, idx, ok := f.screen.SelectedDay()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "Viernes", day.Label)
}

func TestInitialDayFallsBackToToday(t *testing.T) {
	seed := backendsim.DefaultSeed()
	for i := range seed.Fields {
		seed.Fields[i].Availability = nil
	}
	f := newFixture(t, seed, "", false)
	day, idx, ok := f.screen.SelectedDay()
	require.True(t, ok)
	assert.Zero(t, idx)
	assert.Equal(t, "Hoy", day.Label)
}

func TestPanelsShowOnlyExpandedField(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "", false)
	ctx := context.Background()

	for _, p := range f.screen.Panels() {
		assert.Equal(t, expansion.Collapsed, p.State)
		assert.Nil(t, p.View)
	}

	_, err := f.screen.ToggleField(ctx, "fd-futbol-5")
	require.NoError(t, err)
	panels := f.screen.Panels()
	require.Len(t, panels, 2)
	require.NotNil(t, panels[0].View)
	assert.Nil(t, panels[1].View)
	assert.True(t, panels[1].HasWindow) // Wednesday

	// today at 14:30: 9..14 past, 15..22 free
	view := panels[0].View
	require.Len(t, view.Slots, 14)
	s, _ := view.Lookup("14:00")
	assert.Equal(t, conflict.Past, s.State)
	s, _ = view.Lookup("15:00")
	assert.Equal(t, conflict.Free, s.State)

	_, err = f.screen.ToggleField(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFieldIsolationAcrossExpansions(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "us-ana", false)
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(5)) // Monday 19th

	_, err := f.screen.ExpandField(ctx, "fd-padel-1")
	require.NoError(t, err)
	_, err = f.screen.Tap(ctx, "fd-padel-1", "10:00")
	require.NoError(t, err)
	_, err = f.screen.Confirm(ctx)
	require.NoError(t, err)

	_, err = f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)
	view, err := f.screen.View("fd-futbol-5")
	require.NoError(t, err)
	s, _ := view.Lookup("10:00")
	assert.Equal(t, conflict.Free, s.State)

	_, err = f.screen.View("fd-padel-1")
	assert.ErrorIs(t, err, ErrNotExpanded)
}

func TestReserveMergesWithoutRefetch(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "us-ana", false)
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(1))

	_, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)

	p, err := f.screen.Tap(ctx, "fd-futbol-5", "11:00")
	require.NoError(t, err)
	assert.Equal(t, submission.GuardNone, p.Guard)
	assert.Equal(t, submission.PendingConfirmation, f.screen.Submission())

	_, err = f.screen.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sim.Creates())

	// backend is down now; the local set still carries the new reservation
	f.sim.FailNext(http.MethodGet, "/reservations/", http.StatusServiceUnavailable, 10)
	view, err := f.screen.View("fd-futbol-5")
	require.NoError(t, err)
	s, _ := view.Lookup("11:00")
	assert.Equal(t, conflict.Reserved, s.State)

	require.GreaterOrEqual(t, len(f.changes), 2)
	assert.Equal(t, reservations.Appended, f.changes[len(f.changes)-1].Kind)
}

func TestSubmitInFlightAcrossDayChangeLandsInCurrentSet(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "us-ana", false)
	f.creator.gate = make(chan struct{})
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(1))
	_, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)

	_, err = f.screen.Tap(ctx, "fd-futbol-5", "11:00")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.screen.Confirm(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.screen.Submission() == submission.Submitting
	}, time.Second, time.Millisecond)

	// away and back: the set is dropped, then refetched without the new row
	require.NoError(t, f.screen.SelectDay(2))
	require.NoError(t, f.screen.SelectDay(1))
	_, err = f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)
	view, err := f.screen.View("fd-futbol-5")
	require.NoError(t, err)
	s, _ := view.Lookup("11:00")
	require.Equal(t, conflict.Free, s.State)

	close(f.creator.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.sim.Creates())

	view, err = f.screen.View("fd-futbol-5")
	require.NoError(t, err)
	s, _ = view.Lookup("11:00")
	assert.Equal(t, conflict.Reserved, s.State)
}

func TestLeoNeedsProfile(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "us-leo", false)
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(1))
	_, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)

	p, err := f.screen.Tap(ctx, "fd-futbol-5", "11:00")
	require.NoError(t, err)
	assert.Equal(t, submission.GuardProfile, p.Guard)
	assert.Zero(t, f.sim.Creates())
}

func TestDayChangeCollapses(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "", false)
	ctx := context.Background()
	_, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)

	require.NoError(t, f.screen.SelectDay(3))
	for _, p := range f.screen.Panels() {
		assert.Equal(t, expansion.Collapsed, p.State)
	}
	assert.ErrorIs(t, f.screen.SelectDay(7), ErrUnknownDay)
}

func TestDegradedFailClosed(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "us-ana", true)
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(1))
	f.sim.FailNext(http.MethodGet, "/reservations/", http.StatusServiceUnavailable, 1)

	st, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)
	assert.True(t, st.Degraded)

	view, err := f.screen.View("fd-futbol-5")
	require.NoError(t, err)
	assert.Empty(t, view.Free())
	_, err = f.screen.Tap(ctx, "fd-futbol-5", "11:00")
	assert.ErrorIs(t, err, submission.ErrSlotNotSelectable)
}

func TestDegradedFailOpen(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "us-ana", false)
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(1))
	f.sim.FailNext(http.MethodGet, "/reservations/", http.StatusServiceUnavailable, 1)

	_, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)
	view, err := f.screen.View("fd-futbol-5")
	require.NoError(t, err)
	assert.True(t, view.Degraded)
	assert.Len(t, view.Free(), 14)
}

func TestRefreshRollsWindowAtMidnight(t *testing.T) {
	f := newFixture(t, backendsim.DefaultSeed(), "", false)
	ctx := context.Background()
	require.NoError(t, f.screen.SelectDay(2))
	_, err := f.screen.ExpandField(ctx, "fd-futbol-5")
	require.NoError(t, err)

	*f.now = time.Date(2026, 10, 15, 0, 5, 0, 0, art)
	f.screen.Refresh(ctx)

	day, idx, ok := f.screen.SelectedDay()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 16, day.Date.Day())
	assert.Equal(t, expansion.Expanded, f.screen.Panels()[0].State)

	// Back at day 0 once the selected date leaves the window: move 7 days on.
	*f.now = time.Date(2026, 10, 23, 8, 0, 0, 0, art)
	f.screen.Refresh(ctx)
	_, idx, _ = f.screen.SelectedDay()
	assert.Zero(t, idx)
	assert.Equal(t, expansion.Collapsed, f.screen.Panels()[0].State)
}
