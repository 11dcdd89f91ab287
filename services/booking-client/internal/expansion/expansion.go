// Package expansion tracks which field panel is open and loads its
// reservations. At most one field is expanded at a time and at most one
// fetch is in flight for it; a response that arrives after the panel was
// collapsed or replaced is dropped.
package expansion

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	otelx "github.com/md-rashed-zaman/canchas/libs/otel"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/reservations"
)

type State int

const (
	Collapsed State = iota
	Expanding
	Expanded
)

func (s State) String() string {
	switch s {
	case Expanding:
		return "expanding"
	case Expanded:
		return "expanded"
	default:
		return "collapsed"
	}
}

// Fetcher loads the reservations for one field.
type Fetcher interface {
	ListReservations(ctx context.Context, fieldID string) ([]model.Reservation, error)
}

// Ticket identifies one expansion. Load only applies results for the
// ticket that is still current.
type Ticket struct {
	FieldID string
	gen     uint64
}

// Status is a snapshot of the controller.
type Status struct {
	FieldID  string
	State    State
	Degraded bool
}

type Controller struct {
	fetcher Fetcher
	set     *reservations.Set
	logger  *slog.Logger

	mu       sync.Mutex
	fieldID  string
	state    State
	degraded bool
	gen      uint64
}

func New(fetcher Fetcher, set *reservations.Set, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{fetcher: fetcher, set: set, logger: logger}
}

// Toggle handles a tap on fieldID's header. Tapping the open field collapses
// it; tapping another one collapses the open field and starts expanding the
// new one. ok is false when the tap collapsed.
func (c *Controller) Toggle(fieldID string) (t Ticket, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.fieldID == fieldID && c.state != Collapsed {
		c.fieldID = ""
		c.state = Collapsed
		c.degraded = false
		return Ticket{}, false
	}
	c.fieldID = fieldID
	c.state = Expanding
	c.degraded = false
	return Ticket{FieldID: fieldID, gen: c.gen}, true
}

// Collapse closes whatever is open and drops the loaded reservations. Used
// on a day change.
func (c *Controller) Collapse() {
	c.mu.Lock()
	c.gen++
	c.fieldID = ""
	c.state = Collapsed
	c.degraded = false
	c.mu.Unlock()
	c.set.Clear()
}

// Load fetches the ticket's reservations and, when the ticket is still the
// current one, replaces the reservation set with them. A failed fetch leaves
// the panel expanded over an empty set marked degraded. It reports whether
// the result was applied.
func (c *Controller) Load(ctx context.Context, t Ticket) bool {
	ctx, span := otelx.Tracer("booking-client/expansion").Start(ctx, "expansion.Load")
	defer span.End()
	span.SetAttributes(attribute.String("field.id", t.FieldID))

	items, err := c.fetcher.ListReservations(ctx, t.FieldID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
	}

	c.mu.Lock()
	if t.gen != c.gen || c.fieldID != t.FieldID {
		c.mu.Unlock()
		c.logger.Debug("discarding stale reservations", "field_id", t.FieldID)
		return false
	}
	c.state = Expanded
	c.degraded = err != nil
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("reservation fetch failed; showing field degraded", "field_id", t.FieldID, "err", err)
		c.set.Replace(t.FieldID, nil)
		return true
	}
	c.set.Replace(t.FieldID, items)
	return true
}

// Expand opens fieldID and blocks on its fetch. An already open field is
// reloaded instead of collapsed.
func (c *Controller) Expand(ctx context.Context, fieldID string) Status {
	if c.StateOf(fieldID) != Collapsed {
		c.Reload(ctx)
	} else if t, ok := c.Toggle(fieldID); ok {
		c.Load(ctx, t)
	}
	return c.Status()
}

// Reload refetches the open field, if any.
func (c *Controller) Reload(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == Collapsed {
		c.mu.Unlock()
		return false
	}
	c.gen++
	t := Ticket{FieldID: c.fieldID, gen: c.gen}
	c.mu.Unlock()
	return c.Load(ctx, t)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{FieldID: c.fieldID, State: c.state, Degraded: c.degraded}
}

// StateOf is the panel state of fieldID.
func (c *Controller) StateOf(fieldID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fieldID != fieldID {
		return Collapsed
	}
	return c.state
}
