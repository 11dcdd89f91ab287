// Package reservations holds the reservation snapshot a screen checks slots
// against. It has exactly two writers: a per-field fetch that replaces the
// whole set and a successful submission that appends one reservation.
package reservations

import (
	"sync"

	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
)

type ChangeKind int

const (
	Replaced ChangeKind = iota + 1
	Appended
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case Replaced:
		return "replaced"
	case Appended:
		return "appended"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every mutation.
type Change struct {
	Kind ChangeKind
	// FieldID is the field the set is scoped to after the change.
	FieldID string
	// Reservation is set for Appended.
	Reservation *model.Reservation
	Size        int
}

type Observer interface {
	ReservationsChanged(Change)
}

type ObserverFunc func(Change)

func (f ObserverFunc) ReservationsChanged(c Change) { f(c) }

// Set is safe for concurrent use. Observers run synchronously after the lock
// is released, in subscription order.
type Set struct {
	mu        sync.Mutex
	fieldID   string
	items     []model.Reservation
	observers map[int]Observer
	order     []int
	nextID    int
}

func New() *Set {
	return &Set{observers: map[int]Observer{}}
}

// Replace makes items the authoritative set, scoped to fieldID.
func (s *Set) Replace(fieldID string, items []model.Reservation) {
	s.mu.Lock()
	s.fieldID = fieldID
	s.items = append([]model.Reservation(nil), items...)
	c := Change{Kind: Replaced, FieldID: fieldID, Size: len(s.items)}
	s.mu.Unlock()
	s.notify(c)
}

// Append adds r to whatever set is current.
func (s *Set) Append(r model.Reservation) {
	s.mu.Lock()
	s.items = append(s.items, r)
	appended := r
	c := Change{Kind: Appended, FieldID: s.fieldID, Reservation: &appended, Size: len(s.items)}
	s.mu.Unlock()
	s.notify(c)
}

// Clear drops every reservation and the field scope.
func (s *Set) Clear() {
	s.mu.Lock()
	s.fieldID = ""
	s.items = nil
	s.mu.Unlock()
	s.notify(Change{Kind: Cleared})
}

// Snapshot returns a copy of the current reservations.
func (s *Set) Snapshot() []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Reservation(nil), s.items...)
}

// FieldID is the field the last Replace was scoped to.
func (s *Set) FieldID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fieldID
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subscribe registers o and returns a function that removes it.
func (s *Set) Subscribe(o Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Set) notify(c Change) {
	s.mu.Lock()
	obs := make([]Observer, 0, len(s.order))
	for _, id := range s.order {
		obs = append(obs, s.observers[id])
	}
	s.mu.Unlock()
	for _, o := range obs {
		o.ReservationsChanged(c)
	}
}
