// Package capacity computes seat usage of an event from its reservations.
// Everything here is pure: no I/O and no clock.
package capacity

import "github.com/iliyamo/event-reservation/internal/model"

// Usage is a snapshot of how much of an event's capacity is held.
type Usage struct {
	Capacity int `json:"capacity"`
	Reserved int `json:"reserved"`
}

// Compute sums the seats held by the active (PENDING or CONFIRMED)
// reservations among rs. Reservations of other events are ignored.
func Compute(e *model.Event, rs []model.Reservation) Usage {
	u := Usage{Capacity: e.Capacity}
	for _, r := range rs {
		if r.EventID == e.ID && r.Status.Active() {
			u.Reserved += r.Seats
		}
	}
	return u
}

// FromReserved builds a Usage from an already aggregated seat count.
func FromReserved(capacity, reserved int) Usage {
	return Usage{Capacity: capacity, Reserved: reserved}
}

// Remaining is capacity minus reserved seats. A negative value means the
// capacity invariant has been broken and must be treated as a bug.
func (u Usage) Remaining() int {
	return u.Capacity - u.Reserved
}

// Available is Remaining clamped at zero.
func (u Usage) Available() int {
	if r := u.Remaining(); r > 0 {
		return r
	}
	return 0
}

// FillRate is the reserved share of capacity in percent, 0 when the
// capacity is unset.
func (u Usage) FillRate() float64 {
	if u.Capacity <= 0 {
		return 0
	}
	return float64(u.Reserved) * 100 / float64(u.Capacity)
}

// IsFull reports whether no seat is left.
func (u Usage) IsFull() bool {
	return u.Remaining() <= 0
}

// Overbooked reports whether more seats are held than the capacity allows.
func (u Usage) Overbooked() bool {
	return u.Remaining() < 0
}
