package domain

import "time"

// GraceMinutes is the length of the free window after a payment, in minutes.
// A car may exit without additional charge while inside it.
const GraceMinutes = 0.5

// Phase is the lifecycle state of a ticket, derived from its timestamps.
type Phase string

const (
	// PhaseActive: parked, never paid. Duration accrues from entry.
	PhaseActive Phase = "active"
	// PhasePaidWithinGrace: paid, grace window still open. Duration is zero
	// and the car is eligible to exit.
	PhasePaidWithinGrace Phase = "paid_within_grace"
	// PhasePaidExpired: paid, but the grace window has elapsed. A fresh
	// duration accrues from the last payment.
	PhasePaidExpired Phase = "paid_expired"
	// PhaseCompleted: exited. The duration is final and immutable.
	PhaseCompleted Phase = "completed"
)

// PhaseEvent is an action that moves a ticket between phases.
type PhaseEvent string

const (
	EventPay          PhaseEvent = "pay"
	EventGraceElapsed PhaseEvent = "grace_elapsed"
	EventExit         PhaseEvent = "exit"
)

// PhaseTransition defines a valid phase change: an event moves a ticket
// from Src to Dst.
type PhaseTransition struct {
	Event PhaseEvent
	Src   Phase
	Dst   Phase
}

// PhaseTransitions defines all valid phase changes in the ticket lifecycle.
// This is domain knowledge consumed by the FSM adapter. Paying again while
// inside the grace window restarts it, so EventPay is a self-transition
// there.
var PhaseTransitions = []PhaseTransition{
	{Event: EventPay, Src: PhaseActive, Dst: PhasePaidWithinGrace},
	{Event: EventPay, Src: PhasePaidWithinGrace, Dst: PhasePaidWithinGrace},
	{Event: EventPay, Src: PhasePaidExpired, Dst: PhasePaidWithinGrace},
	{Event: EventGraceElapsed, Src: PhasePaidWithinGrace, Dst: PhasePaidExpired},
	{Event: EventExit, Src: PhasePaidWithinGrace, Dst: PhaseCompleted},
}

// Ticket is a single car's parking session. While the car is parked the
// ticket lives in the facility's live list with ParkingEndedAt nil; on exit
// a completed snapshot moves to the facility's history record.
type Ticket struct {
	TicketNumber     string
	ParkingStartedAt time.Time
	ParkingEndedAt   *time.Time
	PayedAt          []time.Time
}

// NewTicket creates an active ticket starting at the given instant.
func NewTicket(ticketNumber string, now time.Time) Ticket {
	return Ticket{
		TicketNumber:     ticketNumber,
		ParkingStartedAt: now,
	}
}

// LastPayment returns the most recent payment time, if any.
func (t Ticket) LastPayment() (time.Time, bool) {
	if len(t.PayedAt) == 0 {
		return time.Time{}, false
	}
	return t.PayedAt[len(t.PayedAt)-1], true
}

// PhaseAt derives the ticket's lifecycle phase at the given instant.
func (t Ticket) PhaseAt(now time.Time) Phase {
	if t.ParkingEndedAt != nil {
		return PhaseCompleted
	}
	last, paid := t.LastPayment()
	if !paid {
		return PhaseActive
	}
	if MinutesBetween(last, now) > GraceMinutes {
		return PhasePaidExpired
	}
	return PhasePaidWithinGrace
}

// DurationAt returns the chargeable duration in minutes at the given
// instant, dispatching on the ticket's phase:
//
//   - Completed: the full stay, entry to exit. Independent of now.
//   - PaidExpired: a new duration accruing since the last payment, not the
//     full stay.
//   - PaidWithinGrace: zero; the car may leave at no extra charge.
//   - Active: entry to now.
//
// No rounding is applied at this layer.
func (t Ticket) DurationAt(now time.Time) float64 {
	switch t.PhaseAt(now) {
	case PhaseCompleted:
		return MinutesBetween(t.ParkingStartedAt, *t.ParkingEndedAt)
	case PhasePaidExpired:
		last, _ := t.LastPayment()
		return MinutesBetween(last, now)
	case PhasePaidWithinGrace:
		return 0
	default:
		return MinutesBetween(t.ParkingStartedAt, now)
	}
}

// FeeAt returns the fee owed at the given instant under the given per-minute
// rate. Callers needing one consistent duration+fee pair must compute the
// duration once and multiply, rather than calling both against a moving now.
func (t Ticket) FeeAt(pricePerMinute float64, now time.Time) float64 {
	return pricePerMinute * t.DurationAt(now)
}

// Completed returns a deep copy of the ticket with ParkingEndedAt set to the
// given instant, suitable for appending to the immutable history record.
func (t Ticket) Completed(now time.Time) Ticket {
	ended := now
	payed := make([]time.Time, len(t.PayedAt))
	copy(payed, t.PayedAt)
	return Ticket{
		TicketNumber:     t.TicketNumber,
		ParkingStartedAt: t.ParkingStartedAt,
		ParkingEndedAt:   &ended,
		PayedAt:          payed,
	}
}

// MinutesBetween converts the elapsed wall time from a to b into fractional
// minutes with millisecond precision.
func MinutesBetween(a, b time.Time) float64 {
	return float64(b.Sub(a).Milliseconds()) / 60000
}
