package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrFacilityNotFound = errors.New("facility not found")
	ErrSpotNotFound     = errors.New("spot not found")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrCapacityExceeded = errors.New("facility is at capacity")
	ErrDuplicateTicket  = errors.New("ticket number already in use")
	ErrAlreadyExited    = errors.New("ticket has already exited")
	ErrOpenPayment      = errors.New("no payment within the current grace window")

	// ErrConflict is surfaced by the store when a concurrent writer updated
	// the same aggregate first. The repository retries a bounded number of
	// times before returning it.
	ErrConflict = errors.New("concurrent update conflict")
)

// FacilityExistsError is returned when a (tenant, facility) pair is already
// provisioned.
type FacilityExistsError struct {
	TenantID   string
	FacilityID string
}

func (e *FacilityExistsError) Error() string {
	return fmt.Sprintf("facility %q already exists for tenant %q", e.FacilityID, e.TenantID)
}

// InvalidStatusError is returned when a spot status value is not one of the
// supported states.
type InvalidStatusError struct {
	Status SpotStatus
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("spot status %q is not supported", e.Status)
}

// PhaseTransitionError is returned when a ticket lifecycle event is not
// allowed from the ticket's current phase.
type PhaseTransitionError struct {
	Event   PhaseEvent
	Current Phase
}

func (e *PhaseTransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from phase %q", e.Event, e.Current)
}
