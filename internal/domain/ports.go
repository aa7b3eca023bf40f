package domain

import "context"

// FacilityKey identifies one facility aggregate. All mutations scoped to the
// same key are serialized by the repository; different keys proceed in
// parallel.
type FacilityKey struct {
	TenantID   string
	FacilityID string
}

// Aggregate pairs a facility with its history record for atomic mutation.
// History entries beyond those loaded are treated as appends; existing
// entries must not be modified.
type Aggregate struct {
	Facility Facility
	History  HistoryRecord
}

// FacilityRepository defines the persistence contract for facility
// aggregates and their paired history records.
type FacilityRepository interface {
	// Create persists a new facility together with its empty history
	// record. Returns FacilityExistsError if the key is taken.
	Create(ctx context.Context, facility Facility) error

	// Get returns the facility for the key, or ErrFacilityNotFound.
	Get(ctx context.Context, key FacilityKey) (Facility, error)

	// GetHistory returns the facility's history record, or
	// ErrFacilityNotFound if the facility itself is absent.
	GetHistory(ctx context.Context, key FacilityKey) (HistoryRecord, error)

	// Mutate loads the aggregate, applies fn, and persists the facility and
	// any newly appended history entries as one atomic unit. On concurrent
	// modification the load-apply-commit cycle is retried a bounded number
	// of times before ErrConflict surfaces. If fn returns an error nothing
	// is written and the error is returned unchanged.
	Mutate(ctx context.Context, key FacilityKey, fn func(agg *Aggregate) error) (Aggregate, error)
}

// Event identifies a domain event emitted after a successful state change.
type Event string

const (
	EventFacilityCreated   Event = "facility.created"
	EventSpotStatusChanged Event = "spot.status_changed"
	EventTicketIssued      Event = "ticket.issued"
	EventPaymentRecorded   Event = "payment.recorded"
	EventExitProcessed     Event = "exit.processed"
)

// EventPublisher defines the contract for emitting domain events. Subject is
// the ticket number or spot id the event concerns, empty for facility-level
// events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, key FacilityKey, subject string) error
}

// PhaseValidator validates ticket lifecycle events against the phase
// machine defined by PhaseTransitions.
type PhaseValidator interface {
	Apply(ctx context.Context, current Phase, event PhaseEvent) (Phase, error)
}
