package app

import (
	"context"
	"fmt"
	"time"

	"github.com/parkiq/parkiq/internal/domain"
)

// TicketService owns the ticket lifecycle: issuance, payment recording,
// duration and fee queries, and exit processing.
type TicketService struct {
	repo      domain.FacilityRepository
	publisher domain.EventPublisher
	phases    domain.PhaseValidator
}

// NewTicketService creates a service with the given adapters.
func NewTicketService(repo domain.FacilityRepository, publisher domain.EventPublisher, phases domain.PhaseValidator) *TicketService {
	return &TicketService{
		repo:      repo,
		publisher: publisher,
		phases:    phases,
	}
}

// Issue gates entry on live capacity and appends a fresh ticket to the
// facility's live list. The occupancy increment and the list append commit
// together; concurrent calls on the same facility are serialized by the
// repository, so the capacity check cannot be overtaken by a lost update.
func (s *TicketService) Issue(ctx context.Context, key domain.FacilityKey, now time.Time) (domain.Ticket, error) {
	var issued domain.Ticket

	_, err := s.repo.Mutate(ctx, key, func(agg *domain.Aggregate) error {
		f := &agg.Facility
		if f.CurrentOccupancy >= f.MaxCapacity {
			return domain.ErrCapacityExceeded
		}

		number := newTicketNumber()
		if f.FindTicket(number) != nil {
			return domain.ErrDuplicateTicket
		}

		issued = domain.NewTicket(number, now)
		f.Tickets = append(f.Tickets, issued)
		f.CurrentOccupancy++
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventTicketIssued, key, issued.TicketNumber); err != nil {
		return domain.Ticket{}, fmt.Errorf("publishing issue event: %w", err)
	}

	return issued, nil
}

// RecordPayment appends a payment timestamp to the ticket, opening a fresh
// grace window.
func (s *TicketService) RecordPayment(ctx context.Context, key domain.FacilityKey, ticketNumber string, now time.Time) (domain.Ticket, error) {
	var paid domain.Ticket

	_, err := s.repo.Mutate(ctx, key, func(agg *domain.Aggregate) error {
		ticket := agg.Facility.FindTicket(ticketNumber)
		if ticket == nil {
			if agg.History.Contains(ticketNumber) {
				return domain.ErrAlreadyExited
			}
			return domain.ErrTicketNotFound
		}

		phase := ticket.PhaseAt(now)
		if _, err := s.phases.Apply(ctx, phase, domain.EventPay); err != nil {
			if phase == domain.PhaseCompleted {
				return domain.ErrAlreadyExited
			}
			return err
		}

		ticket.PayedAt = append(ticket.PayedAt, now)
		paid = *ticket
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventPaymentRecorded, key, ticketNumber); err != nil {
		return domain.Ticket{}, fmt.Errorf("publishing payment event: %w", err)
	}

	return paid, nil
}

// Duration returns the chargeable duration in minutes for a live ticket at
// the given instant.
func (s *TicketService) Duration(ctx context.Context, key domain.FacilityKey, ticketNumber string, now time.Time) (float64, error) {
	ticket, _, err := s.findLive(ctx, key, ticketNumber)
	if err != nil {
		return 0, err
	}
	return ticket.DurationAt(now), nil
}

// Fee returns the fee owed for a live ticket at the given instant, under the
// facility's per-minute rate. The duration is computed once inside this call;
// it is not guaranteed to match a separate Duration call made against a
// later now.
func (s *TicketService) Fee(ctx context.Context, key domain.FacilityKey, ticketNumber string, now time.Time) (float64, error) {
	ticket, facility, err := s.findLive(ctx, key, ticketNumber)
	if err != nil {
		return 0, err
	}
	return ticket.FeeAt(facility.PricePerMinute, now), nil
}

// ProcessExit retires a ticket: it validates that the car is inside the
// post-payment grace window, stamps the exit time, appends the completed
// snapshot to the facility's history record, removes the live ticket, and
// decrements occupancy (floored at zero). All of it commits as one atomic
// unit keyed by the ticket number, so a retried exit after a partial failure
// cannot double-append to history or double-decrement occupancy.
func (s *TicketService) ProcessExit(ctx context.Context, key domain.FacilityKey, ticketNumber string, now time.Time) (domain.Ticket, error) {
	var completed domain.Ticket

	_, err := s.repo.Mutate(ctx, key, func(agg *domain.Aggregate) error {
		ticket := agg.Facility.FindTicket(ticketNumber)
		if ticket == nil {
			if agg.History.Contains(ticketNumber) {
				return domain.ErrAlreadyExited
			}
			return domain.ErrTicketNotFound
		}

		phase := ticket.PhaseAt(now)
		if _, err := s.phases.Apply(ctx, phase, domain.EventExit); err != nil {
			if phase == domain.PhaseCompleted {
				return domain.ErrAlreadyExited
			}
			return domain.ErrOpenPayment
		}

		completed = ticket.Completed(now)
		agg.History.Entries = append(agg.History.Entries, completed)
		agg.Facility.RemoveTicket(ticketNumber)
		if agg.Facility.CurrentOccupancy > 0 {
			agg.Facility.CurrentOccupancy--
		}
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventExitProcessed, key, ticketNumber); err != nil {
		return domain.Ticket{}, fmt.Errorf("publishing exit event: %w", err)
	}

	return completed, nil
}

func (s *TicketService) findLive(ctx context.Context, key domain.FacilityKey, ticketNumber string) (domain.Ticket, domain.Facility, error) {
	facility, err := s.repo.Get(ctx, key)
	if err != nil {
		return domain.Ticket{}, domain.Facility{}, err
	}

	ticket := facility.FindTicket(ticketNumber)
	if ticket == nil {
		return domain.Ticket{}, domain.Facility{}, domain.ErrTicketNotFound
	}

	return *ticket, facility, nil
}
