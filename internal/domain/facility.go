package domain

import (
	"fmt"
	"time"
)

// SpotStatus is the single tagged state of a parking spot. Exactly one of
// the three states holds at any time; legacy boolean views (occupied,
// closed) are derived at the boundary only.
type SpotStatus string

const (
	SpotFree     SpotStatus = "free"
	SpotOccupied SpotStatus = "occupied"
	SpotClosed   SpotStatus = "closed"
)

// ValidSpotStatus reports whether s is one of the supported spot states.
func ValidSpotStatus(s SpotStatus) bool {
	switch s {
	case SpotFree, SpotOccupied, SpotClosed:
		return true
	}
	return false
}

// Spot is an individually addressable parking space on a floor.
// Spot ids are floor-scoped (e.g. "01").
type Spot struct {
	ID     string
	Status SpotStatus
}

// Floor groups the spots of one level of the facility.
type Floor struct {
	Number int
	Spots  []Spot
}

// Facility is the live aggregate for one parking facility: the spot layout,
// capacity bookkeeping, and the list of currently parked cars. MaxCapacity
// tracks the number of non-Closed spots and is mutated only by
// ApplySpotStatus.
type Facility struct {
	TenantID         string
	FacilityID       string
	Floors           []Floor
	MaxCapacity      int
	CurrentOccupancy int
	PricePerMinute   float64
	Tickets          []Ticket
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Key returns the aggregate identity of the facility.
func (f Facility) Key() FacilityKey {
	return FacilityKey{TenantID: f.TenantID, FacilityID: f.FacilityID}
}

// NewFacility builds the floor and spot layout with every spot Free and an
// empty live-ticket list. floorSpotCounts[i] is the number of spots on floor
// i+1. MaxCapacity is taken from the caller as-is; callers that want it to
// match the generated layout pass the sum of floorSpotCounts.
func NewFacility(tenantID, facilityID string, floorSpotCounts []int, pricePerMinute float64, maxCapacity int) Facility {
	now := time.Now().UTC()
	floors := make([]Floor, len(floorSpotCounts))
	for i, count := range floorSpotCounts {
		spots := make([]Spot, count)
		for j := range spots {
			spots[j] = Spot{ID: fmt.Sprintf("%02d", j+1), Status: SpotFree}
		}
		floors[i] = Floor{Number: i + 1, Spots: spots}
	}
	return Facility{
		TenantID:       tenantID,
		FacilityID:     facilityID,
		Floors:         floors,
		MaxCapacity:    maxCapacity,
		PricePerMinute: pricePerMinute,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FindSpot returns the spot with the given id, searching floors in order.
// Spot ids repeat across floors, so the first match wins.
func (f *Facility) FindSpot(spotID string) *Spot {
	for i := range f.Floors {
		for j := range f.Floors[i].Spots {
			if f.Floors[i].Spots[j].ID == spotID {
				return &f.Floors[i].Spots[j]
			}
		}
	}
	return nil
}

// ApplySpotStatus transitions a spot to the requested status and keeps
// MaxCapacity equal to the count of non-Closed spots. Requesting the current
// status is a no-op. Closing a spot never touches CurrentOccupancy; a car
// already on the spot keeps its ticket.
func (f *Facility) ApplySpotStatus(spotID string, requested SpotStatus) error {
	if !ValidSpotStatus(requested) {
		return &InvalidStatusError{Status: requested}
	}

	spot := f.FindSpot(spotID)
	if spot == nil {
		return ErrSpotNotFound
	}

	prior := spot.Status
	if prior == requested {
		return nil
	}

	switch {
	case requested == SpotClosed:
		f.MaxCapacity--
	case prior == SpotClosed:
		f.MaxCapacity++
	}

	spot.Status = requested
	return nil
}

// FindTicket returns the live ticket with the given number, or nil.
func (f *Facility) FindTicket(ticketNumber string) *Ticket {
	for i := range f.Tickets {
		if f.Tickets[i].TicketNumber == ticketNumber {
			return &f.Tickets[i]
		}
	}
	return nil
}

// RemoveTicket deletes the live ticket with the given number.
// It reports whether a ticket was removed.
func (f *Facility) RemoveTicket(ticketNumber string) bool {
	for i := range f.Tickets {
		if f.Tickets[i].TicketNumber == ticketNumber {
			f.Tickets = append(f.Tickets[:i], f.Tickets[i+1:]...)
			return true
		}
	}
	return false
}
