package app

import (
	"context"
	"fmt"

	"github.com/parkiq/parkiq/internal/domain"
)

// FacilityService owns facility provisioning, lookup, and spot status
// management.
type FacilityService struct {
	repo      domain.FacilityRepository
	publisher domain.EventPublisher
}

// NewFacilityService creates a service with the given adapters.
func NewFacilityService(repo domain.FacilityRepository, publisher domain.EventPublisher) *FacilityService {
	return &FacilityService{
		repo:      repo,
		publisher: publisher,
	}
}

// Create provisions a facility with the given floor layout and an empty
// paired history record. floorSpotCounts[i] is the number of spots on floor
// i+1. maxCapacity is persisted as supplied, even when it disagrees with the
// generated layout; only spot closures adjust it afterwards.
func (s *FacilityService) Create(ctx context.Context, tenantID, facilityID string, floorSpotCounts []int, pricePerMinute float64, maxCapacity int) (domain.Facility, error) {
	facility := domain.NewFacility(tenantID, facilityID, floorSpotCounts, pricePerMinute, maxCapacity)

	if err := s.repo.Create(ctx, facility); err != nil {
		return domain.Facility{}, fmt.Errorf("creating facility: %w", err)
	}

	if err := s.publisher.Publish(ctx, domain.EventFacilityCreated, facility.Key(), ""); err != nil {
		return domain.Facility{}, fmt.Errorf("publishing creation event: %w", err)
	}

	return facility, nil
}

// Get returns the facility identified by the key.
func (s *FacilityService) Get(ctx context.Context, key domain.FacilityKey) (domain.Facility, error) {
	return s.repo.Get(ctx, key)
}

// SetSpotStatus transitions a spot to the requested status, adjusting the
// facility's capacity as a side effect. The spot table and capacity are
// persisted together in one write.
func (s *FacilityService) SetSpotStatus(ctx context.Context, key domain.FacilityKey, spotID string, status domain.SpotStatus) (domain.Facility, error) {
	agg, err := s.repo.Mutate(ctx, key, func(agg *domain.Aggregate) error {
		return agg.Facility.ApplySpotStatus(spotID, status)
	})
	if err != nil {
		return domain.Facility{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventSpotStatusChanged, key, spotID); err != nil {
		return domain.Facility{}, fmt.Errorf("publishing spot event: %w", err)
	}

	return agg.Facility, nil
}

// SetSpotOccupied is the legacy boolean variant: it routes through the same
// transition table with the Closed state never involved.
func (s *FacilityService) SetSpotOccupied(ctx context.Context, key domain.FacilityKey, spotID string, occupied bool) (domain.Facility, error) {
	status := domain.SpotFree
	if occupied {
		status = domain.SpotOccupied
	}
	return s.SetSpotStatus(ctx, key, spotID, status)
}
