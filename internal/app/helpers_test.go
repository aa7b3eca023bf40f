package app_test

import (
	"context"
	"sync"
	"time"

	"github.com/parkiq/parkiq/internal/domain"
)

// memRepo is an in-memory FacilityRepository. Mutate serializes on a mutex
// and works on deep copies, mirroring the store's snapshot semantics.
type memRepo struct {
	mu   sync.Mutex
	aggs map[domain.FacilityKey]*domain.Aggregate
}

func newMemRepo() *memRepo {
	return &memRepo{aggs: make(map[domain.FacilityKey]*domain.Aggregate)}
}

func (m *memRepo) Create(_ context.Context, f domain.Facility) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := f.Key()
	if _, ok := m.aggs[key]; ok {
		return &domain.FacilityExistsError{TenantID: key.TenantID, FacilityID: key.FacilityID}
	}
	m.aggs[key] = &domain.Aggregate{
		Facility: cloneFacility(f),
		History:  domain.NewHistoryRecord(key.TenantID, key.FacilityID),
	}
	return nil
}

func (m *memRepo) Get(_ context.Context, key domain.FacilityKey) (domain.Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.aggs[key]
	if !ok {
		return domain.Facility{}, domain.ErrFacilityNotFound
	}
	return cloneFacility(agg.Facility), nil
}

func (m *memRepo) GetHistory(_ context.Context, key domain.FacilityKey) (domain.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.aggs[key]
	if !ok {
		return domain.HistoryRecord{}, domain.ErrFacilityNotFound
	}
	return cloneHistory(agg.History), nil
}

func (m *memRepo) Mutate(_ context.Context, key domain.FacilityKey, fn func(agg *domain.Aggregate) error) (domain.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.aggs[key]
	if !ok {
		return domain.Aggregate{}, domain.ErrFacilityNotFound
	}

	working := domain.Aggregate{
		Facility: cloneFacility(stored.Facility),
		History:  cloneHistory(stored.History),
	}
	if err := fn(&working); err != nil {
		return domain.Aggregate{}, err
	}

	m.aggs[key] = &domain.Aggregate{
		Facility: cloneFacility(working.Facility),
		History:  cloneHistory(working.History),
	}
	return working, nil
}

// seed replaces the stored aggregate, bypassing the services. Test setup only.
func (m *memRepo) seed(agg domain.Aggregate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggs[agg.Facility.Key()] = &domain.Aggregate{
		Facility: cloneFacility(agg.Facility),
		History:  cloneHistory(agg.History),
	}
}

func cloneFacility(f domain.Facility) domain.Facility {
	out := f
	out.Floors = make([]domain.Floor, len(f.Floors))
	for i, fl := range f.Floors {
		out.Floors[i] = domain.Floor{Number: fl.Number, Spots: append([]domain.Spot(nil), fl.Spots...)}
	}
	out.Tickets = make([]domain.Ticket, len(f.Tickets))
	for i, t := range f.Tickets {
		out.Tickets[i] = cloneTicket(t)
	}
	return out
}

func cloneHistory(h domain.HistoryRecord) domain.HistoryRecord {
	out := h
	out.Entries = make([]domain.Ticket, len(h.Entries))
	for i, t := range h.Entries {
		out.Entries[i] = cloneTicket(t)
	}
	return out
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	if t.ParkingEndedAt != nil {
		ended := *t.ParkingEndedAt
		out.ParkingEndedAt = &ended
	}
	out.PayedAt = append([]time.Time(nil), t.PayedAt...)
	return out
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	event   domain.Event
	key     domain.FacilityKey
	subject string
}

func (m *mockPublisher) Publish(_ context.Context, e domain.Event, key domain.FacilityKey, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{event: e, key: key, subject: subject})
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockPublisher) last() publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

// tableValidator resolves phase events directly from the transition table.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.Phase, event domain.PhaseEvent) (domain.Phase, error) {
	for _, tr := range domain.PhaseTransitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.PhaseTransitionError{Event: event, Current: current}
}
