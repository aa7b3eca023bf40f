package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/parkiq/parkiq/internal/adapter/otel"
	"github.com/parkiq/parkiq/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

// --- Mock repository ---

type mockRepo struct {
	aggs map[domain.FacilityKey]*domain.Aggregate
}

func newMockRepo() *mockRepo {
	return &mockRepo{aggs: make(map[domain.FacilityKey]*domain.Aggregate)}
}

func (m *mockRepo) Create(_ context.Context, f domain.Facility) error {
	m.aggs[f.Key()] = &domain.Aggregate{
		Facility: f,
		History:  domain.NewHistoryRecord(f.TenantID, f.FacilityID),
	}
	return nil
}

func (m *mockRepo) Get(_ context.Context, key domain.FacilityKey) (domain.Facility, error) {
	agg, ok := m.aggs[key]
	if !ok {
		return domain.Facility{}, domain.ErrFacilityNotFound
	}
	return agg.Facility, nil
}

func (m *mockRepo) GetHistory(_ context.Context, key domain.FacilityKey) (domain.HistoryRecord, error) {
	agg, ok := m.aggs[key]
	if !ok {
		return domain.HistoryRecord{}, domain.ErrFacilityNotFound
	}
	return agg.History, nil
}

func (m *mockRepo) Mutate(_ context.Context, key domain.FacilityKey, fn func(agg *domain.Aggregate) error) (domain.Aggregate, error) {
	agg, ok := m.aggs[key]
	if !ok {
		return domain.Aggregate{}, domain.ErrFacilityNotFound
	}
	if err := fn(agg); err != nil {
		return domain.Aggregate{}, err
	}
	return *agg, nil
}

// --- Tests ---

func TestTracingRepository_Create_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	facility := domain.NewFacility("acme", "garage-1", []int{5}, 0.05, 5)
	if err := repo.Create(context.Background(), facility); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "FacilityRepository.Create" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "FacilityRepository.Create")
	}

	assertAttribute(t, spans[0], "facility.tenant_id", "acme")
	assertAttribute(t, spans[0], "facility.id", "garage-1")
}

func TestTracingRepository_Get_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	facility := domain.NewFacility("acme", "garage-1", []int{5}, 0.05, 5)
	_ = inner.Create(context.Background(), facility)

	got, err := repo.Get(context.Background(), facility.Key())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FacilityID != "garage-1" {
		t.Errorf("FacilityID = %q, want %q", got.FacilityID, "garage-1")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "FacilityRepository.Get" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "FacilityRepository.Get")
	}
}

func TestTracingRepository_Get_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	_, err := repo.Get(context.Background(), domain.FacilityKey{TenantID: "none", FacilityID: "none"})
	if !errors.Is(err, domain.ErrFacilityNotFound) {
		t.Fatalf("expected ErrFacilityNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}

	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestTracingRepository_GetHistory_RecordsEntryCount(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	facility := domain.NewFacility("acme", "garage-1", []int{5}, 0.05, 5)
	_ = inner.Create(context.Background(), facility)
	agg := inner.aggs[facility.Key()]
	agg.History.Entries = append(agg.History.Entries, domain.Ticket{TicketNumber: "tk-1"}, domain.Ticket{TicketNumber: "tk-2"})

	record, err := repo.GetHistory(context.Background(), facility.Key())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(record.Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(record.Entries))
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	assertAttribute(t, spans[0], "result.entries", "2")
}

func TestTracingRepository_Mutate_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	facility := domain.NewFacility("acme", "garage-1", []int{5}, 0.05, 5)
	_ = inner.Create(context.Background(), facility)

	agg, err := repo.Mutate(context.Background(), facility.Key(), func(agg *domain.Aggregate) error {
		agg.Facility.CurrentOccupancy = 3
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Facility.CurrentOccupancy != 3 {
		t.Errorf("CurrentOccupancy = %d, want 3", agg.Facility.CurrentOccupancy)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "FacilityRepository.Mutate" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "FacilityRepository.Mutate")
	}

	assertAttribute(t, spans[0], "facility.occupancy", "3")
}

func TestTracingRepository_Mutate_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingRepository(inner)

	facility := domain.NewFacility("acme", "garage-1", []int{5}, 0.05, 5)
	_ = inner.Create(context.Background(), facility)

	_, err := repo.Mutate(context.Background(), facility.Key(), func(agg *domain.Aggregate) error {
		return domain.ErrCapacityExceeded
	})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
