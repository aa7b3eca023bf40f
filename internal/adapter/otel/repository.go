package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/parkiq/parkiq/internal/domain"
)

const tracerName = "github.com/parkiq/parkiq/internal/adapter/otel"

// TracingRepository wraps a domain.FacilityRepository with OpenTelemetry
// tracing. Each method creates a span with semantic attributes and records
// errors.
type TracingRepository struct {
	next   domain.FacilityRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.FacilityRepository.
var _ domain.FacilityRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.FacilityRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Create(ctx context.Context, facility domain.Facility) error {
	ctx, span := r.tracer.Start(ctx, "FacilityRepository.Create",
		trace.WithAttributes(
			attribute.String("facility.tenant_id", facility.TenantID),
			attribute.String("facility.id", facility.FacilityID),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, facility)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) Get(ctx context.Context, key domain.FacilityKey) (domain.Facility, error) {
	ctx, span := r.tracer.Start(ctx, "FacilityRepository.Get",
		trace.WithAttributes(
			attribute.String("facility.tenant_id", key.TenantID),
			attribute.String("facility.id", key.FacilityID),
		),
	)
	defer span.End()

	facility, err := r.next.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return facility, err
}

func (r *TracingRepository) GetHistory(ctx context.Context, key domain.FacilityKey) (domain.HistoryRecord, error) {
	ctx, span := r.tracer.Start(ctx, "FacilityRepository.GetHistory",
		trace.WithAttributes(
			attribute.String("facility.tenant_id", key.TenantID),
			attribute.String("facility.id", key.FacilityID),
		),
	)
	defer span.End()

	record, err := r.next.GetHistory(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.entries", len(record.Entries)))
	}
	return record, err
}

func (r *TracingRepository) Mutate(ctx context.Context, key domain.FacilityKey, fn func(agg *domain.Aggregate) error) (domain.Aggregate, error) {
	ctx, span := r.tracer.Start(ctx, "FacilityRepository.Mutate",
		trace.WithAttributes(
			attribute.String("facility.tenant_id", key.TenantID),
			attribute.String("facility.id", key.FacilityID),
		),
	)
	defer span.End()

	agg, err := r.next.Mutate(ctx, key, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("facility.occupancy", agg.Facility.CurrentOccupancy))
	}
	return agg, err
}
