package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/parkiq/parkiq/internal/app"
	"github.com/parkiq/parkiq/internal/domain"
)

// SpotResponse is the API representation of one parking spot.
type SpotResponse struct {
	ID     string `json:"id" doc:"Floor-scoped spot identifier"`
	Status string `json:"status" doc:"Spot state" enum:"free,occupied,closed"`
}

// FloorResponse is the API representation of one facility floor.
type FloorResponse struct {
	Number int            `json:"number" doc:"Floor number (1-based)"`
	Spots  []SpotResponse `json:"spots" doc:"Spots on this floor"`
}

// FacilityResponse is the API representation of a facility.
type FacilityResponse struct {
	TenantID         string          `json:"tenant_id" doc:"Owning tenant"`
	FacilityID       string          `json:"facility_id" doc:"Facility identifier, unique per tenant"`
	Floors           []FloorResponse `json:"floors" doc:"Spot layout"`
	MaxCapacity      int             `json:"max_capacity" doc:"Number of spots open for parking"`
	CurrentOccupancy int             `json:"current_occupancy" doc:"Currently parked cars"`
	PricePerMinute   float64         `json:"price_per_minute" doc:"Billing rate"`
	CreatedAt        string          `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt        string          `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toFacilityResponse(f domain.Facility) FacilityResponse {
	floors := make([]FloorResponse, len(f.Floors))
	for i, fl := range f.Floors {
		spots := make([]SpotResponse, len(fl.Spots))
		for j, sp := range fl.Spots {
			spots[j] = SpotResponse{ID: sp.ID, Status: string(sp.Status)}
		}
		floors[i] = FloorResponse{Number: fl.Number, Spots: spots}
	}
	return FacilityResponse{
		TenantID:         f.TenantID,
		FacilityID:       f.FacilityID,
		Floors:           floors,
		MaxCapacity:      f.MaxCapacity,
		CurrentOccupancy: f.CurrentOccupancy,
		PricePerMinute:   f.PricePerMinute,
		CreatedAt:        f.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:        f.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// TicketResponse is the API representation of a parking ticket.
type TicketResponse struct {
	TicketNumber     string   `json:"ticket_number" doc:"Unique ticket identifier"`
	ParkingStartedAt string   `json:"parking_started_at" doc:"Entry timestamp (ISO 8601)"`
	ParkingEndedAt   string   `json:"parking_ended_at,omitempty" doc:"Exit timestamp, empty while parked"`
	Payments         []string `json:"payments" doc:"Payment timestamps, oldest first"`
	Phase            string   `json:"phase" doc:"Lifecycle phase" enum:"active,paid_within_grace,paid_expired,completed"`
}

func toTicketResponse(t domain.Ticket, now time.Time) TicketResponse {
	payments := make([]string, len(t.PayedAt))
	for i, p := range t.PayedAt {
		payments[i] = p.Format(time.RFC3339Nano)
	}
	resp := TicketResponse{
		TicketNumber:     t.TicketNumber,
		ParkingStartedAt: t.ParkingStartedAt.Format(time.RFC3339Nano),
		Payments:         payments,
		Phase:            string(t.PhaseAt(now)),
	}
	if t.ParkingEndedAt != nil {
		resp.ParkingEndedAt = t.ParkingEndedAt.Format(time.RFC3339Nano)
	}
	return resp
}

// --- Create Facility ---

type CreateFacilityInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
	Body     struct {
		FacilityID      string  `json:"facility_id" minLength:"1" maxLength:"100" doc:"Facility identifier, unique per tenant"`
		FloorSpotCounts []int   `json:"floor_spot_counts" minItems:"1" doc:"Spots per floor, index 0 is floor 1"`
		PricePerMinute  float64 `json:"price_per_minute" minimum:"0" doc:"Billing rate"`
		MaxCapacity     int     `json:"max_capacity" minimum:"0" doc:"Concurrent parking limit"`
	}
}

type CreateFacilityOutput struct {
	Body FacilityResponse
}

// --- Get Facility ---

type GetFacilityInput struct {
	TenantID   string `path:"tenantId" doc:"Tenant ID"`
	FacilityID string `path:"facilityId" doc:"Facility ID"`
}

type GetFacilityOutput struct {
	Body FacilityResponse
}

// --- Set Spot Status ---

type SetSpotStatusInput struct {
	TenantID   string `path:"tenantId" doc:"Tenant ID"`
	FacilityID string `path:"facilityId" doc:"Facility ID"`
	SpotID     string `path:"spotId" doc:"Spot ID"`
	Body       struct {
		Status   string `json:"status,omitempty" doc:"Target state: free, occupied or closed"`
		Occupied *bool  `json:"occupied,omitempty" doc:"Legacy toggle; maps true to occupied, false to free"`
	}
}

type SetSpotStatusOutput struct {
	Body FacilityResponse
}

// --- Issue Ticket ---

type IssueTicketInput struct {
	TenantID   string `path:"tenantId" doc:"Tenant ID"`
	FacilityID string `path:"facilityId" doc:"Facility ID"`
}

type IssueTicketOutput struct {
	Body TicketResponse
}

// --- Ticket operations ---

type TicketRefInput struct {
	TenantID     string `path:"tenantId" doc:"Tenant ID"`
	FacilityID   string `path:"facilityId" doc:"Facility ID"`
	TicketNumber string `path:"ticketNumber" doc:"Ticket number"`
}

type RecordPaymentOutput struct {
	Body TicketResponse
}

type DurationOutput struct {
	Body struct {
		TicketNumber    string  `json:"ticket_number"`
		DurationMinutes float64 `json:"duration_minutes" doc:"Chargeable minutes at the time of the request"`
	}
}

type FeeOutput struct {
	Body struct {
		TicketNumber string  `json:"ticket_number"`
		Fee          float64 `json:"fee" doc:"Chargeable amount at the time of the request"`
	}
}

type ExitOutput struct {
	Body TicketResponse
}

// --- Stats ---

type StatsInput struct {
	TenantID   string `path:"tenantId" doc:"Tenant ID"`
	FacilityID string `path:"facilityId" doc:"Facility ID"`
	Report     string `path:"report" doc:"Report kind" enum:"daily,floor,duration,revenue"`
	Start      string `query:"start" required:"false" doc:"Range start (RFC 3339), required except for floor"`
	End        string `query:"end" required:"false" doc:"Range end (RFC 3339), required except for floor"`
}

type DayUsageResponse struct {
	Date                string  `json:"date" doc:"UTC calendar day"`
	Entries             int     `json:"entries"`
	Exits               int     `json:"exits"`
	OccupancyPercentage float64 `json:"occupancy_percentage"`
}

type FloorReportResponse struct {
	FloorNumber         int     `json:"floor_number"`
	TotalSpots          int     `json:"total_spots"`
	OccupiedSpots       int     `json:"occupied_spots"`
	AvailableSpots      int     `json:"available_spots"`
	OccupancyPercentage float64 `json:"occupancy_percentage"`
}

type DurationReportResponse struct {
	AverageDuration float64 `json:"average_duration" doc:"Mean stay length in minutes"`
	ShortStays      int     `json:"short_stays" doc:"Stays under 2 hours"`
	MediumStays     int     `json:"medium_stays" doc:"Stays between 2 and 6 hours"`
	LongStays       int     `json:"long_stays" doc:"Stays over 6 hours"`
}

type DayRevenueResponse struct {
	Date         string  `json:"date" doc:"UTC calendar day"`
	Amount       float64 `json:"amount" doc:"Elapsed minutes summed for the day"`
	PricedAmount float64 `json:"priced_amount" doc:"Amount multiplied by the facility rate"`
}

type RevenueReportResponse struct {
	Days         []DayRevenueResponse `json:"days"`
	TotalRevenue float64              `json:"total_revenue"`
	TotalPriced  float64              `json:"total_priced"`
}

type StatsOutput struct {
	Body struct {
		Report   string                  `json:"report" enum:"daily,floor,duration,revenue"`
		Daily    []DayUsageResponse      `json:"daily,omitempty"`
		Floors   []FloorReportResponse   `json:"floors,omitempty"`
		Duration *DurationReportResponse `json:"duration,omitempty"`
		Revenue  *RevenueReportResponse  `json:"revenue,omitempty"`
	}
}

const dateFormat = "2006-01-02"

// Register adds all facility and ticket API routes to the Huma API.
func Register(api huma.API, facilities *app.FacilityService, tickets *app.TicketService, stats *app.StatsService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-facility",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantId}/facilities",
		Summary:     "Create a new parking facility",
		Tags:        []string{"Facilities"},
	}, func(ctx context.Context, input *CreateFacilityInput) (*CreateFacilityOutput, error) {
		facility, err := facilities.Create(ctx, input.TenantID, input.Body.FacilityID,
			input.Body.FloorSpotCounts, input.Body.PricePerMinute, input.Body.MaxCapacity)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateFacilityOutput{Body: toFacilityResponse(facility)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-facility",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}",
		Summary:     "Get a facility by ID",
		Tags:        []string{"Facilities"},
	}, func(ctx context.Context, input *GetFacilityInput) (*GetFacilityOutput, error) {
		facility, err := facilities.Get(ctx, domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetFacilityOutput{Body: toFacilityResponse(facility)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-spot-status",
		Method:      http.MethodPut,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/spots/{spotId}",
		Summary:     "Set the state of a parking spot",
		Tags:        []string{"Facilities"},
	}, func(ctx context.Context, input *SetSpotStatusInput) (*SetSpotStatusOutput, error) {
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}

		var facility domain.Facility
		var err error
		switch {
		case input.Body.Status != "":
			facility, err = facilities.SetSpotStatus(ctx, key, input.SpotID, domain.SpotStatus(input.Body.Status))
		case input.Body.Occupied != nil:
			facility, err = facilities.SetSpotOccupied(ctx, key, input.SpotID, *input.Body.Occupied)
		default:
			return nil, huma.Error422UnprocessableEntity("either status or occupied must be provided")
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &SetSpotStatusOutput{Body: toFacilityResponse(facility)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-ticket",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/tickets",
		Summary:     "Issue a ticket for an entering car",
		Tags:        []string{"Tickets"},
	}, func(ctx context.Context, input *IssueTicketInput) (*IssueTicketOutput, error) {
		now := time.Now().UTC()
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}
		ticket, err := tickets.Issue(ctx, key, now)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &IssueTicketOutput{Body: toTicketResponse(ticket, now)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-payment",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/tickets/{ticketNumber}/payments",
		Summary:     "Record a payment against a ticket",
		Tags:        []string{"Tickets"},
	}, func(ctx context.Context, input *TicketRefInput) (*RecordPaymentOutput, error) {
		now := time.Now().UTC()
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}
		ticket, err := tickets.RecordPayment(ctx, key, input.TicketNumber, now)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordPaymentOutput{Body: toTicketResponse(ticket, now)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket-duration",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/tickets/{ticketNumber}/duration",
		Summary:     "Get the chargeable duration of a ticket",
		Tags:        []string{"Tickets"},
	}, func(ctx context.Context, input *TicketRefInput) (*DurationOutput, error) {
		now := time.Now().UTC()
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}
		minutes, err := tickets.Duration(ctx, key, input.TicketNumber, now)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &DurationOutput{}
		out.Body.TicketNumber = input.TicketNumber
		out.Body.DurationMinutes = minutes
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket-fee",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/tickets/{ticketNumber}/fee",
		Summary:     "Get the current fee of a ticket",
		Tags:        []string{"Tickets"},
	}, func(ctx context.Context, input *TicketRefInput) (*FeeOutput, error) {
		now := time.Now().UTC()
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}
		fee, err := tickets.Fee(ctx, key, input.TicketNumber, now)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &FeeOutput{}
		out.Body.TicketNumber = input.TicketNumber
		out.Body.Fee = fee
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-exit",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/tickets/{ticketNumber}/exit",
		Summary:     "Process a car's exit",
		Tags:        []string{"Tickets"},
	}, func(ctx context.Context, input *TicketRefInput) (*ExitOutput, error) {
		now := time.Now().UTC()
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}
		ticket, err := tickets.ProcessExit(ctx, key, input.TicketNumber, now)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ExitOutput{Body: toTicketResponse(ticket, now)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-facility-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantId}/facilities/{facilityId}/stats/{report}",
		Summary:     "Get an aggregated facility report",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *StatsInput) (*StatsOutput, error) {
		now := time.Now().UTC()
		key := domain.FacilityKey{TenantID: input.TenantID, FacilityID: input.FacilityID}
		out := &StatsOutput{}
		out.Body.Report = input.Report

		if input.Report == "floor" {
			floors, err := stats.FloorStats(ctx, key)
			if err != nil {
				return nil, toHumaError(err)
			}
			out.Body.Floors = make([]FloorReportResponse, len(floors))
			for i, f := range floors {
				out.Body.Floors[i] = FloorReportResponse{
					FloorNumber:         f.FloorNumber,
					TotalSpots:          f.TotalSpots,
					OccupiedSpots:       f.OccupiedSpots,
					AvailableSpots:      f.AvailableSpots,
					OccupancyPercentage: f.OccupancyPercentage,
				}
			}
			return out, nil
		}

		r, err := parseStatsRange(input.Start, input.End)
		if err != nil {
			return nil, err
		}

		switch input.Report {
		case "daily":
			days, err := stats.DailyUsage(ctx, key, r)
			if err != nil {
				return nil, toHumaError(err)
			}
			out.Body.Daily = make([]DayUsageResponse, len(days))
			for i, d := range days {
				out.Body.Daily[i] = DayUsageResponse{
					Date:                d.Date.Format(dateFormat),
					Entries:             d.Entries,
					Exits:               d.Exits,
					OccupancyPercentage: d.OccupancyPercentage,
				}
			}
		case "duration":
			report, err := stats.DurationStats(ctx, key, r, now)
			if err != nil {
				return nil, toHumaError(err)
			}
			out.Body.Duration = &DurationReportResponse{
				AverageDuration: report.AverageDuration,
				ShortStays:      report.ShortStays,
				MediumStays:     report.MediumStays,
				LongStays:       report.LongStays,
			}
		case "revenue":
			report, err := stats.RevenueStats(ctx, key, r, now)
			if err != nil {
				return nil, toHumaError(err)
			}
			days := make([]DayRevenueResponse, len(report.Days))
			for i, d := range report.Days {
				days[i] = DayRevenueResponse{
					Date:         d.Date.Format(dateFormat),
					Amount:       d.Amount,
					PricedAmount: d.PricedAmount,
				}
			}
			out.Body.Revenue = &RevenueReportResponse{
				Days:         days,
				TotalRevenue: report.TotalRevenue,
				TotalPriced:  report.TotalPriced,
			}
		default:
			return nil, huma.Error422UnprocessableEntity("unknown report: " + input.Report)
		}
		return out, nil
	})
}

// parseStatsRange parses the start/end query parameters of range-bound
// reports. Both are required and must be RFC 3339.
func parseStatsRange(start, end string) (app.StatsRange, error) {
	if start == "" || end == "" {
		return app.StatsRange{}, huma.Error422UnprocessableEntity("start and end query parameters are required")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return app.StatsRange{}, huma.Error422UnprocessableEntity("start must be RFC 3339")
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return app.StatsRange{}, huma.Error422UnprocessableEntity("end must be RFC 3339")
	}
	if e.Before(s) {
		return app.StatsRange{}, huma.Error422UnprocessableEntity("end must not precede start")
	}
	return app.StatsRange{Start: s, End: e}, nil
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrFacilityNotFound),
		errors.Is(err, domain.ErrSpotNotFound),
		errors.Is(err, domain.ErrTicketNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrDuplicateTicket),
		errors.Is(err, domain.ErrAlreadyExited):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, domain.ErrOpenPayment):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, domain.ErrConflict):
		return huma.Error503ServiceUnavailable(err.Error())
	}

	var existsErr *domain.FacilityExistsError
	if errors.As(err, &existsErr) {
		return huma.Error409Conflict(existsErr.Error())
	}

	var statusErr *domain.InvalidStatusError
	if errors.As(err, &statusErr) {
		return huma.Error422UnprocessableEntity(statusErr.Error())
	}

	var phaseErr *domain.PhaseTransitionError
	if errors.As(err, &phaseErr) {
		return huma.Error422UnprocessableEntity(phaseErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
