package app

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/parkiq/parkiq/internal/domain"
)

// StatsService aggregates the facility's history record and live state into
// reports. It never writes; every report takes its inputs from one snapshot
// read.
type StatsService struct {
	repo domain.FacilityRepository
}

// NewStatsService creates a service with the given repository.
func NewStatsService(repo domain.FacilityRepository) *StatsService {
	return &StatsService{repo: repo}
}

// StatsRange bounds a report to the closed interval [Start, End].
type StatsRange struct {
	Start time.Time
	End   time.Time
}

func (r StatsRange) contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// DayUsage is one calendar day's entry/exit tally.
type DayUsage struct {
	Date                time.Time
	Entries             int
	Exits               int
	OccupancyPercentage float64
}

// FloorReport is the live occupancy snapshot of one floor.
type FloorReport struct {
	FloorNumber         int
	TotalSpots          int
	OccupiedSpots       int
	AvailableSpots      int
	OccupancyPercentage float64
}

// DurationReport summarizes stay lengths within a range.
type DurationReport struct {
	AverageDuration float64
	ShortStays      int // under 2 hours
	MediumStays     int // 2 to 6 hours inclusive
	LongStays       int // over 6 hours
}

// DayRevenue is one calendar day's revenue line. Amount reproduces the
// established report semantics: the sum of elapsed minutes, not minutes
// times the facility rate. PricedAmount applies the rate; both are reported
// side by side until product decides which one billing uses.
type DayRevenue struct {
	Date         time.Time
	Amount       float64
	PricedAmount float64
}

// RevenueReport totals the per-day lines across a range.
type RevenueReport struct {
	Days         []DayRevenue
	TotalRevenue float64
	TotalPriced  float64
}

// DailyUsage buckets history entries by the UTC calendar day they started,
// within the range. Exits count toward the day they ended, but only when
// that day already has an entry bucket.
func (s *StatsService) DailyUsage(ctx context.Context, key domain.FacilityKey, r StatsRange) ([]DayUsage, error) {
	facility, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.GetHistory(ctx, key)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*DayUsage)
	for _, entry := range history.Entries {
		if !r.contains(entry.ParkingStartedAt) {
			continue
		}
		day := utcDate(entry.ParkingStartedAt)
		if buckets[day] == nil {
			buckets[day] = &DayUsage{Date: day}
		}
		buckets[day].Entries++
	}

	for _, entry := range history.Entries {
		if entry.ParkingEndedAt == nil {
			continue
		}
		day := utcDate(*entry.ParkingEndedAt)
		if b := buckets[day]; b != nil {
			b.Exits++
		}
	}

	out := make([]DayUsage, 0, len(buckets))
	for _, b := range buckets {
		if facility.MaxCapacity > 0 {
			b.OccupancyPercentage = round2(float64(b.Entries) / float64(facility.MaxCapacity) * 100)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	return out, nil
}

// FloorStats reports the live per-floor occupancy snapshot. TotalSpots
// excludes closed spots; AvailableSpots subtracts the closed count from that
// total once more, reproducing the established report semantics pending
// product sign-off.
func (s *StatsService) FloorStats(ctx context.Context, key domain.FacilityKey) ([]FloorReport, error) {
	facility, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]FloorReport, 0, len(facility.Floors))
	for _, floor := range facility.Floors {
		occupied, closed := 0, 0
		for _, spot := range floor.Spots {
			switch spot.Status {
			case domain.SpotOccupied:
				occupied++
			case domain.SpotClosed:
				closed++
			}
		}

		total := len(floor.Spots) - closed
		report := FloorReport{
			FloorNumber:    floor.Number,
			TotalSpots:     total,
			OccupiedSpots:  occupied,
			AvailableSpots: total - occupied - closed,
		}
		if total > 0 {
			report.OccupancyPercentage = math.Ceil(float64(occupied) / float64(total) * 100)
		}
		out = append(out, report)
	}

	return out, nil
}

// DurationStats averages and buckets stay lengths over the range. Each stay
// is clamped to the range first, so a car parked across the boundary only
// contributes the overlapping portion; stays with no overlap are discarded.
// Still-parked cars would never reach history, so every entry has an end
// time, but the open-ended fallback to now is kept for snapshots read
// mid-exit.
func (s *StatsService) DurationStats(ctx context.Context, key domain.FacilityKey, r StatsRange, now time.Time) (DurationReport, error) {
	history, err := s.repo.GetHistory(ctx, key)
	if err != nil {
		return DurationReport{}, err
	}

	var report DurationReport
	var sum float64
	count := 0

	for _, entry := range history.Entries {
		overlap := clampedMinutes(entry, r, now)
		if overlap <= 0 {
			continue
		}

		sum += overlap
		count++

		switch {
		case overlap < 120:
			report.ShortStays++
		case overlap <= 360:
			report.MediumStays++
		default:
			report.LongStays++
		}
	}

	if count > 0 {
		report.AverageDuration = sum / float64(count)
	}

	return report, nil
}

// RevenueStats sums stay minutes per calendar day of entry within the range.
func (s *StatsService) RevenueStats(ctx context.Context, key domain.FacilityKey, r StatsRange, now time.Time) (RevenueReport, error) {
	facility, err := s.repo.Get(ctx, key)
	if err != nil {
		return RevenueReport{}, err
	}
	history, err := s.repo.GetHistory(ctx, key)
	if err != nil {
		return RevenueReport{}, err
	}

	buckets := make(map[time.Time]float64)
	for _, entry := range history.Entries {
		if !r.contains(entry.ParkingStartedAt) {
			continue
		}
		ended := now
		if entry.ParkingEndedAt != nil {
			ended = *entry.ParkingEndedAt
		}
		day := utcDate(entry.ParkingStartedAt)
		buckets[day] += domain.MinutesBetween(entry.ParkingStartedAt, ended)
	}

	var report RevenueReport
	report.Days = make([]DayRevenue, 0, len(buckets))
	for day, minutes := range buckets {
		line := DayRevenue{
			Date:         day,
			Amount:       minutes,
			PricedAmount: minutes * facility.PricePerMinute,
		}
		report.Days = append(report.Days, line)
		report.TotalRevenue += line.Amount
		report.TotalPriced += line.PricedAmount
	}
	sort.Slice(report.Days, func(i, j int) bool { return report.Days[i].Date.Before(report.Days[j].Date) })

	return report, nil
}

// clampedMinutes is the portion of a stay overlapping the range, in minutes.
func clampedMinutes(entry domain.Ticket, r StatsRange, now time.Time) float64 {
	ended := now
	if entry.ParkingEndedAt != nil {
		ended = *entry.ParkingEndedAt
	}

	start := clampTime(entry.ParkingStartedAt, r)
	end := clampTime(ended, r)
	return domain.MinutesBetween(start, end)
}

func clampTime(t time.Time, r StatsRange) time.Time {
	if t.Before(r.Start) {
		return r.Start
	}
	if t.After(r.End) {
		return r.End
	}
	return t
}

func utcDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
