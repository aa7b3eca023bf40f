package domain

// HistoryRecord is the append-only archive of completed parking sessions for
// one facility, used exclusively for reporting. Every entry has
// ParkingEndedAt set. Entries are never edited or deleted once appended;
// the store enforces this by persisting them as insert-only rows keyed by
// ticket number.
type HistoryRecord struct {
	TenantID   string
	FacilityID string
	Entries    []Ticket
}

// NewHistoryRecord creates the empty history record paired with a facility.
func NewHistoryRecord(tenantID, facilityID string) HistoryRecord {
	return HistoryRecord{TenantID: tenantID, FacilityID: facilityID}
}

// Contains reports whether a completed session with the given ticket number
// has been archived.
func (h HistoryRecord) Contains(ticketNumber string) bool {
	for i := range h.Entries {
		if h.Entries[i].TicketNumber == ticketNumber {
			return true
		}
	}
	return false
}
