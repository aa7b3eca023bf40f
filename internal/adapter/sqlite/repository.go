package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/parkiq/parkiq/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: FacilityRepository implements domain.FacilityRepository.
var _ domain.FacilityRepository = (*FacilityRepository)(nil)

// Mutate retries the load-apply-commit cycle this many times on version
// conflicts before surfacing domain.ErrConflict, and gives up entirely once
// the deadline elapses.
const (
	mutateMaxRetries = 10
	mutateTimeout    = 5 * time.Second
)

// FacilityRepository implements domain.FacilityRepository using SQLite. The
// facility aggregate is stored as one JSON document per row with an integer
// version for optimistic concurrency; completed tickets live in an
// append-only history table keyed by ticket number.
type FacilityRepository struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*FacilityRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY when the database is shared
	// with an embedded job queue (River), and keeps :memory: databases
	// from splitting across pool connections.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*FacilityRepository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &FacilityRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *FacilityRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *FacilityRepository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = time.RFC3339Nano

// --- Document encoding ---

type facilityDoc struct {
	Floors           []floorDoc  `json:"floors"`
	MaxCapacity      int         `json:"maxCapacity"`
	CurrentOccupancy int         `json:"currentOccupancy"`
	PricePerMinute   float64     `json:"pricePerMinute"`
	Tickets          []ticketDoc `json:"cars"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type floorDoc struct {
	Number int       `json:"floorNumber"`
	Spots  []spotDoc `json:"spots"`
}

type spotDoc struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ticketDoc struct {
	TicketNumber     string      `json:"ticketNumber"`
	ParkingStartedAt time.Time   `json:"parkingStartedAt"`
	ParkingEndedAt   *time.Time  `json:"parkingEndedAt"`
	PayedAt          []time.Time `json:"payedAt"`
}

func toDoc(f domain.Facility) facilityDoc {
	floors := make([]floorDoc, len(f.Floors))
	for i, fl := range f.Floors {
		spots := make([]spotDoc, len(fl.Spots))
		for j, s := range fl.Spots {
			spots[j] = spotDoc{ID: s.ID, Status: string(s.Status)}
		}
		floors[i] = floorDoc{Number: fl.Number, Spots: spots}
	}
	tickets := make([]ticketDoc, len(f.Tickets))
	for i, t := range f.Tickets {
		tickets[i] = toTicketDoc(t)
	}
	return facilityDoc{
		Floors:           floors,
		MaxCapacity:      f.MaxCapacity,
		CurrentOccupancy: f.CurrentOccupancy,
		PricePerMinute:   f.PricePerMinute,
		Tickets:          tickets,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

func toTicketDoc(t domain.Ticket) ticketDoc {
	return ticketDoc{
		TicketNumber:     t.TicketNumber,
		ParkingStartedAt: t.ParkingStartedAt,
		ParkingEndedAt:   t.ParkingEndedAt,
		PayedAt:          t.PayedAt,
	}
}

func fromDoc(key domain.FacilityKey, doc facilityDoc) domain.Facility {
	floors := make([]domain.Floor, len(doc.Floors))
	for i, fl := range doc.Floors {
		spots := make([]domain.Spot, len(fl.Spots))
		for j, s := range fl.Spots {
			spots[j] = domain.Spot{ID: s.ID, Status: domain.SpotStatus(s.Status)}
		}
		floors[i] = domain.Floor{Number: fl.Number, Spots: spots}
	}
	tickets := make([]domain.Ticket, len(doc.Tickets))
	for i, t := range doc.Tickets {
		tickets[i] = fromTicketDoc(t)
	}
	return domain.Facility{
		TenantID:         key.TenantID,
		FacilityID:       key.FacilityID,
		Floors:           floors,
		MaxCapacity:      doc.MaxCapacity,
		CurrentOccupancy: doc.CurrentOccupancy,
		PricePerMinute:   doc.PricePerMinute,
		Tickets:          tickets,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func fromTicketDoc(t ticketDoc) domain.Ticket {
	return domain.Ticket{
		TicketNumber:     t.TicketNumber,
		ParkingStartedAt: t.ParkingStartedAt,
		ParkingEndedAt:   t.ParkingEndedAt,
		PayedAt:          t.PayedAt,
	}
}

// --- domain.FacilityRepository ---

func (r *FacilityRepository) Create(ctx context.Context, f domain.Facility) error {
	raw, err := json.Marshal(toDoc(f))
	if err != nil {
		return fmt.Errorf("encoding facility document: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO facilities (tenant_id, facility_id, doc, version, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		f.TenantID, f.FacilityID, string(raw),
		f.CreatedAt.UTC().Format(timeFormat),
		f.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.FacilityExistsError{TenantID: f.TenantID, FacilityID: f.FacilityID}
		}
		return fmt.Errorf("inserting facility: %w", err)
	}
	return nil
}

func (r *FacilityRepository) Get(ctx context.Context, key domain.FacilityKey) (domain.Facility, error) {
	f, _, err := r.getVersioned(ctx, key)
	return f, err
}

func (r *FacilityRepository) GetHistory(ctx context.Context, key domain.FacilityKey) (domain.HistoryRecord, error) {
	// The paired history record exists exactly as long as its facility does.
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM facilities WHERE tenant_id = ? AND facility_id = ?`,
		key.TenantID, key.FacilityID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.HistoryRecord{}, domain.ErrFacilityNotFound
		}
		return domain.HistoryRecord{}, fmt.Errorf("checking facility: %w", err)
	}

	return r.loadHistory(ctx, key)
}

// Mutate implements the aggregate write path: load document and history,
// apply fn, and commit the new document plus any appended history rows in
// one transaction gated on the document version. A concurrent writer bumps
// the version first, the gate fails, and the whole cycle retries with
// exponential backoff up to the bounded attempt count.
func (r *FacilityRepository) Mutate(ctx context.Context, key domain.FacilityKey, fn func(agg *domain.Aggregate) error) (domain.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, mutateTimeout)
	defer cancel()

	var out domain.Aggregate
	backoff := retry.NewExponential(5 * time.Millisecond)
	backoff = retry.WithCappedDuration(250*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(mutateMaxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		facility, version, err := r.getVersioned(ctx, key)
		if err != nil {
			return err
		}
		history, err := r.loadHistory(ctx, key)
		if err != nil {
			return err
		}

		agg := domain.Aggregate{Facility: facility, History: history}
		baseline := len(history.Entries)

		if err := fn(&agg); err != nil {
			// Semantic failure: nothing written, no retry.
			return err
		}
		if len(agg.History.Entries) < baseline {
			return fmt.Errorf("history entries cannot be removed")
		}

		if err := r.commit(ctx, key, agg, version, baseline); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}

		out = agg
		return nil
	})
	if err != nil {
		return domain.Aggregate{}, err
	}
	return out, nil
}

func (r *FacilityRepository) getVersioned(ctx context.Context, key domain.FacilityKey) (domain.Facility, int64, error) {
	var raw string
	var version int64

	err := r.db.QueryRowContext(ctx,
		`SELECT doc, version FROM facilities WHERE tenant_id = ? AND facility_id = ?`,
		key.TenantID, key.FacilityID,
	).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Facility{}, 0, domain.ErrFacilityNotFound
		}
		return domain.Facility{}, 0, fmt.Errorf("querying facility: %w", err)
	}

	var doc facilityDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.Facility{}, 0, fmt.Errorf("decoding facility document: %w", err)
	}

	return fromDoc(key, doc), version, nil
}

func (r *FacilityRepository) loadHistory(ctx context.Context, key domain.FacilityKey) (domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ticket_number, parking_started_at, parking_ended_at, payed_at
		 FROM history_entries
		 WHERE tenant_id = ? AND facility_id = ?
		 ORDER BY id`,
		key.TenantID, key.FacilityID,
	)
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	record := domain.NewHistoryRecord(key.TenantID, key.FacilityID)
	for rows.Next() {
		var number, started, ended, payed string
		if err := rows.Scan(&number, &started, &ended, &payed); err != nil {
			return domain.HistoryRecord{}, fmt.Errorf("scanning history entry: %w", err)
		}

		entry, err := decodeHistoryEntry(number, started, ended, payed)
		if err != nil {
			return domain.HistoryRecord{}, err
		}
		record.Entries = append(record.Entries, entry)
	}

	return record, rows.Err()
}

func decodeHistoryEntry(number, started, ended, payed string) (domain.Ticket, error) {
	startedAt, err := time.Parse(timeFormat, started)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("parsing history start time: %w", err)
	}
	endedAt, err := time.Parse(timeFormat, ended)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("parsing history end time: %w", err)
	}

	var payments []time.Time
	if err := json.Unmarshal([]byte(payed), &payments); err != nil {
		return domain.Ticket{}, fmt.Errorf("decoding history payments: %w", err)
	}

	return domain.Ticket{
		TicketNumber:     number,
		ParkingStartedAt: startedAt,
		ParkingEndedAt:   &endedAt,
		PayedAt:          payments,
	}, nil
}

// commit writes the facility document and the appended history entries in
// one transaction. The UPDATE is gated on the version read at load time;
// zero affected rows means a concurrent writer won and the caller retries.
func (r *FacilityRepository) commit(ctx context.Context, key domain.FacilityKey, agg domain.Aggregate, version int64, baseline int) error {
	agg.Facility.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(toDoc(agg.Facility))
	if err != nil {
		return fmt.Errorf("encoding facility document: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx,
		`UPDATE facilities SET doc = ?, version = ?, updated_at = ?
		 WHERE tenant_id = ? AND facility_id = ? AND version = ?`,
		string(raw), version+1, agg.Facility.UpdatedAt.Format(timeFormat),
		key.TenantID, key.FacilityID, version,
	)
	if err != nil {
		return fmt.Errorf("updating facility: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrConflict
	}

	for _, entry := range agg.History.Entries[baseline:] {
		if entry.ParkingEndedAt == nil {
			return fmt.Errorf("history entry %q has no end time", entry.TicketNumber)
		}

		payed, err := json.Marshal(entry.PayedAt)
		if err != nil {
			return fmt.Errorf("encoding history payments: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO history_entries (tenant_id, facility_id, ticket_number, parking_started_at, parking_ended_at, payed_at, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key.TenantID, key.FacilityID, entry.TicketNumber,
			entry.ParkingStartedAt.UTC().Format(timeFormat),
			entry.ParkingEndedAt.UTC().Format(timeFormat),
			string(payed),
			time.Now().UTC().Format(timeFormat),
		)
		if err != nil {
			// A duplicate ticket number means another writer already moved
			// this ticket to history.
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("inserting history entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
