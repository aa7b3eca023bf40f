package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/parkiq/parkiq/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries the data needed to process a domain event
// asynchronously. River serializes this as JSON into its job queue table.
// Subject is the ticket number or spot id the event concerns, empty for
// facility-level events.
type EventJobArgs struct {
	Event      string `json:"event"`
	TenantID   string `json:"tenant_id"`
	FacilityID string `json:"facility_id"`
	Subject    string `json:"subject,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "parking.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a domain event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, key domain.FacilityKey, subject string) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:      string(event),
		TenantID:   key.TenantID,
		FacilityID: key.FacilityID,
		Subject:    subject,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
