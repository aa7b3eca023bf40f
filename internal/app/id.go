package app

import "github.com/google/uuid"

// newTicketNumber produces a globally unique ticket number.
// Isolated here so the numbering strategy can evolve independently.
func newTicketNumber() string {
	return uuid.NewString()
}
