package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist, or when
// a status-guarded update matches no row.
var ErrNotFound = errors.New("not found")

// Help request statuses. The pending→resolved transition is one-way.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// HelpRequest is one escalated question awaiting (or carrying) a
// supervisor answer. RefinedAnswer is set only after resolution.
type HelpRequest struct {
	ID            int64
	UserID        string
	Question      string
	Status        string
	RawAnswer     string
	RefinedAnswer string
	CreatedAt     time.Time
	ResolvedAt    time.Time // zero while pending
}
