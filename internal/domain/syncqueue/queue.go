// Package syncqueue defines the port for the Sync Queue: a durable FIFO of
// writes awaiting successful remote delivery, with error classification
// (permanent vs transient) and exponential backoff. The concrete engine
// (bbolt-backed) lives in internal/adapters/queue.
package syncqueue

import (
	"context"
	"time"
)

// MaxRetries is the fixed retry ceiling before a transient item is finally
// dropped.
const MaxRetries = 3

// BackoffBase and BackoffCap bound the exponential backoff applied to
// FK-constraint-classified transient errors.
const (
	BackoffBase = 2 * time.Second
	BackoffCap  = 8 * time.Second
)

// Item is one pending write.
type Item struct {
	ID         string
	Action     string
	Data       map[string]any
	RetryCount int
	Timestamp  time.Time
}

// Status summarizes the queue's current state.
type Status struct {
	Pending     int
	InFlight    bool
	LastError   string
	LastAttempt time.Time
}

// Classification is the outcome of inspecting a delivery error.
type Classification int

const (
	// ClassificationTransient is retried with backoff, up to MaxRetries.
	ClassificationTransient Classification = iota
	// ClassificationPermanent is dropped on first failure and logged.
	ClassificationPermanent
)

// Queue is the Sync Queue port. It is single-threaded/cooperative: only one
// item is ever in flight, and ProcessNext is re-entrant-safe.
type Queue interface {
	// Enqueue appends a new pending write and returns its assigned item id.
	Enqueue(ctx context.Context, action string, data map[string]any) (string, error)

	// ProcessNext delivers the oldest pending item, if any, via deliver.
	// Returns false when the queue was empty or already processing.
	ProcessNext(ctx context.Context, deliver func(context.Context, Item) error) (processed bool, err error)

	// Clear drops every pending item.
	Clear(ctx context.Context) error

	// Status reports the queue's current state.
	Status(ctx context.Context) (Status, error)
}
