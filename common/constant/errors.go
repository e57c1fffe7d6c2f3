// Package constant holds sentinel errors shared across the durable,
// transport and sync-queue layers. Sentinel errors are never returned to
// callers directly; common.ValidateBusinessError translates them into the
// rich, typed errors a caller actually inspects.
package constant

import "errors"

var (
	// ErrFKConstraintViolated marks a remote response whose message contains
	// "Foreign key constraint violated" — retried with backoff by the sync
	// queue, never dropped on first failure.
	ErrFKConstraintViolated = errors.New("foreign key constraint violated")

	// ErrAlreadyExists marks a 409 response whose body contains
	// "already exists" — a permanent conflict, never retried.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrRecordNotFoundForMutation marks a response whose message contains
	// "Record to update/delete not found" — a permanent failure.
	ErrRecordNotFoundForMutation = errors.New("record to update/delete not found")

	// ErrMissingRequiredField marks a local schema validation rejection for
	// a required field absent from the payload.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrBranchContextRequired marks a branch-scoped write attempted
	// without a branch context.
	ErrBranchContextRequired = errors.New("branch context required")
)
