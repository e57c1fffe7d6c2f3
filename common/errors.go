package common

import (
	"errors"
	"fmt"
	"strings"

	cn "github.com/cascadedb/branchdata/common/constant"
)

// TransportError records a non-2xx HTTP response from the remote action
// endpoint. Status carries the original HTTP status code.
type TransportError struct {
	Status  int
	Action  string
	Message string
	Err     error
}

func (e TransportError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return fmt.Sprintf("transport error (%d) on %s: %s", e.Status, e.Action, e.Message)
	}

	return fmt.Sprintf("transport error (%d) on %s", e.Status, e.Action)
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// ConflictPermanent indicates a unique-constraint or conflict response that
// must never be retried by the sync queue.
type ConflictPermanent struct {
	Action  string
	Message string
	Err     error
}

func (e ConflictPermanent) Error() string {
	return fmt.Sprintf("permanent conflict on %s: %s", e.Action, e.Message)
}

func (e ConflictPermanent) Unwrap() error {
	return e.Err
}

// TransientNetwork indicates a failure the sync queue should retry: fetch
// failure, 5xx, or an FK-violation observed during eventual consistency.
type TransientNetwork struct {
	Action  string
	Message string
	Err     error
}

func (e TransientNetwork) Error() string {
	return fmt.Sprintf("transient network error on %s: %s", e.Action, e.Message)
}

func (e TransientNetwork) Unwrap() error {
	return e.Err
}

// ValidationFailed indicates a server-side 400 or a local schema rejection.
type ValidationFailed struct {
	Action  string
	Field   string
	Message string
	Err     error
}

func (e ValidationFailed) Error() string {
	if strings.TrimSpace(e.Field) != "" {
		return fmt.Sprintf("validation failed on %s: field %q: %s", e.Action, e.Field, e.Message)
	}

	return fmt.Sprintf("validation failed on %s: %s", e.Action, e.Message)
}

func (e ValidationFailed) Unwrap() error {
	return e.Err
}

// AutoValueResolution indicates a required autoValue field could not be
// resolved from the given context.
type AutoValueResolution struct {
	Field   string
	Source  string
	Message string
}

func (e AutoValueResolution) Error() string {
	return fmt.Sprintf("auto-value resolution failed for field %q (source %q): %s", e.Field, e.Source, e.Message)
}

// DurableUnavailable indicates the durable store is missing or did not
// become ready within the readiness timeout.
type DurableUnavailable struct {
	Store   string
	Message string
	Err     error
}

func (e DurableUnavailable) Error() string {
	if strings.TrimSpace(e.Store) != "" {
		return fmt.Sprintf("durable store %q unavailable: %s", e.Store, e.Message)
	}

	return fmt.Sprintf("durable store unavailable: %s", e.Message)
}

func (e DurableUnavailable) Unwrap() error {
	return e.Err
}

// UnknownAction indicates the dispatcher has no registry entry for the
// requested action.
type UnknownAction struct {
	Action string
}

func (e UnknownAction) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// RecursionGuard indicates a junction auto-creation attempted to call back
// into the parent action that triggered it.
type RecursionGuard struct {
	Action       string
	ParentAction string
}

func (e RecursionGuard) Error() string {
	return fmt.Sprintf("recursion guard: action %q refused while processing junctions for %q", e.Action, e.ParentAction)
}

// ValidateBusinessError translates a sentinel error from common/constant
// into one of the rich, typed errors above, filling in the acting entity or
// action name and any formatting arguments.
//
//nolint:gocyclo
func ValidateBusinessError(err error, action string, args ...any) error {
	switch {
	case errors.Is(err, cn.ErrFKConstraintViolated):
		return TransientNetwork{
			Action:  action,
			Message: "Foreign key constraint violated",
			Err:     err,
		}
	case errors.Is(err, cn.ErrAlreadyExists):
		return ConflictPermanent{
			Action:  action,
			Message: fmt.Sprintf("%s already exists", fmt.Sprint(args...)),
			Err:     err,
		}
	case errors.Is(err, cn.ErrRecordNotFoundForMutation):
		return ConflictPermanent{
			Action:  action,
			Message: "Record to update/delete not found",
			Err:     err,
		}
	case errors.Is(err, cn.ErrMissingRequiredField):
		return ValidationFailed{
			Action:  action,
			Message: fmt.Sprintf("missing required field %s", fmt.Sprint(args...)),
			Err:     err,
		}
	case errors.Is(err, cn.ErrBranchContextRequired):
		return ValidationFailed{
			Action:  action,
			Message: "branch context is required for a branch-scoped write",
			Err:     err,
		}
	default:
		return err
	}
}
