package syncqueue

import (
	"errors"
	"strings"

	"github.com/cascadedb/branchdata/common"
)

// Classify inspects a delivery error and reports whether it should be
// retried (transient) or dropped immediately (permanent):
//
//   - Transient: network failure, HTTP 5xx, or a message containing
//     "Foreign key constraint violated" — the FK case specifically gets
//     exponential backoff rather than immediate retry.
//   - Permanent: unique-constraint violations, 4xx (400/401/403/404/405),
//     409 conflicts containing "already exists", schema/validation
//     failures, "Record to update/delete not found".
func Classify(err error) Classification {
	if err == nil {
		return ClassificationTransient
	}

	var (
		transportErr common.TransportError
		conflictErr  common.ConflictPermanent
		validErr     common.ValidationFailed
		transientErr common.TransientNetwork
	)

	switch {
	case errors.As(err, &conflictErr):
		return ClassificationPermanent
	case errors.As(err, &validErr):
		return ClassificationPermanent
	case errors.As(err, &transientErr):
		return ClassificationTransient
	case errors.As(err, &transportErr):
		return classifyStatus(transportErr.Status)
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "foreign key constraint violated"):
		return ClassificationTransient
	case strings.Contains(msg, "already exists"):
		return ClassificationPermanent
	case strings.Contains(msg, "unique constraint"):
		return ClassificationPermanent
	case strings.Contains(msg, "record to update/delete not found"):
		return ClassificationPermanent
	default:
		return ClassificationTransient
	}
}

func classifyStatus(status int) Classification {
	switch {
	case status == 409:
		// A 409 whose body says "already exists" arrives as
		// ConflictPermanent; any other 409 TransportError is treated as a
		// permanent conflict too.
		return ClassificationPermanent
	case status >= 400 && status < 500:
		return ClassificationPermanent
	case status >= 500:
		return ClassificationTransient
	default:
		return ClassificationTransient
	}
}

// IsFKViolation reports whether err is the specific FK-constraint transient
// case that gets exponential backoff instead of immediate retry.
func IsFKViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "foreign key constraint violated")
}
