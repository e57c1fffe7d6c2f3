// Package changetracker implements the Change Tracker: emitting versioned
// audit records for every successful mutation. Grounded on
// common/mopentelemetry's emphasis on non-fatal side-channel reporting —
// change tracking failures never fail the originating write, matching how
// its span-error recording never aborts the traced operation itself.
package changetracker

import (
	"context"
	"fmt"

	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/model"
	"github.com/cascadedb/branchdata/internal/domain/transport"
)

// Tracker posts change events to the remote change-log endpoint.
type Tracker struct {
	transport transport.Transport
	logger    mlog.Logger
}

// New builds a Tracker against a transport and logger.
func New(t transport.Transport, logger mlog.Logger) *Tracker {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Tracker{transport: t, logger: logger}
}

// Record builds the FieldChanges between before and after and posts the
// resulting ChangeEvent. Errors are logged and swallowed: failures in
// change tracking never fail the originating write.
func (t *Tracker) Record(ctx context.Context, event model.ChangeEvent, before, after model.Record) {
	event.FieldChanges = Diff(before, after)

	if err := t.transport.PostChangeEvent(ctx, event); err != nil {
		t.logger.Warnf("changetracker: failed to post change event for %s %s: %s", event.EntityType, event.EntityID, err)
	}
}

// Diff computes the per-field before/after delta between two records,
// classifying each as added, modified or deleted.
func Diff(before, after model.Record) []model.FieldChange {
	var changes []model.FieldChange

	seen := make(map[string]bool, len(before)+len(after))

	for field, newVal := range after {
		seen[field] = true

		oldVal, existed := before[field]
		if !existed {
			changes = append(changes, model.FieldChange{Field: field, To: newVal, Type: model.FieldAdded})
			continue
		}

		if !equal(oldVal, newVal) {
			changes = append(changes, model.FieldChange{Field: field, From: oldVal, To: newVal, Type: model.FieldModified})
		}
	}

	for field, oldVal := range before {
		if seen[field] {
			continue
		}

		changes = append(changes, model.FieldChange{Field: field, From: oldVal, Type: model.FieldDeleted})
	}

	return changes
}

func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
