package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/autovalue"
	"github.com/cascadedb/branchdata/internal/domain/cache"
	"github.com/cascadedb/branchdata/internal/domain/changetracker"
	"github.com/cascadedb/branchdata/internal/domain/durable"
	"github.com/cascadedb/branchdata/internal/domain/junction"
	"github.com/cascadedb/branchdata/internal/domain/key"
	"github.com/cascadedb/branchdata/internal/domain/model"
	"github.com/cascadedb/branchdata/internal/domain/syncqueue"
	"github.com/cascadedb/branchdata/internal/domain/transport"
)

// Write is the Write Pipeline: optimistic local apply, remote call,
// reconciliation, and copy-on-write fork.
type Write struct {
	Registry   model.Registry
	Durable    durable.Store
	Cache      cache.Cache
	Transport  transport.Transport
	Queue      syncqueue.Queue
	AutoValue  *autovalue.Service
	Junctions  *junction.Manager
	Tracker    *changetracker.Tracker
	Logger     mlog.Logger
	Dispatcher junction.Dispatcher // wired by internal/bootstrap after construction
}

// Execute runs the write pipeline for action against data, returning the
// resulting write envelope.
func (w *Write) Execute(ctx context.Context, action model.Action, data model.Record, opts model.Options, reqCtx model.RequestContext) model.WriteResult {
	start := time.Now()

	schema, ok := w.Registry[action.Resource]
	if !ok {
		return model.WriteResult{Success: false, Error: common.UnknownAction{Action: action.String()}.Error(), ExecutionTime: time.Since(start)}
	}

	if !schema.NotHasBranchContext && (reqCtx.Branch.CurrentBranchID == "" || reqCtx.Branch.TenantID == "") {
		return model.WriteResult{
			Success: false,
			Error: common.ValidationFailed{
				Action:  action.String(),
				Message: "branch context is required for a branch-scoped write",
			}.Error(),
			ExecutionTime: time.Since(start),
		}
	}

	if action.Verb == model.VerbUpdate {
		if err := w.copyOnWriteGuard(ctx, schema, action, data, reqCtx); err != nil {
			return model.WriteResult{Success: false, Error: err.Error(), ExecutionTime: time.Since(start)}
		}
	}

	payload, err := w.AutoValue.Resolve(schema, data, reqCtx)
	if err != nil {
		return model.WriteResult{Success: false, Error: err.Error(), ExecutionTime: time.Since(start)}
	}

	var before model.Record

	if action.Verb == model.VerbUpdate {
		before, _, _ = w.currentRow(ctx, schema, payload.ID(), reqCtx.Branch)
	}

	optimistic, optimisticKeyID := w.optimisticApply(ctx, schema, action, payload, reqCtx.Branch, before)

	w.Cache.Invalidate(cache.ResourceBranchPattern(action.Resource, reqCtx.Branch.CurrentBranchID))

	resp, remoteErr := w.Transport.Dispatch(ctx, model.RemoteRequest{
		Action:        action.String(),
		Data:          stripClientOnly(optimistic),
		Options:       optionsToMap(opts),
		BranchContext: &reqCtx.Branch,
	})

	if remoteErr != nil {
		if syncqueue.Classify(remoteErr) == syncqueue.ClassificationTransient {
			if _, qErr := w.Queue.Enqueue(ctx, action.String(), optimistic); qErr != nil {
				w.Logger.Errorf("pipeline.write: failed to enqueue %s after transient failure: %s", action, qErr)
			}

			return model.WriteResult{Success: true, Data: optimistic, Queued: true, ExecutionTime: time.Since(start)}
		}

		return model.WriteResult{Success: false, Data: optimistic, Error: remoteErr.Error(), ExecutionTime: time.Since(start)}
	}

	if !resp.Success {
		return model.WriteResult{Success: false, Data: optimistic, Error: resp.Error, ExecutionTime: time.Since(start)}
	}

	authoritative := w.reconcile(ctx, schema, action, optimisticKeyID, resp, reqCtx.Branch)

	if !reqCtx.ProcessingJunctions {
		w.driveJunctions(ctx, action, authoritative, reqCtx)
	}

	w.trackChange(ctx, action, authoritative, before, reqCtx)

	return model.WriteResult{Success: true, Data: authoritative, ExecutionTime: time.Since(start)}
}

// copyOnWriteGuard: an update on a branch-scoped store, off the default
// branch, against a record that exists only on the default branch, forks a
// clone for the current branch before the update
// proceeds.
func (w *Write) copyOnWriteGuard(ctx context.Context, schema model.Schema, action model.Action, data model.Record, reqCtx model.RequestContext) error {
	if schema.NotHasBranchContext || reqCtx.Branch.IsDefault() {
		return nil
	}

	id := data.ID()
	if id == "" {
		return nil
	}

	_, existsOnCurrent, err := w.currentRow(ctx, schema, id, reqCtx.Branch)
	if err != nil {
		return err
	}

	if existsOnCurrent {
		return nil
	}

	defaultRow, existsOnDefault, err := w.defaultRow(ctx, schema, id, reqCtx.Branch)
	if err != nil {
		return err
	}

	if !existsOnDefault {
		return nil
	}

	fork := defaultRow.Clone()
	fork["branchId"] = reqCtx.Branch.CurrentBranchID

	if fork.String("originalId") == "" && !hasOriginalModelID(fork) {
		fork["originalId"] = id
	}

	fork["createdAt"] = nowISO()
	fork["updatedAt"] = nowISO()

	return w.Durable.Set(ctx, schema.DatabaseKey, schema, fork, "")
}

func hasOriginalModelID(r model.Record) bool {
	for k, v := range r {
		if strings.HasPrefix(k, "original") && strings.HasSuffix(k, "Id") && k != "originalId" {
			if s, ok := v.(string); ok && s != "" {
				return true
			}
		}
	}

	return false
}

// currentRow and defaultRow look up a single branch's row directly (no
// fallback chain), by pinning GetBranchAware's current/default pair to the
// same branch id.
func (w *Write) currentRow(ctx context.Context, schema model.Schema, id string, branch model.BranchContext) (model.Record, bool, error) {
	solo := model.BranchContext{CurrentBranchID: branch.CurrentBranchID, DefaultBranchID: branch.CurrentBranchID, TenantID: branch.TenantID, UserID: branch.UserID}
	return w.Durable.GetBranchAware(ctx, schema.DatabaseKey, schema, id, solo)
}

func (w *Write) defaultRow(ctx context.Context, schema model.Schema, id string, branch model.BranchContext) (model.Record, bool, error) {
	solo := model.BranchContext{CurrentBranchID: branch.DefaultBranchID, DefaultBranchID: branch.DefaultBranchID, TenantID: branch.TenantID, UserID: branch.UserID}
	return w.Durable.GetBranchAware(ctx, schema.DatabaseKey, schema, id, solo)
}

// optimisticApply attaches optimistic tags and upserts (or, for a delete,
// removes) the local row before the remote call. Durable.Set is a blind
// put at the (baseId, branchId) key, so for an update whose payload is a
// partial delta, the delta is merged onto existing (the pre-write
// branch-aware row) before persisting — otherwise fields absent from the
// delta would be dropped from the stored row.
func (w *Write) optimisticApply(ctx context.Context, schema model.Schema, action model.Action, payload model.Record, branch model.BranchContext, existing model.Record) (model.Record, string) {
	if action.Verb == model.VerbDelete {
		id := payload.ID()
		if err := w.Durable.Delete(ctx, schema.DatabaseKey, schema, payload); err != nil {
			w.Logger.Warnf("pipeline.write: optimistic delete failed for %s: %s", action, err)
		}

		return payload, id
	}

	rec := payload.Clone()

	if action.Verb == model.VerbUpdate && existing != nil {
		merged := existing.Clone()

		for k, v := range rec {
			merged[k] = v
		}

		rec = merged
	}

	if !schema.NotHasBranchContext {
		if rec.BranchID() == "" {
			rec["branchId"] = branch.CurrentBranchID
		}
	}

	if rec.ID() == "" {
		rec["id"] = "optimistic-" + key.BaseID(rec)
	}

	if rec.CreatedAt().IsZero() {
		rec["createdAt"] = nowISO()
	}

	rec["updatedAt"] = nowISO()
	rec["__optimistic"] = true
	rec["__optimisticIdSource"] = rec.ID()

	if err := w.Durable.Set(ctx, schema.DatabaseKey, schema, rec, ""); err != nil {
		w.Logger.Warnf("pipeline.write: optimistic apply failed for %s: %s", action, err)
	}

	return rec, rec.ID()
}

// reconcile drops optimistic rows and upserts the authoritative server
// record under its schema-driven key. When the server record carries no
// lineage field, the local row's originalId is kept on it, so a
// copy-on-write fork stays linked to its source row.
func (w *Write) reconcile(ctx context.Context, schema model.Schema, action model.Action, optimisticID string, resp model.RemoteResponse, branch model.BranchContext) model.Record {
	authoritative, ok := remoteDataAsResult(resp.Data).(model.Record)
	if !ok || authoritative == nil {
		return nil
	}

	if action.Verb != model.VerbDelete {
		if !schema.NotHasBranchContext && authoritative.BranchID() == "" {
			authoritative["branchId"] = branch.CurrentBranchID
		}

		if optimisticID != "" && optimisticID != authoritative.ID() && isOptimisticID(optimisticID) {
			stale := model.Record{"id": optimisticID, "branchId": authoritative.BranchID()}
			if err := w.Durable.Delete(ctx, schema.DatabaseKey, schema, stale); err != nil {
				w.Logger.Warnf("pipeline.write: failed to remove stale optimistic row %s: %s", optimisticID, err)
			}
		}

		delete(authoritative, "__optimistic")
		delete(authoritative, "__optimisticIdSource")

		if !schema.NotHasBranchContext && originalEntityID(authoritative) == "" {
			if prior, found, _ := w.currentRow(ctx, schema, authoritative.ID(), branch); found {
				if v := prior.String("originalId"); v != "" {
					authoritative["originalId"] = v
				}
			}
		}

		if err := w.Durable.Set(ctx, schema.DatabaseKey, schema, authoritative, ""); err != nil {
			w.Logger.Warnf("pipeline.write: failed to persist authoritative row for %s: %s", action, err)
		}
	}

	return authoritative
}

func isOptimisticID(id string) bool {
	return strings.HasPrefix(id, "optimistic-")
}

func (w *Write) driveJunctions(ctx context.Context, action model.Action, authoritative model.Record, reqCtx model.RequestContext) {
	if w.Junctions == nil || w.Dispatcher == nil || authoritative == nil {
		return
	}

	parentAction := action.Resource + ".create"

	var errs []error

	switch action.Verb {
	case model.VerbCreate:
		errs = w.Junctions.AfterParentCreate(ctx, w.Dispatcher, parentAction, authoritative, reqCtx)
	case model.VerbUpdate:
		errs = w.Junctions.AfterParentUpdate(ctx, w.Dispatcher, parentAction, key.BaseID(authoritative), authoritative, reqCtx)
	case model.VerbDelete:
		errs = w.Junctions.AfterParentDelete(ctx, w.Dispatcher, parentAction, key.BaseID(authoritative), reqCtx)
	}

	for _, err := range errs {
		// Junction failures are logged; a failed junction never rolls
		// back the parent entity.
		w.Logger.Warnf("pipeline.write: junction auto-%s failed for %s: %s", action.Verb, parentAction, err)
	}
}

func (w *Write) trackChange(ctx context.Context, action model.Action, authoritative, before model.Record, reqCtx model.RequestContext) {
	if w.Tracker == nil {
		return
	}

	var opType model.OperationType

	var changeType model.ChangeType

	switch action.Verb {
	case model.VerbCreate:
		opType, changeType = model.OperationCreate, model.ChangeCreate
	case model.VerbUpdate:
		opType, changeType = model.OperationUpdate, model.ChangeUpdate
	case model.VerbDelete:
		opType, changeType = model.OperationDelete, model.ChangeDelete
	default:
		return
	}

	entityID := authoritative.ID()

	event := model.ChangeEvent{
		OperationType:    opType,
		ChangeType:       changeType,
		EntityType:       action.Resource,
		EntityID:         entityID,
		OriginalEntityID: originalEntityID(authoritative),
		BranchID:         reqCtx.Branch.CurrentBranchID,
		TenantID:         reqCtx.Branch.TenantID,
		UserID:           reqCtx.Branch.UserID,
		SessionID:        reqCtx.SessionID,
		RequestID:        reqCtx.RequestID,
		BatchID:          reqCtx.Options.BatchID,
		Reason:           reqCtx.Options.Reason,
		Description:      reqCtx.Options.Description,
		Tags:             reqCtx.Options.Tags,
		AfterData:        authoritative,
		BeforeData:       before,
	}

	w.Tracker.Record(ctx, event, before, authoritative)
}

func originalEntityID(r model.Record) string {
	if r == nil {
		return ""
	}

	if v := r.String("originalId"); v != "" {
		return v
	}

	for k, v := range r {
		if strings.HasPrefix(k, "original") && strings.HasSuffix(k, "Id") && k != "originalId" {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}

	return ""
}

// stripClientOnly removes fields prefixed with "_" or "__" before a
// payload is sent to the remote endpoint, mirroring the sync queue's
// stripping rule so an optimistic-only write behaves the same whether it
// goes out immediately or via the queue.
func stripClientOnly(rec model.Record) model.Record {
	out := make(model.Record, len(rec))

	for k, v := range rec {
		if len(k) > 0 && k[0] == '_' {
			continue
		}

		if k == "branchTimestamp" {
			continue
		}

		out[k] = v
	}

	return out
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
