// Package pipeline implements the Read and Write Pipelines: the
// cache→durable→remote read path with branch overlay and junction
// side-loading, and the optimistic-apply→remote→reconcile write path with
// copy-on-write forking. Grounded on the dispatcher's schema registry
// (internal/domain/model) for every branch/junction/auto-value decision.
// The pipelines open no trace spans of their own; the dispatcher opens one
// span per call around them (dispatch.read.<action>, dispatch.write.<action>).
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/cache"
	"github.com/cascadedb/branchdata/internal/domain/durable"
	"github.com/cascadedb/branchdata/internal/domain/model"
	"github.com/cascadedb/branchdata/internal/domain/transport"
)

// ReadyTimeout bounds how long the durable store is given to become ready
// before a read bypasses straight to remote.
const ReadyTimeout = 600 * time.Millisecond

// Read is the Read Pipeline. One Read is shared by every resource; the
// schema registry tells it which store, branch-scoping and junction
// side-loads apply to a given action.
type Read struct {
	Registry  model.Registry
	Durable   durable.Store
	Cache     cache.Cache
	Transport transport.Transport
	Logger    mlog.Logger

	// JunctionSideLoads maps a resource name to the junction resource names
	// (registry keys) side-loaded on its ".list" action (nodeProcesses, processRules,
	// ruleIgnores, ...).
	JunctionSideLoads map[string][]string
}

// Execute runs the read pipeline for action against data, returning the
// response envelope. Execute has no error return: every failure, including
// an unregistered action, is reported through Success/Error on the
// envelope.
func (p *Read) Execute(ctx context.Context, action model.Action, data model.Record, opts model.Options, branch model.BranchContext) model.ReadResult {
	start := time.Now()

	schema, ok := p.Registry[action.Resource]
	if !ok {
		return model.ReadResult{Success: false, Error: common.UnknownAction{Action: action.String()}.Error(), ExecutionTime: time.Since(start)}
	}

	fingerprint := p.fingerprint(action, data, branch)

	if !opts.SkipCache {
		if cached, hit := p.Cache.Get(fingerprint); hit {
			cached.Cached = true
			cached.ExecutionTime = time.Since(start)

			return cached
		}
	}

	if schema.ServerOnly || opts.SkipCache {
		return p.finishFromRemote(ctx, action, data, opts, branch, fingerprint, start)
	}

	if !p.Durable.Ready(ReadyTimeout) {
		p.Logger.Warnf("pipeline.read: durable store not ready within %s, bypassing to remote for %s", ReadyTimeout, action)
		return p.finishFromRemote(ctx, action, data, opts, branch, fingerprint, start)
	}

	result, err := p.readDurable(ctx, schema, action, data, opts, branch)
	if err != nil {
		p.Logger.Warnf("pipeline.read: durable read failed for %s, bypassing to remote: %s", action, err)
		return p.finishFromRemote(ctx, action, data, opts, branch, fingerprint, start)
	}

	if isEmptyResult(result) {
		return p.finishFromRemote(ctx, action, data, opts, branch, fingerprint, start)
	}

	result.ExecutionTime = time.Since(start)

	if action.Verb == model.VerbList || action.Verb == "" {
		result.Junctions = p.sideLoad(ctx, action.Resource, branch)
	}

	if !opts.SkipCache {
		p.Cache.Set(fingerprint, result)
	}

	return result
}

func (p *Read) readDurable(ctx context.Context, schema model.Schema, action model.Action, data model.Record, opts model.Options, branch model.BranchContext) (model.ReadResult, error) {
	listOpts := durable.ListOptions{Filters: opts.Filters, Sort: opts.Sort, Limit: opts.Limit, Offset: opts.Offset}

	if id := data.ID(); id != "" {
		var (
			rec   model.Record
			found bool
			err   error
		)

		if schema.NotHasBranchContext {
			rec, found, err = p.Durable.Get(ctx, schema.DatabaseKey, id)
		} else {
			rec, found, err = p.Durable.GetBranchAware(ctx, schema.DatabaseKey, schema, id, branch)
		}

		if err != nil {
			return model.ReadResult{}, err
		}

		if !found {
			return model.ReadResult{Success: true, Data: nil}, nil
		}

		return model.ReadResult{Success: true, Data: rec}, nil
	}

	var (
		rows []model.Record
		err  error
	)

	if schema.NotHasBranchContext {
		rows, err = p.Durable.GetAll(ctx, schema.DatabaseKey, listOpts)
	} else {
		rows, err = p.Durable.GetAllBranchAware(ctx, schema.DatabaseKey, schema, branch, listOpts)
	}

	if err != nil {
		return model.ReadResult{}, err
	}

	return model.ReadResult{Success: true, Data: rows}, nil
}

func isEmptyResult(r model.ReadResult) bool {
	switch v := r.Data.(type) {
	case nil:
		return true
	case []model.Record:
		return len(v) == 0
	case model.Record:
		return v == nil
	default:
		return false
	}
}

func (p *Read) finishFromRemote(ctx context.Context, action model.Action, data model.Record, opts model.Options, branch model.BranchContext, fingerprint string, start time.Time) model.ReadResult {
	resp, err := p.Transport.Dispatch(ctx, model.RemoteRequest{
		Action:        action.String(),
		Data:          data,
		Options:       optionsToMap(opts),
		BranchContext: &branch,
	})
	if err != nil {
		// Never throw to the caller for a read: return a graceful
		// empty/null payload with fallback:true.
		return model.ReadResult{
			Success:       true,
			Data:          fallbackData(action),
			Fallback:      true,
			Error:         err.Error(),
			ExecutionTime: time.Since(start),
		}
	}

	p.persistRemoteRows(ctx, action, resp, branch)

	result := model.ReadResult{
		Success:       resp.Success,
		Data:          remoteDataAsResult(resp.Data),
		Junctions:     resp.Junctions,
		Cached:        false,
		ExecutionTime: time.Since(start),
	}

	if !opts.SkipCache && !isEmptyResult(result) {
		p.Cache.Set(fingerprint, result)
	}

	return result
}

func fallbackData(action model.Action) any {
	if action.Verb == model.VerbGet {
		return nil
	}

	return []model.Record{}
}

// remoteDataAsResult normalizes a remote JSON payload (decoded into `any`
// by encoding/json, so an object becomes map[string]any and an array
// becomes []any) into the Data shapes the rest of the pipeline expects.
func remoteDataAsResult(data any) any {
	switch v := data.(type) {
	case map[string]any:
		return model.Record(v)
	case []any:
		rows := make([]model.Record, 0, len(v))

		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, model.Record(m))
			}
		}

		return rows
	default:
		return data
	}
}

func (p *Read) persistRemoteRows(ctx context.Context, action model.Action, resp model.RemoteResponse, branch model.BranchContext) {
	if !resp.Success {
		return
	}

	schema, ok := p.Registry[action.Resource]
	if !ok || schema.ServerOnly {
		return
	}

	switch v := remoteDataAsResult(resp.Data).(type) {
	case model.Record:
		if v != nil {
			p.storeRemoteRow(ctx, schema, v)
		}
	case []model.Record:
		for _, r := range v {
			p.storeRemoteRow(ctx, schema, r)
		}
	}

	for store, rows := range resp.Junctions {
		junctionSchema, ok := p.Registry[storeToResource(p.Registry, store)]
		if !ok {
			p.Logger.Warnf("pipeline.read: unknown junction store %q in remote response, skipping", store)
			continue
		}

		for _, r := range rows {
			p.storeRemoteRow(ctx, junctionSchema, r)
		}
	}
}

func (p *Read) storeRemoteRow(ctx context.Context, schema model.Schema, rec model.Record) {
	if err := p.Durable.Set(ctx, schema.DatabaseKey, schema, rec, ""); err != nil {
		p.Logger.Warnf("pipeline.read: failed to persist remote row into %s: %s", schema.DatabaseKey, err)
	}
}

func storeToResource(registry model.Registry, store string) string {
	for resource, schema := range registry {
		if schema.DatabaseKey == store {
			return resource
		}
	}

	return ""
}

// sideLoad enumerates the junction stores declared for resource's list
// action and reads each one's overlay-filtered rows. A missing junction
// store is tolerated (warn and continue).
func (p *Read) sideLoad(ctx context.Context, resource string, branch model.BranchContext) map[string][]model.Record {
	stores, ok := p.JunctionSideLoads[resource]
	if !ok || len(stores) == 0 {
		return nil
	}

	out := make(map[string][]model.Record, len(stores))

	for _, storeResource := range stores {
		schema, ok := p.Registry[storeResource]
		if !ok {
			p.Logger.Warnf("pipeline.read: missing junction schema %q for side-load, skipping", storeResource)
			continue
		}

		rows, err := p.Durable.GetAllBranchAware(ctx, schema.DatabaseKey, schema, branch, durable.ListOptions{})
		if err != nil {
			p.Logger.Warnf("pipeline.read: junction side-load of %s failed, skipping: %s", schema.DatabaseKey, err)
			continue
		}

		out[schema.DatabaseKey] = rows
	}

	return out
}

func (p *Read) fingerprint(action model.Action, data model.Record, branch model.BranchContext) string {
	buf, _ := json.Marshal(data)
	return cache.Fingerprint(action.Resource, action.String(), string(buf), branch.CurrentBranchID)
}

func optionsToMap(opts model.Options) map[string]any {
	m := map[string]any{}

	if opts.SkipCache {
		m["skipCache"] = true
	}

	if opts.NavigationContext != nil {
		m["navigationContext"] = opts.NavigationContext
	}

	if opts.Filters != nil {
		m["filters"] = opts.Filters
	}

	if opts.Sort != nil {
		m["sort"] = map[string]string{"field": opts.Sort.Field, "dir": opts.Sort.Dir}
	}

	if opts.Limit != 0 {
		m["limit"] = opts.Limit
	}

	if opts.Offset != 0 {
		m["offset"] = opts.Offset
	}

	if opts.BatchID != "" {
		m["batchId"] = opts.BatchID
	}

	if opts.Reason != "" {
		m["reason"] = opts.Reason
	}

	if opts.Description != "" {
		m["description"] = opts.Description
	}

	if len(opts.Tags) > 0 {
		m["tags"] = opts.Tags
	}

	return m
}
