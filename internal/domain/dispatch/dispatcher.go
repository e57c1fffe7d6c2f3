// Package dispatch implements the Action Dispatcher & Resource Facade: the
// public entry point that validates an action request, resolves it against
// the schema registry, and routes to the Read or Write Pipeline. Grounded
// on the per-operation tracing convention (command.create_*-style span
// names) generalized to "dispatch.read" / "dispatch.write", and on a
// typed-error translation pattern for UnknownAction/RecursionGuard.
package dispatch

import (
	"context"
	"fmt"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/common/mopentelemetry"
	"github.com/cascadedb/branchdata/internal/domain/model"
)

// ReadPipeline and WritePipeline are the minimal slices of
// internal/domain/pipeline this dispatcher drives, kept as interfaces so
// tests can substitute fakes without constructing a full durable/cache/
// transport stack.
type ReadPipeline interface {
	Execute(ctx context.Context, action model.Action, data model.Record, opts model.Options, branch model.BranchContext) model.ReadResult
}

type WritePipeline interface {
	Execute(ctx context.Context, action model.Action, data model.Record, opts model.Options, reqCtx model.RequestContext) model.WriteResult
}

// Dispatcher is the single entry point every resource method call and
// every junction auto-create ultimately funnels through.
type Dispatcher struct {
	Registry model.Registry
	Read     ReadPipeline
	Write    WritePipeline
	Logger   mlog.Logger
}

// New builds a Dispatcher. Read and Write must be non-nil; Logger defaults
// to a no-op sink.
func New(registry model.Registry, read ReadPipeline, write WritePipeline, logger mlog.Logger) *Dispatcher {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Dispatcher{Registry: registry, Read: read, Write: write, Logger: logger}
}

// DispatchRaw accepts the wire-form "<resource>.<verb>" action string,
// parses it, and routes it — the entry point a Remote Transport-facing
// HTTP handler or CLI would call.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw string, data model.Record, opts model.Options, reqCtx model.RequestContext) (any, error) {
	action, err := model.ParseAction(raw)
	if err != nil {
		return nil, err
	}

	if action.IsWrite() {
		return d.Dispatch(ctx, action, data, reqCtx.WithOptions(opts))
	}

	return d.ReadAction(ctx, action, data, opts, reqCtx.Branch), nil
}

// Dispatch routes a structured write action through the recursion guard
// and the Write Pipeline. It is also the interface junction.Dispatcher
// expects, so the Junction Auto-Manager can issue junction writes through
// the same action system rather than a raw remote call.
func (d *Dispatcher) Dispatch(ctx context.Context, action model.Action, data model.Record, reqCtx model.RequestContext) (model.WriteResult, error) {
	if _, ok := d.Registry[action.Resource]; !ok {
		return model.WriteResult{}, common.UnknownAction{Action: action.String()}
	}

	if reqCtx.ProcessingJunctions && action.String() == reqCtx.ParentAction {
		return model.WriteResult{}, common.RecursionGuard{Action: action.String(), ParentAction: reqCtx.ParentAction}
	}

	tracer := common.NewTracerFromContext(ctx)
	ctx, span := tracer.Start(ctx, "dispatch.write."+action.String())

	defer span.End()

	result := d.Write.Execute(ctx, action, data, reqCtx.Options, reqCtx)
	if !result.Success {
		mopentelemetry.HandleSpanError(&span, "write failed", fmt.Errorf("%s", result.Error))
	}

	return result, nil
}

// ReadAction routes a structured read action through the Read Pipeline.
func (d *Dispatcher) ReadAction(ctx context.Context, action model.Action, data model.Record, opts model.Options, branch model.BranchContext) model.ReadResult {
	tracer := common.NewTracerFromContext(ctx)
	ctx, span := tracer.Start(ctx, "dispatch.read."+action.String())

	defer span.End()

	result := d.Read.Execute(ctx, action, data, opts, branch)
	if !result.Success && result.Error != "" {
		mopentelemetry.HandleSpanError(&span, "read failed", fmt.Errorf("%s", result.Error))
	}

	return result
}
