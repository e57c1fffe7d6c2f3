package dispatch

import (
	"context"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

// Resource is the typed method set the Action Dispatcher & Resource Facade
// generates for one schema entry: {list, get, create, update, delete}
// calling Dispatch/Read underneath. Custom verbs declared on a schema are
// reached via Custom.
type Resource struct {
	name       string
	dispatcher *Dispatcher
	reqCtx     model.RequestContext
}

// ResourceFacade returns the typed method set for resource, bound to the
// request context ctx carries (branch, options, navigation). A facade is
// cheap to construct and carries no state of its own beyond the binding.
func (d *Dispatcher) ResourceFacade(resource string, reqCtx model.RequestContext) Resource {
	return Resource{name: resource, dispatcher: d, reqCtx: reqCtx}
}

// List runs the resource's ".list" action.
func (r Resource) List(ctx context.Context, opts model.Options) model.ReadResult {
	return r.dispatcher.ReadAction(ctx, model.Action{Resource: r.name, Verb: model.VerbList}, nil, opts, r.reqCtx.Branch)
}

// Get runs the resource's ".get" action for id.
func (r Resource) Get(ctx context.Context, id string, opts model.Options) model.ReadResult {
	return r.dispatcher.ReadAction(ctx, model.Action{Resource: r.name, Verb: model.VerbGet}, model.Record{"id": id}, opts, r.reqCtx.Branch)
}

// Create runs the resource's ".create" action.
func (r Resource) Create(ctx context.Context, data model.Record) (model.WriteResult, error) {
	return r.dispatcher.Dispatch(ctx, model.Action{Resource: r.name, Verb: model.VerbCreate}, data, r.reqCtx)
}

// Update runs the resource's ".update" action.
func (r Resource) Update(ctx context.Context, data model.Record) (model.WriteResult, error) {
	return r.dispatcher.Dispatch(ctx, model.Action{Resource: r.name, Verb: model.VerbUpdate}, data, r.reqCtx)
}

// Delete runs the resource's ".delete" action for id.
func (r Resource) Delete(ctx context.Context, id string) (model.WriteResult, error) {
	return r.dispatcher.Dispatch(ctx, model.Action{Resource: r.name, Verb: model.VerbDelete}, model.Record{"id": id}, r.reqCtx)
}

// Custom runs an arbitrary declared verb the well-known five don't cover.
func (r Resource) Custom(ctx context.Context, verb string, data model.Record) (model.WriteResult, error) {
	return r.dispatcher.Dispatch(ctx, model.Action{Resource: r.name, Custom: verb}, data, r.reqCtx)
}
