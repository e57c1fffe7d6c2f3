package junction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

func testRegistry() model.Registry {
	return model.Registry{
		"node": model.Schema{
			ActionPrefix: "node",
		},
		"process": model.Schema{
			ActionPrefix: "process",
		},
		"nodeProcesses": model.Schema{
			ActionPrefix: "nodeProcesses",
			FieldMappings: map[string]model.FieldMapping{
				"nodeId":    {Type: "relation", Target: "node"},
				"processId": {Type: "relation", Target: "process"},
				"branchId":  {Type: "relation", Target: "branch"},
			},
			JunctionConfig: &model.JunctionConfig{
				AutoCreateOnParentCreate: true,
				NavigationContext:        map[string]string{"nodeId": "navigation.nodeId"},
			},
		},
	}
}

type fakeDispatcher struct {
	calls []fakeCall
	err   error
}

type fakeCall struct {
	action  model.Action
	data    model.Record
	reqCtx  model.RequestContext
}

func (f *fakeDispatcher) Dispatch(_ context.Context, action model.Action, data model.Record, reqCtx model.RequestContext) (model.WriteResult, error) {
	f.calls = append(f.calls, fakeCall{action: action, data: data, reqCtx: reqCtx})
	if f.err != nil {
		return model.WriteResult{}, f.err
	}

	return model.WriteResult{Success: true, Data: data}, nil
}

func TestInferParentAction_PicksNonBranchRelation(t *testing.T) {
	registry := testRegistry()
	schema := registry["nodeProcesses"]

	assert.Equal(t, "node.create", inferParentAction(registry, schema))
}

func TestShouldAutoCreate_RequiresEveryNavigationKey(t *testing.T) {
	schema := testRegistry()["nodeProcesses"]

	assert.False(t, ShouldAutoCreate(schema, model.Record{}, nil))
	assert.True(t, ShouldAutoCreate(schema, model.Record{}, map[string]any{"nodeId": "n1"}))
	assert.True(t, ShouldAutoCreate(schema, model.Record{"nodeId": "n1"}, nil))
}

func TestAfterParentCreate_DispatchesJunctionCreateWithParentIDBound(t *testing.T) {
	m := New(testRegistry())
	dispatcher := &fakeDispatcher{}

	parentData := model.Record{"id": "n1", "name": "root"}
	reqCtx := model.RequestContext{NavigationContext: map[string]any{"nodeId": "n1"}}

	errs := m.AfterParentCreate(context.Background(), dispatcher, "node.create", parentData, reqCtx)
	require.Empty(t, errs)
	require.Len(t, dispatcher.calls, 1)

	call := dispatcher.calls[0]
	assert.Equal(t, model.Action{Resource: "nodeProcesses", Verb: model.VerbCreate}, call.action)
	assert.Equal(t, "n1", call.data["nodeId"])
	assert.True(t, call.reqCtx.ProcessingJunctions)
	assert.Equal(t, "node.create", call.reqCtx.ParentAction)
}

func TestBuildCreatePayload_BindsParentBaseIDNotCloneID(t *testing.T) {
	m := New(testRegistry())
	schema := testRegistry()["nodeProcesses"]

	// parentData is a copy-on-write fork of "p1": its own id field has
	// diverged onto the branch clone, but originalId still points at the
	// row every branch's clones share a lineage with. processId has no
	// navigationContext entry, so it can only be filled by the fk-binding
	// fallback (step 3), which is exactly what's under test here.
	parentData := model.Record{"id": "p1-clone", "originalId": "p1", "branchId": "feat-1", "name": "root"}

	payload := m.buildCreatePayload(schema, "process.create", parentData, nil)
	assert.Equal(t, "p1", payload["processId"], "the junction fk must bind the parent's base id so every branch clone's junction rows share one lineage")
}

func TestAfterParentCreate_SkipsWhenNavigationContextMissing(t *testing.T) {
	m := New(testRegistry())
	dispatcher := &fakeDispatcher{}

	errs := m.AfterParentCreate(context.Background(), dispatcher, "node.create", model.Record{"id": "n1"}, model.RequestContext{})
	require.Empty(t, errs)
	assert.Empty(t, dispatcher.calls)
}

func TestAfterParentCreate_CollectsDispatchErrors(t *testing.T) {
	m := New(testRegistry())
	dispatcher := &fakeDispatcher{err: assertErr{}}

	errs := m.AfterParentCreate(context.Background(), dispatcher, "node.create", model.Record{"id": "n1"}, model.RequestContext{NavigationContext: map[string]any{"nodeId": "n1"}})
	assert.Len(t, errs, 1)
}

func TestAfterParentUpdate_OnlyRefreshesNamedFields(t *testing.T) {
	m := New(testRegistry())
	dispatcher := &fakeDispatcher{}

	errs := m.AfterParentUpdate(context.Background(), dispatcher, "node.create", "n1", model.Record{"nodeId": "n1-renamed"}, model.RequestContext{})
	require.Empty(t, errs)
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, model.VerbUpdate, dispatcher.calls[0].action.Verb)
	assert.Equal(t, "n1", dispatcher.calls[0].data["nodeId"])
}

func TestAfterParentUpdate_NoOpWhenNoNamedFieldChanged(t *testing.T) {
	m := New(testRegistry())
	dispatcher := &fakeDispatcher{}

	errs := m.AfterParentUpdate(context.Background(), dispatcher, "node.create", "n1", model.Record{"name": "renamed"}, model.RequestContext{})
	require.Empty(t, errs)
	assert.Empty(t, dispatcher.calls)
}

func TestAfterParentDelete_DispatchesJunctionDeleteByParentFK(t *testing.T) {
	m := New(testRegistry())
	dispatcher := &fakeDispatcher{}

	errs := m.AfterParentDelete(context.Background(), dispatcher, "node.create", "n1", model.RequestContext{})
	require.Empty(t, errs)
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, model.VerbDelete, dispatcher.calls[0].action.Verb)
	assert.Equal(t, "n1", dispatcher.calls[0].data["nodeId"])
}

type assertErr struct{}

func (assertErr) Error() string { return "dispatch failed" }
