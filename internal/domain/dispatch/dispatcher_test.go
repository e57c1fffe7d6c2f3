package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

type fakeReadPipeline struct {
	result model.ReadResult
}

func (f *fakeReadPipeline) Execute(context.Context, model.Action, model.Record, model.Options, model.BranchContext) model.ReadResult {
	return f.result
}

type fakeWritePipeline struct {
	result model.WriteResult
	calls  int
}

func (f *fakeWritePipeline) Execute(context.Context, model.Action, model.Record, model.Options, model.RequestContext) model.WriteResult {
	f.calls++
	return f.result
}

func testDispatchRegistry() model.Registry {
	return model.Registry{
		"node": model.Schema{ActionPrefix: "node", DatabaseKey: "nodes"},
	}
}

func TestDispatch_UnknownResourceReturnsTypedError(t *testing.T) {
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, &fakeWritePipeline{}, nil)

	_, err := d.Dispatch(context.Background(), model.Action{Resource: "ghost", Verb: model.VerbCreate}, model.Record{}, model.RequestContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestDispatch_RecursionGuardRefusesCallbackIntoParentAction(t *testing.T) {
	write := &fakeWritePipeline{result: model.WriteResult{Success: true}}
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, write, nil)

	reqCtx := model.RequestContext{ProcessingJunctions: true, ParentAction: "node.create"}

	_, err := d.Dispatch(context.Background(), model.Action{Resource: "node", Verb: model.VerbCreate}, model.Record{}, reqCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursion guard")
	assert.Equal(t, 0, write.calls, "the write pipeline must never be reached once the recursion guard trips")
}

func TestDispatch_RoutesToWritePipelineOnSuccess(t *testing.T) {
	write := &fakeWritePipeline{result: model.WriteResult{Success: true, Data: model.Record{"id": "n1"}}}
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, write, nil)

	result, err := d.Dispatch(context.Background(), model.Action{Resource: "node", Verb: model.VerbCreate}, model.Record{"name": "root"}, model.RequestContext{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, write.calls)
}

func TestDispatchRaw_ParsesAndRoutesWriteAction(t *testing.T) {
	write := &fakeWritePipeline{result: model.WriteResult{Success: true}}
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, write, nil)

	out, err := d.DispatchRaw(context.Background(), "node.create", model.Record{"name": "root"}, model.Options{}, model.RequestContext{})
	require.NoError(t, err)

	result, ok := out.(model.WriteResult)
	require.True(t, ok)
	assert.True(t, result.Success)
}

func TestDispatchRaw_ParsesAndRoutesReadAction(t *testing.T) {
	read := &fakeReadPipeline{result: model.ReadResult{Success: true, Data: model.Record{"id": "n1"}}}
	d := New(testDispatchRegistry(), read, &fakeWritePipeline{}, nil)

	out, err := d.DispatchRaw(context.Background(), "node.get", model.Record{"id": "n1"}, model.Options{}, model.RequestContext{})
	require.NoError(t, err)

	result, ok := out.(model.ReadResult)
	require.True(t, ok)
	assert.True(t, result.Success)
}

func TestDispatchRaw_MalformedActionReturnsError(t *testing.T) {
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, &fakeWritePipeline{}, nil)

	_, err := d.DispatchRaw(context.Background(), "not-an-action", model.Record{}, model.Options{}, model.RequestContext{})
	require.Error(t, err)
}

func TestReadAction_ReturnsPipelineResultUnchanged(t *testing.T) {
	read := &fakeReadPipeline{result: model.ReadResult{Success: false, Error: "boom"}}
	d := New(testDispatchRegistry(), read, &fakeWritePipeline{}, nil)

	result := d.ReadAction(context.Background(), model.Action{Resource: "node", Verb: model.VerbList}, nil, model.Options{}, model.BranchContext{})
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
}
