package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

func TestResourceFacade_ListBuildsListAction(t *testing.T) {
	read := &fakeReadPipeline{result: model.ReadResult{Success: true, Data: []model.Record{{"id": "n1"}}}}
	d := New(testDispatchRegistry(), read, &fakeWritePipeline{}, nil)

	facade := d.ResourceFacade("node", model.RequestContext{Branch: model.BranchContext{CurrentBranchID: "main", DefaultBranchID: "main"}})

	result := facade.List(context.Background(), model.Options{})
	require.True(t, result.Success)
}

func TestResourceFacade_GetBindsIDIntoData(t *testing.T) {
	read := &fakeReadPipeline{result: model.ReadResult{Success: true, Data: model.Record{"id": "n1"}}}
	d := New(testDispatchRegistry(), read, &fakeWritePipeline{}, nil)

	facade := d.ResourceFacade("node", model.RequestContext{})

	result := facade.Get(context.Background(), "n1", model.Options{})
	require.True(t, result.Success)
}

func TestResourceFacade_CreateUpdateDeleteRouteThroughDispatch(t *testing.T) {
	write := &fakeWritePipeline{result: model.WriteResult{Success: true}}
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, write, nil)

	facade := d.ResourceFacade("node", model.RequestContext{})

	_, err := facade.Create(context.Background(), model.Record{"name": "root"})
	require.NoError(t, err)

	_, err = facade.Update(context.Background(), model.Record{"id": "n1", "name": "renamed"})
	require.NoError(t, err)

	_, err = facade.Delete(context.Background(), "n1")
	require.NoError(t, err)

	assert.Equal(t, 3, write.calls)
}

func TestResourceFacade_CustomRunsDeclaredVerb(t *testing.T) {
	write := &fakeWritePipeline{result: model.WriteResult{Success: true}}
	d := New(testDispatchRegistry(), &fakeReadPipeline{}, write, nil)

	facade := d.ResourceFacade("node", model.RequestContext{})

	_, err := facade.Custom(context.Background(), "archive", model.Record{"id": "n1"})
	require.NoError(t, err)
	assert.Equal(t, 1, write.calls)
}
