package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/autovalue"
	"github.com/cascadedb/branchdata/internal/domain/model"
	"github.com/cascadedb/branchdata/internal/domain/syncqueue"
)

// fakeQueue is an in-memory stand-in for syncqueue.Queue.
type fakeQueue struct {
	enqueued []model.Record
}

func (q *fakeQueue) Enqueue(_ context.Context, _ string, data map[string]any) (string, error) {
	q.enqueued = append(q.enqueued, data)
	return "item-1", nil
}

func (q *fakeQueue) ProcessNext(context.Context, func(context.Context, syncqueue.Item) error) (bool, error) {
	return false, nil
}

func (q *fakeQueue) Clear(context.Context) error { return nil }

func (q *fakeQueue) Status(context.Context) (syncqueue.Status, error) {
	return syncqueue.Status{Pending: len(q.enqueued)}, nil
}

var _ syncqueue.Queue = (*fakeQueue)(nil)

func fixedAutoValue() *autovalue.Service {
	s := autovalue.New()
	s.NewID = func() string { return "fixed-id" }

	return s
}

func newTestWrite(d *fakeDurable, c *fakeCache, tr *fakeTransportRT, q *fakeQueue) *Write {
	return &Write{
		Registry:  testRegistryForPipeline(),
		Durable:   d,
		Cache:     c,
		Transport: tr,
		Queue:     q,
		AutoValue: fixedAutoValue(),
		Logger:    &mlog.NoneLogger{},
	}
}

func baseReqCtx() model.RequestContext {
	return model.RequestContext{Branch: model.BranchContext{CurrentBranchID: "main", DefaultBranchID: "main", TenantID: "t1"}}
}

func TestExecute_UnknownActionReturnsFailure_Write(t *testing.T) {
	w := newTestWrite(newFakeDurable(), newFakeCache(), &fakeTransportRT{}, &fakeQueue{})

	result := w.Execute(context.Background(), model.Action{Resource: "ghost", Verb: model.VerbCreate}, model.Record{}, model.Options{}, baseReqCtx())
	assert.False(t, result.Success)
}

func TestExecute_MissingBranchContextFailsValidation(t *testing.T) {
	w := newTestWrite(newFakeDurable(), newFakeCache(), &fakeTransportRT{}, &fakeQueue{})

	result := w.Execute(context.Background(), model.Action{Resource: "node", Verb: model.VerbCreate}, model.Record{"name": "root"}, model.Options{}, model.RequestContext{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "branch context")
}

func TestExecute_CreateAppliesOptimisticallyThenReconciles(t *testing.T) {
	d := newFakeDurable()
	tr := &fakeTransportRT{resp: model.RemoteResponse{Success: true, Data: map[string]any{"id": "server-id", "name": "root", "branchId": "main"}}}
	q := &fakeQueue{}
	w := newTestWrite(d, newFakeCache(), tr, q)

	result := w.Execute(context.Background(), model.Action{Resource: "node", Verb: model.VerbCreate}, model.Record{"name": "root"}, model.Options{}, baseReqCtx())
	require.True(t, result.Success)

	rec := result.Data
	require.NotNil(t, rec)
	assert.Equal(t, "server-id", rec.ID(), "after reconciliation the authoritative server id must replace the optimistic id")
	assert.NotContains(t, rec, "__optimistic")
}

func TestExecute_TransientRemoteFailureQueuesAndReturnsSuccess(t *testing.T) {
	d := newFakeDurable()
	tr := &fakeTransportRT{err: common.TransientNetwork{Message: "dial tcp: timeout"}}
	q := &fakeQueue{}
	w := newTestWrite(d, newFakeCache(), tr, q)

	result := w.Execute(context.Background(), model.Action{Resource: "node", Verb: model.VerbCreate}, model.Record{"name": "root"}, model.Options{}, baseReqCtx())
	require.True(t, result.Success)
	assert.True(t, result.Queued)
	assert.Len(t, q.enqueued, 1)
}

func TestExecute_PermanentRemoteFailureReturnsUnsuccessful(t *testing.T) {
	d := newFakeDurable()
	tr := &fakeTransportRT{err: common.ConflictPermanent{Message: "already exists"}}
	q := &fakeQueue{}
	w := newTestWrite(d, newFakeCache(), tr, q)

	result := w.Execute(context.Background(), model.Action{Resource: "node", Verb: model.VerbCreate}, model.Record{"name": "root"}, model.Options{}, baseReqCtx())
	assert.False(t, result.Success)
	assert.Empty(t, q.enqueued)
}

func TestExecute_UpdateOffDefaultBranchForksRowBeforeWrite(t *testing.T) {
	d := newFakeDurable()
	d.rows["nodes"] = []model.Record{{"id": "n1", "branchId": "main", "name": "original", "createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z"}}

	tr := &fakeTransportRT{resp: model.RemoteResponse{Success: true, Data: map[string]any{"id": "n1", "name": "renamed", "branchId": "feat-1"}}}
	q := &fakeQueue{}
	w := newTestWrite(d, newFakeCache(), tr, q)

	reqCtx := model.RequestContext{Branch: model.BranchContext{CurrentBranchID: "feat-1", DefaultBranchID: "main", TenantID: "t1"}}

	result := w.Execute(context.Background(), model.Action{Resource: "node", Verb: model.VerbUpdate}, model.Record{"id": "n1", "name": "renamed"}, model.Options{}, reqCtx)
	require.True(t, result.Success)

	var forked bool

	for _, r := range d.rows["nodes"] {
		if r.BranchID() == "feat-1" && r.String("originalId") == "n1" {
			forked = true
		}
	}

	assert.True(t, forked, "the copy-on-write guard must clone the default-branch row onto the feature branch before the update lands")
}

func TestExecute_PartialUpdatePayloadPreservesUnrelatedExistingFields(t *testing.T) {
	d := newFakeDurable()
	d.rows["nodes"] = []model.Record{{
		"id": "p1", "branchId": "feat-1", "name": "A", "description": "X",
		"originalId": "p1", "createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z",
	}}

	tr := &fakeTransportRT{err: common.TransientNetwork{Message: "dial tcp: timeout"}}
	q := &fakeQueue{}
	w := newTestWrite(d, newFakeCache(), tr, q)

	reqCtx := model.RequestContext{Branch: model.BranchContext{CurrentBranchID: "feat-1", DefaultBranchID: "main", TenantID: "t1"}}

	result := w.Execute(context.Background(), model.Action{Resource: "node", Verb: model.VerbUpdate}, model.Record{"id": "p1", "name": "B"}, model.Options{}, reqCtx)
	require.True(t, result.Success)
	require.True(t, result.Queued)

	var stored model.Record

	for _, r := range d.rows["nodes"] {
		if r.ID() == "p1" && r.BranchID() == "feat-1" {
			stored = r
		}
	}

	require.NotNil(t, stored, "the optimistic write must land at the same (id, branchId) key as the pre-existing row")
	assert.Equal(t, "B", stored.String("name"))
	assert.Equal(t, "X", stored.String("description"), "a field absent from the update delta must survive the optimistic merge")
	assert.Equal(t, "p1", stored.String("originalId"), "originalId must survive a partial update delta")
}

func TestStripClientOnly_RemovesUnderscoreAndTimestampFields(t *testing.T) {
	in := model.Record{"id": "n1", "_local": true, "__optimistic": true, "branchTimestamp": "x", "name": "root"}
	out := stripClientOnly(in)

	assert.Equal(t, model.Record{"id": "n1", "name": "root"}, out)
}
