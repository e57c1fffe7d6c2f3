package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/cascadedb/branchdata/internal/domain/syncqueue"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queue.db")

	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestEnqueueStripsClientOnlyFields(t *testing.T) {
	q, err := New(openTestDB(t), nil)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "node.create", map[string]any{
		"id":              "n1",
		"name":            "root",
		"_local":          true,
		"__optimistic":    true,
		"branchTimestamp": "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	var delivered map[string]any

	ok, err := q.ProcessNext(context.Background(), func(_ context.Context, item syncqueue.Item) error {
		delivered = item.Data
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "n1", delivered["id"])
	assert.Equal(t, "root", delivered["name"])
	assert.NotContains(t, delivered, "_local")
	assert.NotContains(t, delivered, "__optimistic")
	assert.NotContains(t, delivered, "branchTimestamp")
}

func TestProcessNext_SuccessRemovesItem(t *testing.T) {
	q, err := New(openTestDB(t), nil)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "node.create", map[string]any{"id": "n1"})
	require.NoError(t, err)

	ok, err := q.ProcessNext(context.Background(), func(_ context.Context, _ syncqueue.Item) error {
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	status, err := q.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending)
}

func TestProcessNext_PermanentFailureDropsItem(t *testing.T) {
	q, err := New(openTestDB(t), nil)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "node.create", map[string]any{"id": "n1"})
	require.NoError(t, err)

	ok, err := q.ProcessNext(context.Background(), func(_ context.Context, _ syncqueue.Item) error {
		return errors.New("already exists")
	})
	require.NoError(t, err)
	require.True(t, ok)

	status, err := q.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending, "a permanent failure must drop the item rather than retry it")
	assert.Contains(t, status.LastError, "already exists")
}

func TestProcessNext_TransientFailureRequeuesUntilMaxRetries(t *testing.T) {
	q, err := New(openTestDB(t), nil)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "node.create", map[string]any{"id": "n1"})
	require.NoError(t, err)

	for i := 0; i < syncqueue.MaxRetries; i++ {
		ok, err := q.ProcessNext(context.Background(), func(_ context.Context, _ syncqueue.Item) error {
			return errors.New("connection refused")
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	status, err := q.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending, "item must be dropped once it exceeds MaxRetries")
}

func TestProcessNext_EmptyQueueReturnsFalse(t *testing.T) {
	q, err := New(openTestDB(t), nil)
	require.NoError(t, err)

	ok, err := q.ProcessNext(context.Background(), func(_ context.Context, _ syncqueue.Item) error {
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	q, err := New(openTestDB(t), nil)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "node.create", map[string]any{"id": "n1"})
	require.NoError(t, err)

	require.NoError(t, q.Clear(context.Background()))

	status, err := q.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending)
}

func TestBackoffDelay_FKViolationGrowsAndCaps(t *testing.T) {
	fk := errors.New("Foreign key constraint violated")

	d1 := backoffDelay(1, fk)
	d2 := backoffDelay(2, fk)
	d3 := backoffDelay(5, fk)

	assert.Equal(t, syncqueue.BackoffBase, d1)
	assert.True(t, d2 > d1)
	assert.LessOrEqual(t, d3, syncqueue.BackoffCap)
}

func TestBackoffDelay_NonFKIsImmediate(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoffDelay(3, errors.New("connection refused")))
}
