// Package queue is the concrete Sync Queue engine: a bbolt-backed FIFO of
// pending writes, ordered by a monotonic sequence counter, with
// cenkalti/backoff/v4-driven exponential backoff for FK-constraint-type
// transient errors. Grounded on internal/adapters/bolt's bucket-per-store
// pattern (this is just another bbolt bucket), with the retry policy kept
// as an explicit backoff object.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	bolt "go.etcd.io/bbolt"

	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/syncqueue"
)

const bucketName = "__syncQueue"

// clientOnlyExtra lists the metadata fields, besides "_"-prefixed ones,
// stripped from a payload when it is enqueued.
var clientOnlyExtra = []string{"branchTimestamp"}

// Queue is the bbolt-backed syncqueue.Queue implementation.
type Queue struct {
	db     *bolt.DB
	logger mlog.Logger

	mu          sync.Mutex
	processing  bool
	lastError   string
	lastAttempt time.Time
}

var _ syncqueue.Queue = (*Queue)(nil)

// New opens (or reuses) a bucket in db for the queue. The caller owns db's
// lifecycle; the queue never closes it.
func New(db *bolt.DB, logger mlog.Logger) (*Queue, error) {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("queue: provision bucket: %w", err)
	}

	return &Queue{db: db, logger: logger}, nil
}

type record struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Data       map[string]any `json:"data"`
	RetryCount int            `json:"retryCount"`
	Timestamp  time.Time      `json:"timestamp"`
	NotBefore  time.Time      `json:"notBefore"`
}

// Enqueue implements syncqueue.Queue.
func (q *Queue) Enqueue(_ context.Context, action string, data map[string]any) (string, error) {
	var id string

	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		id = fmt.Sprintf("queue-%020d", seq)

		rec := record{
			ID:        id,
			Action:    action,
			Data:      stripClientOnly(data),
			Timestamp: time.Now(),
		}

		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return b.Put(sequenceKey(seq), buf)
	})

	return id, err
}

// ProcessNext implements syncqueue.Queue: delivers the oldest eligible
// (NotBefore has elapsed) pending item. Re-entrant-safe via the processing
// flag — a concurrent call while one is already in flight returns
// (false, nil) rather than racing the same item.
func (q *Queue) ProcessNext(ctx context.Context, deliver func(context.Context, syncqueue.Item) error) (bool, error) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return false, nil
	}

	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	seq, rec, ok, err := q.peekEligible()
	if err != nil || !ok {
		return false, err
	}

	deliverErr := deliver(ctx, syncqueue.Item{
		ID:         rec.ID,
		Action:     rec.Action,
		Data:       rec.Data,
		RetryCount: rec.RetryCount,
		Timestamp:  rec.Timestamp,
	})

	q.mu.Lock()
	q.lastAttempt = time.Now()

	if deliverErr != nil {
		q.lastError = deliverErr.Error()
	} else {
		q.lastError = ""
	}
	q.mu.Unlock()

	if deliverErr == nil {
		return true, q.remove(seq)
	}

	return true, q.reconcileFailure(seq, rec, deliverErr)
}

func (q *Queue) reconcileFailure(seq uint64, rec record, deliverErr error) error {
	switch syncqueue.Classify(deliverErr) {
	case syncqueue.ClassificationPermanent:
		q.logger.Errorf("queue: dropping permanently-failed item %s (%s): %s", rec.ID, rec.Action, deliverErr)
		return q.remove(seq)
	default:
		if rec.RetryCount+1 >= syncqueue.MaxRetries {
			q.logger.Errorf("queue: item %s (%s) exceeded max retries, dropping: %s", rec.ID, rec.Action, deliverErr)
			return q.remove(seq)
		}

		rec.RetryCount++
		rec.NotBefore = time.Now().Add(backoffDelay(rec.RetryCount, deliverErr))

		return q.requeue(seq, rec)
	}
}

// backoffDelay applies exponential backoff (base 2s, cap 8s) for
// FK-classified errors, and immediate retry for any other transient error.
func backoffDelay(attempt int, cause error) time.Duration {
	if !syncqueue.IsFKViolation(cause) {
		return 0
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = syncqueue.BackoffBase
	eb.MaxInterval = syncqueue.BackoffCap
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}

	if d > syncqueue.BackoffCap {
		d = syncqueue.BackoffCap
	}

	return d
}

func (q *Queue) peekEligible() (uint64, record, bool, error) {
	var (
		seq   uint64
		rec   record
		found bool
	)

	err := q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		c := b.Cursor()

		now := time.Now()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			if !r.NotBefore.IsZero() && r.NotBefore.After(now) {
				continue
			}

			seq = binary.BigEndian.Uint64(k)
			rec = r
			found = true

			return nil
		}

		return nil
	})

	return seq, rec, found, err
}

func (q *Queue) remove(seq uint64) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(sequenceKey(seq))
	})
}

func (q *Queue) requeue(seq uint64, rec record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(sequenceKey(seq), buf)
	})
}

// Clear implements syncqueue.Queue.
func (q *Queue) Clear(_ context.Context) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}

		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))

		return err
	})
}

// Status implements syncqueue.Queue.
func (q *Queue) Status(_ context.Context) (syncqueue.Status, error) {
	q.mu.Lock()
	st := syncqueue.Status{InFlight: q.processing, LastError: q.lastError, LastAttempt: q.lastAttempt}
	q.mu.Unlock()

	err := q.db.View(func(tx *bolt.Tx) error {
		st.Pending = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})

	return st, err
}

func sequenceKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)

	return buf
}

// stripClientOnly removes fields prefixed with "_" or "__", plus
// "branchTimestamp", before a payload is handed to the delivery callback:
// client-only metadata fields never reach the remote endpoint.
func stripClientOnly(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))

	for k, v := range data {
		if len(k) > 0 && k[0] == '_' {
			continue
		}

		if contains(clientOnlyExtra, k) {
			continue
		}

		out[k] = v
	}

	return out
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}

	return false
}
