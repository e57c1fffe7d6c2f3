// Package bolt is the concrete Durable Store engine: a bbolt-backed,
// per-tenant database (file "o-<tenantId>.db", mirroring the source
// system's "o-<tenantId>" IndexedDB database name) with one top-level
// bucket per resource/junction store. Branch-scoped stores nest a
// per-base-id sub-bucket so every branch clone of the same entity lives
// together, so one sub-bucket lookup reaches every clone, keeping the compound key
// an ordered pair rather than a joined string.
//
// Grounded on evalgo-org-eve's db/bolt.DB (JSON-in-bucket helpers) and
// cuemby-warren's pkg/storage boltdb engine for the general shape of a
// bbolt-backed store; the nested-bucket-per-entity layout and the
// async-open readiness gate are this package's own, built to support
// branch overlay selection and bounded-wait readiness.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/durable"
	"github.com/cascadedb/branchdata/internal/domain/key"
	"github.com/cascadedb/branchdata/internal/domain/model"
)

// unscopedBranchKey is the bucket key a branch-scoped record is stored
// under when it carries no branchId at all (the "or absent" overlay case).
// Chosen to sort before any real branch id so GetAll's flattening is
// deterministic, and to never collide with a real branch id (branch ids
// are caller-supplied slugs; this key embeds a NUL byte one cannot type).
const unscopedBranchKey = "\x00unscoped"

// DatabaseName returns the per-tenant database file name, "o-<tenantId>",
// mirroring the source system's "o-<tenantId>" database-per-tenant layout.
func DatabaseName(tenantID string) string {
	return "o-" + tenantID
}

// Store is the bbolt-backed durable.Store implementation. One Store owns
// exactly one tenant's database; switching tenants means constructing a
// new Store against a new file (internal/bootstrap does this).
type Store struct {
	tenantID string
	path     string
	schemas  model.Registry
	logger   mlog.Logger

	mu      sync.RWMutex
	db      *bolt.DB
	openErr error
	readyCh chan struct{}
}

var _ durable.Store = (*Store)(nil)

// Open starts opening the tenant database asynchronously — the bbolt file
// open plus bucket provisioning runs on its own goroutine so a caller can
// race it against a readiness timeout the way the source system's browser
// IndexedDB equivalent bounds its own open. Returns immediately; call Ready
// to wait.
func Open(baseDir, tenantID string, schemas model.Registry, logger mlog.Logger) (*Store, error) {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("bolt: create base dir: %w", err)
	}

	s := &Store{
		tenantID: tenantID,
		path:     filepath.Join(baseDir, DatabaseName(tenantID)+".db"),
		schemas:  schemas,
		logger:   logger,
		readyCh:  make(chan struct{}),
	}

	go s.openAsync()

	return s, nil
}

func (s *Store) openAsync() {
	defer close(s.readyCh)

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		s.logger.Errorf("bolt: failed to open %s: %s", s.path, err)
		s.openErr = err

		return
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, schema := range s.schemas {
			if schema.ServerOnly {
				continue
			}

			if _, err := tx.CreateBucketIfNotExists([]byte(schema.DatabaseKey)); err != nil {
				return fmt.Errorf("create bucket %s: %w", schema.DatabaseKey, err)
			}
		}

		return nil
	})
	if err != nil {
		s.logger.Errorf("bolt: failed to provision buckets: %s", err)
		s.openErr = err

		return
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

// Ready implements durable.Store.
func (s *Store) Ready(timeout time.Duration) bool {
	select {
	case <-s.readyCh:
		s.mu.RLock()
		defer s.mu.RUnlock()

		return s.db != nil && s.openErr == nil
	case <-time.After(timeout):
		return false
	}
}

// Close implements durable.Store.
func (s *Store) Close() error {
	<-s.readyCh

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// DefaultOpenTimeout bounds how long a caller waits on Ready before
// deciding to proceed without the durable store.
const DefaultOpenTimeout = 2 * time.Second

// RawDB exposes the underlying bbolt handle once open, so a sibling
// component that needs its own bucket (internal/adapters/queue's Sync
// Queue) can share the same database file instead of opening a second one.
func (s *Store) RawDB() (*bolt.DB, error) {
	return s.openedDB()
}

func (s *Store) openedDB() (*bolt.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, durableUnavailable(s.openErr)
	}

	return s.db, nil
}

func durableUnavailable(cause error) error {
	return &durableUnavailableErr{cause: cause}
}

type durableUnavailableErr struct{ cause error }

func (e *durableUnavailableErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("durable store not ready: %s", e.cause)
	}

	return "durable store not ready"
}

func (e *durableUnavailableErr) Unwrap() error { return e.cause }

func branchKey(r model.Record) string {
	if b := r.BranchID(); b != "" {
		return b
	}

	return unscopedBranchKey
}

// Get implements durable.Store: a literal-key lookup, used directly for
// NotHasBranchContext stores and internally for any raw read.
func (s *Store) Get(_ context.Context, storeName, rawKey string) (model.Record, bool, error) {
	db, err := s.openedDB()
	if err != nil {
		return nil, false, err
	}

	var (
		rec   model.Record
		found bool
	)

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(rawKey))
		if v == nil {
			return nil
		}

		found = true

		return json.Unmarshal(v, &rec)
	})

	return rec, found, err
}

// Set implements durable.Store.
func (s *Store) Set(_ context.Context, storeName string, schema model.Schema, record model.Record, overrideKey string) error {
	db, err := s.openedDB()
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("bolt: marshal record: %w", err)
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(storeName))
		if err != nil {
			return err
		}

		if schema.NotHasBranchContext {
			k := overrideKey
			if k == "" {
				k = schema.IndexedDBKey(record)
			}

			return b.Put([]byte(k), data)
		}

		baseID := key.BaseID(record)
		if schema.IndexedDBKey != nil {
			if id := schema.IndexedDBKey(record); id != "" {
				baseID = id
			}
		}

		eb, err := b.CreateBucketIfNotExists(key.EntityBucket(baseID))
		if err != nil {
			return err
		}

		return eb.Put([]byte(branchKey(record)), data)
	})
}

// SetMany implements durable.Store.
func (s *Store) SetMany(ctx context.Context, storeName string, schema model.Schema, records []model.Record) error {
	for _, r := range records {
		if err := s.Set(ctx, storeName, schema, r, ""); err != nil {
			return err
		}
	}

	return nil
}

// Delete implements durable.Store.
func (s *Store) Delete(_ context.Context, storeName string, schema model.Schema, record model.Record) error {
	db, err := s.openedDB()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return nil
		}

		if schema.NotHasBranchContext {
			k := schema.IndexedDBKey(record)
			return b.Delete([]byte(k))
		}

		baseID := key.BaseID(record)
		if schema.IndexedDBKey != nil {
			if id := schema.IndexedDBKey(record); id != "" {
				baseID = id
			}
		}

		eb := b.Bucket(key.EntityBucket(baseID))
		if eb == nil {
			return nil
		}

		return eb.Delete([]byte(branchKey(record)))
	})
}

// GetAll implements durable.Store: flattens every row in the store with no
// overlay filtering, whether the bucket holds flat keys (NotHasBranchContext
// stores) or nested per-entity sub-buckets (branch-scoped stores) — bbolt's
// ForEach reports a sub-bucket entry via a nil value, so the flat/nested
// distinction never needs a schema.
func (s *Store) GetAll(_ context.Context, storeName string, opts durable.ListOptions) ([]model.Record, error) {
	db, err := s.openedDB()
	if err != nil {
		return nil, err
	}

	var rows []model.Record

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			if v == nil {
				eb := b.Bucket(k)
				return eb.ForEach(func(_, bv []byte) error {
					var rec model.Record
					if err := json.Unmarshal(bv, &rec); err != nil {
						return err
					}

					rows = append(rows, rec)

					return nil
				})
			}

			var rec model.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			rows = append(rows, rec)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return applyListOptions(rows, opts), nil
}

// GetAllBranchAware implements durable.Store's overlay read contract:
// candidates whose branchId is current/default/absent are grouped by
// lineage, and the highest-scoring row per group (tie-broken by
// updatedAt/createdAt/id) survives.
func (s *Store) GetAllBranchAware(_ context.Context, storeName string, schema model.Schema, branch model.BranchContext, opts durable.ListOptions) ([]model.Record, error) {
	db, err := s.openedDB()
	if err != nil {
		return nil, err
	}

	var candidates []model.Record

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			if v != nil {
				// Flat (non-nested) layout: no overlay grouping applies.
				var rec model.Record
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}

				candidates = append(candidates, rec)

				return nil
			}

			eb := b.Bucket(k)

			return eb.ForEach(func(bk, bv []byte) error {
				var rec model.Record
				if err := json.Unmarshal(bv, &rec); err != nil {
					return err
				}

				bid := rec.BranchID()
				if bid != "" && bid != branch.CurrentBranchID && bid != branch.DefaultBranchID {
					return nil
				}

				candidates = append(candidates, rec)

				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	winners := overlayWinners(schema, branch, candidates)

	return applyListOptions(winners, opts), nil
}

// overlayWinners selects overlay candidates: on the default branch, only
// default/absent rows are eligible; otherwise group by lineage and keep the
// single highest-scoring row per group.
func overlayWinners(schema model.Schema, branch model.BranchContext, candidates []model.Record) []model.Record {
	if branch.IsDefault() {
		out := make([]model.Record, 0, len(candidates))

		for _, r := range candidates {
			if bid := r.BranchID(); bid == "" || bid == branch.DefaultBranchID {
				out = append(out, r)
			}
		}

		return out
	}

	groups := make(map[string]model.Record)
	order := make([]string, 0, len(candidates))

	for _, r := range candidates {
		lineage := key.LineageOf(schema, r)

		cur, ok := groups[lineage]
		if !ok {
			groups[lineage] = r
			order = append(order, lineage)

			continue
		}

		if betterCandidate(cur, r, branch) {
			continue
		}

		groups[lineage] = r
	}

	out := make([]model.Record, 0, len(order))
	for _, lineage := range order {
		out = append(out, groups[lineage])
	}

	return out
}

// betterCandidate reports whether the incumbent beats the challenger under
// branchScore-then-tieBreak ordering.
func betterCandidate(incumbent, challenger model.Record, branch model.BranchContext) bool {
	si, sc := key.BranchScore(incumbent, branch), key.BranchScore(challenger, branch)
	if si != sc {
		return si > sc
	}

	return key.TieBreak(incumbent, challenger)
}

// GetBranchAware implements durable.Store.
func (s *Store) GetBranchAware(ctx context.Context, storeName string, schema model.Schema, id string, branch model.BranchContext) (model.Record, bool, error) {
	if schema.NotHasBranchContext {
		return s.Get(ctx, storeName, id)
	}

	db, err := s.openedDB()
	if err != nil {
		return nil, false, err
	}

	tryKey := func(branchID string) (model.Record, bool, error) {
		var (
			rec   model.Record
			found bool
		)

		err := db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(storeName))
			if b == nil {
				return nil
			}

			eb := b.Bucket(key.EntityBucket(id))
			if eb == nil {
				return nil
			}

			v := eb.Get([]byte(branchID))
			if v == nil {
				return nil
			}

			found = true

			return json.Unmarshal(v, &rec)
		})

		return rec, found, err
	}

	if rec, ok, err := tryKey(branch.CurrentBranchID); ok || err != nil {
		return rec, ok, err
	}

	if branch.CurrentBranchID != branch.DefaultBranchID {
		if rec, ok, err := tryKey(branch.DefaultBranchID); ok || err != nil {
			return rec, ok, err
		}
	}

	return tryKey(unscopedBranchKey)
}

// FindByIDShort implements durable.Store: an overlay-filtered search by the
// schema's declared short-id field (the field whose AutoValueSpec.Source
// matches "auto.<prefix>ShortId").
func (s *Store) FindByIDShort(ctx context.Context, storeName string, schema model.Schema, short string, branch model.BranchContext) (model.Record, bool, error) {
	field, ok := shortIDField(schema)
	if !ok {
		return nil, false, nil
	}

	rows, err := s.GetAllBranchAware(ctx, storeName, schema, branch, durable.ListOptions{})
	if err != nil {
		return nil, false, err
	}

	for _, r := range rows {
		if r.String(field) == short {
			return r, true, nil
		}
	}

	return nil, false, nil
}

func shortIDField(schema model.Schema) (string, bool) {
	for _, f := range schema.Fields {
		if f.AutoValue == nil {
			continue
		}

		if strings.HasPrefix(f.AutoValue.Source, "auto.") && strings.HasSuffix(f.AutoValue.Source, "ShortId") {
			return f.Key, true
		}
	}

	return "", false
}

// ClearTenantData implements durable.Store: wipes every declared bucket
// without closing the database.
func (s *Store) ClearTenantData(_ context.Context) error {
	db, err := s.openedDB()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		for _, schema := range s.schemas {
			if schema.ServerOnly {
				continue
			}

			if err := tx.DeleteBucket([]byte(schema.DatabaseKey)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}

			if _, err := tx.CreateBucketIfNotExists([]byte(schema.DatabaseKey)); err != nil {
				return err
			}
		}

		return nil
	})
}

func applyListOptions(rows []model.Record, opts durable.ListOptions) []model.Record {
	rows = applyFilters(rows, opts.Filters)

	if opts.Sort != nil {
		sortRows(rows, *opts.Sort)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return []model.Record{}
		}

		rows = rows[opts.Offset:]
	}

	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}

	return rows
}

func applyFilters(rows []model.Record, filters map[string]any) []model.Record {
	if len(filters) == 0 {
		return rows
	}

	out := rows[:0:0]

	for _, r := range rows {
		if matchesFilters(r, filters) {
			out = append(out, r)
		}
	}

	return out
}

func matchesFilters(r model.Record, filters map[string]any) bool {
	for field, want := range filters {
		if got, ok := r[field]; !ok || !equalFilterValue(got, want) {
			return false
		}
	}

	return true
}

func equalFilterValue(got, want any) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func sortRows(rows []model.Record, spec model.SortSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := fmt.Sprint(rows[i][spec.Field]), fmt.Sprint(rows[j][spec.Field])
		if strings.EqualFold(spec.Dir, "desc") {
			return a > b
		}

		return a < b
	})
}
