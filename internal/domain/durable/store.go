// Package durable defines the port for the typed, versioned, per-tenant
// durable key-value store: one database per tenant, grouped into named
// "stores" (object stores / buckets), with branch-aware overlay reads.
// The concrete engine lives in internal/adapters/bolt.
package durable

import (
	"context"
	"time"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

// ListOptions is the filter/sort/paginate bag applied after overlay
// selection on list reads.
type ListOptions struct {
	Filters map[string]any
	Sort    *model.SortSpec
	Limit   int
	Offset  int
}

// Store is the durable key-value engine every tenant's data plane runs
// against. Implementations own exactly one tenant database at a time;
// switching tenants means constructing a new Store.
type Store interface {
	// Get fetches a single row by its raw storage key (unscoped stores) or
	// compound key (branch-scoped stores, expressed as "baseId\x00branchId"
	// is never used — callers use GetBranchAware for scoped stores; Get is
	// for the literal key only).
	Get(ctx context.Context, storeName, rawKey string) (model.Record, bool, error)

	// Set upserts a record. For branch-scoped stores the effective key is
	// (baseId, branchId) derived from the record itself; key, when
	// non-empty, overrides the derived id for unscoped stores.
	Set(ctx context.Context, storeName string, schema model.Schema, record model.Record, key string) error

	SetMany(ctx context.Context, storeName string, schema model.Schema, records []model.Record) error

	Delete(ctx context.Context, storeName string, schema model.Schema, record model.Record) error

	// GetAll returns every row in the store (no branch overlay).
	GetAll(ctx context.Context, storeName string, opts ListOptions) ([]model.Record, error)

	// GetAllBranchAware applies branch overlay selection before
	// filters/sort/paginate.
	GetAllBranchAware(ctx context.Context, storeName string, schema model.Schema, branch model.BranchContext, opts ListOptions) ([]model.Record, error)

	// GetBranchAware tries the current branch, then the default branch,
	// then the unscoped key.
	GetBranchAware(ctx context.Context, storeName string, schema model.Schema, id string, branch model.BranchContext) (model.Record, bool, error)

	// FindByIDShort is an overlay-filtered search by short identifier
	// (e.g. the human-facing "shortId" auto-value, not the full base id).
	FindByIDShort(ctx context.Context, storeName string, schema model.Schema, short string, branch model.BranchContext) (model.Record, bool, error)

	// Ready blocks until the database is open or timeout elapses,
	// returning false on timeout. Callers MUST bypass the durable layer
	// and go to remote when Ready returns false.
	Ready(timeout time.Duration) bool

	// ClearTenantData wipes all stores without closing the database.
	ClearTenantData(ctx context.Context) error

	Close() error
}
