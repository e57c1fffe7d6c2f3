// Package cache defines the port for the Memory Cache: a short-lived,
// branch-scoped fingerprint→result map with pattern invalidation. The
// concrete engine (an LRU with an optional Redis mirror) lives in
// internal/adapters/memcache.
package cache

import "github.com/cascadedb/branchdata/internal/domain/model"

// Fingerprint builds the cache key for a read: "<resource>@<branchId>:<action>:<json(data)>".
// Branch id is always part of the key so the cache never serves stale data
// across branches, and resource+branchId is kept as a literal leading
// substring so ResourceBranchPattern's invalidation pattern always matches
// every fingerprint for that resource/branch pair.
func Fingerprint(resource, action, dataJSON, branchID string) string {
	return resource + "@" + branchID + ":" + action + ":" + dataJSON
}

// Cache is the Memory Cache port. Implementations are owned by one manager
// object and mutated only from the event loop that runs the read pipeline.
type Cache interface {
	// Get returns the cached ReadResult for fingerprint, if present.
	Get(fingerprint string) (model.ReadResult, bool)

	// Set stores result under fingerprint.
	Set(fingerprint string, result model.ReadResult)

	// Invalidate evicts every entry whose fingerprint contains pattern as a
	// substring, e.g. "node@feat-branch".
	Invalidate(pattern string)

	// Flush evicts every entry.
	Flush()

	// Len reports the number of entries currently cached.
	Len() int
}

// ResourceBranchPattern builds the invalidation pattern for a successful
// write: every cached read for resource under branchID is evicted.
func ResourceBranchPattern(resource, branchID string) string {
	return resource + "@" + branchID
}
