// Package memcache is the concrete engine behind the Memory Cache port: an
// in-process LRU keyed by read fingerprint, with an optional Redis mirror so
// a second tab (or a second process sharing the same tenant) observes fresh
// invalidations — grounded on common/mredis's client and on
// AKJUS-bsc-erigon's use of hashicorp/golang-lru/v2 for bounded in-memory
// caching.
package memcache

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/cache"
	"github.com/cascadedb/branchdata/internal/domain/model"
)

// Mirror is the optional channel invalidation patterns are also published
// to, so other processes sharing the tenant observe invalidations; cache
// entries themselves are never written to it. Satisfied by
// internal/adapters/memcache.RedisMirror; nil disables mirroring.
type Mirror interface {
	Invalidate(ctx context.Context, pattern string)
}

// LRU is the default Memory Cache implementation: a bounded, evict-on-
// pressure map guarded by a mutex since the owning manager may be invoked
// from more than one goroutine serving concurrent dispatches (the dispatch
// itself is cooperative only within one request).
type LRU struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, model.ReadResult]
	mirror Mirror
	logger mlog.Logger
}

// DefaultSize is the eviction bound used when none is supplied — a
// generous but bounded default chosen to keep memory use predictable under
// long sessions.
const DefaultSize = 2048

// New builds an LRU-backed cache with the given capacity. A non-positive
// size falls back to DefaultSize.
func New(size int, mirror Mirror, logger mlog.Logger) (*LRU, error) {
	if size <= 0 {
		size = DefaultSize
	}

	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	c, err := lru.New[string, model.ReadResult](size)
	if err != nil {
		return nil, err
	}

	return &LRU{cache: c, mirror: mirror, logger: logger}, nil
}

var _ cache.Cache = (*LRU)(nil)

// Get implements cache.Cache.
func (l *LRU) Get(fingerprint string) (model.ReadResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.cache.Get(fingerprint)
}

// Set implements cache.Cache.
func (l *LRU) Set(fingerprint string, result model.ReadResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(fingerprint, result)
}

// Invalidate implements cache.Cache: evicts every key containing pattern as
// a substring. golang-lru/v2 has no native prefix/substring scan, so this
// walks the key snapshot once under lock, accepting an O(n) pass for an
// operation that is rare relative to reads (one per successful write, not
// per read).
func (l *LRU) Invalidate(pattern string) {
	l.mu.Lock()
	keys := l.cache.Keys()

	for _, k := range keys {
		if strings.Contains(k, pattern) {
			l.cache.Remove(k)
		}
	}
	l.mu.Unlock()

	if l.mirror != nil {
		l.mirror.Invalidate(context.Background(), pattern)
	}
}

// Flush implements cache.Cache.
func (l *LRU) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Purge()
}

// Len implements cache.Cache.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.cache.Len()
}
