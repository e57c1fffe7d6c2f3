package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/common/mopentelemetry"
	"github.com/cascadedb/branchdata/common/mredis"
	"github.com/cascadedb/branchdata/common/mzap"
	boltstore "github.com/cascadedb/branchdata/internal/adapters/bolt"
	"github.com/cascadedb/branchdata/internal/adapters/memcache"
	"github.com/cascadedb/branchdata/internal/adapters/queue"
	"github.com/cascadedb/branchdata/internal/adapters/resttransport"
	"github.com/cascadedb/branchdata/internal/domain/autovalue"
	"github.com/cascadedb/branchdata/internal/domain/changetracker"
	"github.com/cascadedb/branchdata/internal/domain/dispatch"
	"github.com/cascadedb/branchdata/internal/domain/junction"
	"github.com/cascadedb/branchdata/internal/domain/model"
	"github.com/cascadedb/branchdata/internal/domain/pipeline"
	"github.com/cascadedb/branchdata/internal/domain/syncqueue"
)

// Client is the fully wired, per-tenant data plane: one Durable Store, one
// Memory Cache, one Sync Queue, one Remote Transport, and the Dispatcher
// sitting on top of them. This redesigns the source system's implicit
// module-level singleton into this explicit, caller-owned object; Manager
// below is the thin per-tenant factory that keeps the convenience of "ask
// for tenant X, get the same Client back" without resurrecting a global.
type Client struct {
	TenantID   string
	Durable    *boltstore.Store
	Cache      *memcache.LRU
	Queue      *queue.Queue
	Transport  *resttransport.Client
	AutoValue  *autovalue.Service
	Junctions  *junction.Manager
	Tracker    *changetracker.Tracker
	Dispatcher *dispatch.Dispatcher
	Read       *pipeline.Read
	Write      *pipeline.Write
	Logger     mlog.Logger

	db *bolt.DB
}

// NewClient wires every adapter behind the ports for one tenant and
// returns the assembled Client. Mirrors bootstrap.InitServers' wiring
// order (store, then cache, then external clients, then the handlers
// sitting on top) generalized to this module's port set.
func NewClient(cfg *Config, tenantID string, logger mlog.Logger) (*Client, error) {
	if logger == nil {
		logger = mzap.InitializeLogger()
	}

	registry := dispatch.DefaultSchemas()

	durableStore, err := boltstore.Open(cfg.DataDir, tenantID, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	var mirror memcache.Mirror
	if cfg.RedisURL != "" {
		conn := &mredis.RedisConnection{ConnectionStringSource: cfg.RedisURL, Logger: logger}
		mirror = memcache.NewRedisMirror(conn, "branchdata:"+tenantID, logger)
	}

	cacheSize := int(cfg.CacheSize)
	if cacheSize <= 0 {
		cacheSize = memcache.DefaultSize
	}

	lruCache, err := memcache.New(cacheSize, mirror, logger)
	if err != nil {
		return nil, fmt.Errorf("open memory cache: %w", err)
	}

	if !durableStore.Ready(boltstore.DefaultOpenTimeout) {
		logger.Warnf("durable store for tenant %s not ready within startup timeout, continuing async", tenantID)
	}

	queueDB, err := durableStore.RawDB()
	if err != nil {
		return nil, fmt.Errorf("durable store unavailable for queue init: %w", err)
	}

	syncQueue, err := queue.New(queueDB, logger)
	if err != nil {
		return nil, fmt.Errorf("open sync queue: %w", err)
	}

	remote := resttransport.New(resttransport.Options{
		BaseURL:  cfg.RemoteBaseURL,
		TenantID: tenantID,
		Timeout:  time.Duration(cfg.RemoteTimeout) * time.Millisecond,
		Logger:   logger,
	})

	autoValue := autovalue.New()
	junctions := junction.New(registry)
	tracker := changetracker.New(remote, logger)

	read := &pipeline.Read{
		Registry:          registry,
		Durable:           durableStore,
		Cache:             lruCache,
		Transport:         remote,
		Logger:            logger,
		JunctionSideLoads: dispatch.DefaultJunctionSideLoads(),
	}

	write := &pipeline.Write{
		Registry:  registry,
		Durable:   durableStore,
		Cache:     lruCache,
		Transport: remote,
		Queue:     syncQueue,
		AutoValue: autoValue,
		Junctions: junctions,
		Tracker:   tracker,
		Logger:    logger,
	}

	dispatcher := dispatch.New(registry, read, write, logger)
	write.Dispatcher = dispatcher

	return &Client{
		TenantID:   tenantID,
		Durable:    durableStore,
		Cache:      lruCache,
		Queue:      syncQueue,
		Transport:  remote,
		AutoValue:  autoValue,
		Junctions:  junctions,
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Read:       read,
		Write:      write,
		Logger:     logger,
		db:         queueDB,
	}, nil
}

// Close releases the tenant's durable handle. A Manager calling Close
// before dropping its reference is what makes a tenant switch safe: the
// previous tenant's bbolt file is never held open past the switch.
func (c *Client) Close() error {
	return c.Durable.Close()
}

// DrainQueue pops and delivers every eligible pending write through the
// Dispatcher's remote transport, used by cmd/demo's POST /actions/queue/drain
// handler and by tests that want queued-write delivery on demand.
func (c *Client) DrainQueue(ctx context.Context) (int, error) {
	delivered := 0

	for {
		ok, err := c.Queue.ProcessNext(ctx, func(ctx context.Context, item syncqueue.Item) error {
			resp, dispatchErr := c.Transport.Dispatch(ctx, model.RemoteRequest{Action: item.Action, Data: item.Data})
			if dispatchErr != nil {
				return dispatchErr
			}

			if !resp.Success {
				return fmt.Errorf("%s", resp.Error)
			}

			return nil
		})
		if err != nil {
			return delivered, err
		}

		if !ok {
			return delivered, nil
		}

		delivered++
	}
}

// Manager keeps one Client alive per tenant, rebuilding it on first use and
// tearing down the previous handle on a tenant switch. It replaces the
// source system's module-level singleton with an explicit, caller-owned
// registry.
type Manager struct {
	cfg *Config

	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager builds a Manager bound to cfg.
func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg, clients: map[string]*Client{}}
}

// For returns the Client for tenantID, constructing it on first request.
func (m *Manager) For(tenantID string, logger mlog.Logger) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[tenantID]; ok {
		return c, nil
	}

	c, err := NewClient(m.cfg, tenantID, logger)
	if err != nil {
		return nil, err
	}

	m.clients[tenantID] = c

	return c, nil
}

// Switch tears down the Client currently held for tenantID, if any, and
// forces the next For call to rebuild it from scratch. A tenant switch in
// this system is not a logical flag flip: the durable store is a distinct
// bbolt file per tenant, so switching tenants means closing one file
// handle and opening another.
func (m *Manager) Switch(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[tenantID]
	if !ok {
		return nil
	}

	delete(m.clients, tenantID)

	return c.Close()
}

// NewTelemetry builds the process-wide Telemetry wrapper and calls
// InitializeTelemetry on it when cfg.EnableTelemetry is set; otherwise it
// returns it un-initialized, and tracer calls go to otel's default global
// no-op tracer provider.
func NewTelemetry(cfg *Config) *mopentelemetry.Telemetry {
	tl := &mopentelemetry.Telemetry{
		LibraryName:               cfg.OtelLibraryName,
		ServiceName:               cfg.OtelServiceName,
		ServiceVersion:            cfg.OtelServiceVersion,
		DeploymentEnv:             cfg.OtelDeploymentEnv,
		CollectorExporterEndpoint: cfg.OtelColExporterEndpoint,
	}

	if cfg.EnableTelemetry {
		return tl.InitializeTelemetry()
	}

	return tl
}
