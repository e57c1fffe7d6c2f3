package memcache

import (
	"context"

	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/common/mredis"
)

// RedisMirror publishes cache invalidation patterns on a pub/sub channel so
// other processes (or browser tabs, in the source system) sharing the same
// tenant observe them, built on common/mredis.RedisConnection. It never
// serves reads itself — the LRU remains authoritative for this process; the
// mirror only propagates invalidation.
type RedisMirror struct {
	conn    *mredis.RedisConnection
	channel string
	logger  mlog.Logger
}

// NewRedisMirror builds a mirror against an already-configured connection.
func NewRedisMirror(conn *mredis.RedisConnection, channel string, logger mlog.Logger) *RedisMirror {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &RedisMirror{conn: conn, channel: channel, logger: logger}
}

// Invalidate publishes pattern to the mirror channel; a publish failure is
// logged and swallowed, since cache mirroring is best-effort and must never
// fail the write that triggered it.
func (m *RedisMirror) Invalidate(ctx context.Context, pattern string) {
	client, err := m.conn.GetDB(ctx)
	if err != nil {
		m.logger.Warnf("memcache: redis mirror unavailable, skipping invalidation publish: %s", err)
		return
	}

	if err := client.Publish(ctx, m.channel, pattern).Err(); err != nil {
		m.logger.Warnf("memcache: failed to publish invalidation pattern %q: %s", pattern, err)
	}
}

// Subscribe starts a goroutine that applies remotely-published invalidation
// patterns to a local cache.Invalidate-compatible sink until ctx is done.
func (m *RedisMirror) Subscribe(ctx context.Context, apply func(pattern string)) error {
	client, err := m.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	sub := client.Subscribe(ctx, m.channel)

	go func() {
		defer func() {
			_ = sub.Close()
		}()

		ch := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				apply(msg.Payload)
			}
		}
	}()

	return nil
}
