// Package lock provides Redis-backed mutexes for serializing work on one key across instances.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker hands out redsync mutexes.
type Locker struct {
	rs      *redsync.Redsync
	prefix  string
	expiry  time.Duration
	tries   int
	retries time.Duration
	logger  *zap.Logger
}

// New creates a locker over rdb. Keys are namespaced with prefix.
func New(rdb goredislib.UniversalClient, prefix string, expiry time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		rs:      redsync.New(goredis.NewPool(rdb)),
		prefix:  prefix,
		expiry:  expiry,
		tries:   20,
		retries: 100 * time.Millisecond,
		logger:  logger,
	}
}

// Lock blocks until key is held or ctx ends. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	m := l.rs.NewMutex(name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.retries),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return func() {
		if _, err := m.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("release lock failed", zap.String("key", name), zap.Error(err))
		}
	}, nil
}
