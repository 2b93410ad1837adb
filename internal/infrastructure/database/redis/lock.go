package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

var ErrLockNotHeld = errors.New(errors.ErrCodeLockNotAcquired, "lock not held by this owner")

// LockOption tunes a PipelineLock.
type LockOption func(*PipelineLock)

// WithLockTTL sets the key expiry. The watchdog renews it every ttl/3.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(l *PipelineLock) { l.ttl = ttl }
}

// WithLockWait sets how long Acquire retries before giving up. Zero means a
// single attempt.
func WithLockWait(wait time.Duration) LockOption {
	return func(l *PipelineLock) { l.wait = wait }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(l *PipelineLock) { l.retryDelay = delay }
}

// PipelineLock serializes pipeline runs across processes with one
// SET NX PX key per lock name. The value is a random token so only the owner
// can release it.
type PipelineLock struct {
	client     *Client
	logger     logging.Logger
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
}

var _ ports.LockPort = (*PipelineLock)(nil)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func NewPipelineLock(client *Client, log logging.Logger, opts ...LockOption) *PipelineLock {
	if log == nil {
		log = logging.NewNopLogger()
	}
	l := &PipelineLock{
		client:     client,
		logger:     log.Named("lock"),
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes the lock or returns ErrCodeLockNotAcquired once the wait
// budget is spent. The returned release stops the watchdog and deletes the
// key if it is still owned.
func (l *PipelineLock) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	rdb, err := l.client.Underlying()
	if err != nil {
		return nil, err
	}
	key := l.client.Key("lock", name)
	value := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := rdb.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, errors.Newf(errors.ErrCodeLockNotAcquired, "%s is held by another run", name)
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeLockNotAcquired, "waiting for lock cancelled")
		case <-time.After(l.retryDelay):
		}
	}

	log := l.logger.With(logging.String("lock", name))
	log.Debug("lock acquired")

	wctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go l.watchdog(wctx, rdb, key, value, log, done)

	return func(ctx context.Context) error {
		stop()
		<-done
		res, err := unlockScript.Run(ctx, rdb, []string{key}, value).Int64()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
		}
		if res == 0 {
			return ErrLockNotHeld
		}
		log.Debug("lock released")
		return nil
	}, nil
}

// watchdog renews the key until ctx is cancelled or ownership is lost.
func (l *PipelineLock) watchdog(ctx context.Context, rdb *redis.Client, key, value string, log logging.Logger, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := extendScript.Run(ctx, rdb, []string{key}, value, l.ttl.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() == nil {
					log.Error("watchdog failed to extend lock", logging.Err(err))
				}
				return
			}
			if res == 0 {
				log.Warn("watchdog lost lock")
				return
			}
		}
	}
}
