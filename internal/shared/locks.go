package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EntityLocker serializes mutations against a single financial entity,
// such as a counterpart balance or an inventory item, across processes.
// Keys are scoped to (entity kind, company, id).
type EntityLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retry   time.Duration
	maxWait time.Duration
}

// ErrLockNotAcquired indicates the lock stayed contended past the wait window.
var ErrLockNotAcquired = Conflict("shared: entity lock not acquired")

// NewEntityLocker constructs a locker with posting-sized defaults.
func NewEntityLocker(client *redis.Client) *EntityLocker {
	return &EntityLocker{
		client:  client,
		ttl:     10 * time.Second,
		retry:   25 * time.Millisecond,
		maxWait: 3 * time.Second,
	}
}

// WithTimings overrides lock TTL and acquisition wait window.
func (l *EntityLocker) WithTimings(ttl, maxWait time.Duration) *EntityLocker {
	if ttl > 0 {
		l.ttl = ttl
	}
	if maxWait > 0 {
		l.maxWait = maxWait
	}
	return l
}

// EntityLockKey builds redis keys for finance critical sections.
func EntityLockKey(kind string, companyID, entityID int64) string {
	return fmt.Sprintf("finance:%s:%d:%d:lock", kind, companyID, entityID)
}

// WithLock runs fn while holding the entity lock, releasing it afterwards.
// The lock token guards against releasing a lock taken over by another
// holder after TTL expiry.
func (l *EntityLocker) WithLock(ctx context.Context, kind string, companyID, entityID int64, fn func(ctx context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	key := EntityLockKey(kind, companyID, entityID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}()
	return fn(ctx)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
