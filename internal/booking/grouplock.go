package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrGroupBusy is returned when a group lock cannot be acquired in time.
var ErrGroupBusy = errors.New("booking: group is being confirmed")

// GroupLocker serialises confirms within one hold group.
type GroupLocker interface {
	Lock(ctx context.Context, groupID string) (unlock func(), err error)
}

// NopLocker never blocks. The ledger's conditional update still protects the group.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// LocalLocker serialises confirms inside one process. A group's entry lives
// only while someone holds or waits for its lock.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, groupID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[groupID]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[groupID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(groupID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(groupID, slot)
		return nil, fmt.Errorf("%w: %v", ErrGroupBusy, ctx.Err())
	}
}

func (l *LocalLocker) release(groupID string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, groupID)
	}
}

// Len returns the number of groups currently locked or awaited.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Redis lock keys are booking:group-lock:<group_id>.
const groupLockPrefix = "booking:group-lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds a SET NX PX lease per group, shared by every replica.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker creates a locker whose leases expire after ttl. Lock waits
// up to wait for a held lease.
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, groupID string) (func(), error) {
	key := groupLockPrefix + strings.TrimSpace(groupID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("booking: acquire group lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrGroupBusy
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrGroupBusy, ctx.Err())
		case <-time.After(l.poll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Released with a fresh context so a canceled request still frees the lease.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}
