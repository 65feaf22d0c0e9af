package drafts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/retry"
)

// ErrLockBusy is returned when a draft stays locked by another request for
// longer than the lock wait.
var ErrLockBusy = errors.New("the draft is busy; try again")

// DefaultLockTTL bounds how long a crashed holder can keep a Redis draft
// lock. It must outlast a backend load or save.
const DefaultLockTTL = 30 * time.Second

const lockPrefix = "tagging-console:draft-lock:"

func lockKey(sid string, sentenceID int) string {
	return sid + ":" + strconv.Itoa(sentenceID)
}

// lockWait polls a held Redis lock for roughly ten seconds before giving up.
func lockWait() *retry.Config {
	return &retry.Config{
		MaxRetries:   40,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2,
		JitterFactor: 0.2,
	}
}

// busyError marks a lock held by someone else as worth waiting for.
type busyError struct{}

func (busyError) Error() string        { return ErrLockBusy.Error() }
func (busyError) IsRetryable() bool    { return true }
func (busyError) Is(target error) bool { return target == ErrLockBusy }

// releaseScript deletes the lock only while it still holds our token, so a
// holder whose lock expired never frees the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the draft's lock in Redis, shared by every replica, waiting
// while another request holds it.
func (s *RedisStore) Lock(ctx context.Context, sid string, sentenceID int) (func(), error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	key := lockPrefix + lockKey(sid, sentenceID)
	token := uuid.NewString()

	_, err := retry.DoIfRetryable(ctx, s.lockWait, func() (struct{}, error) {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to acquire draft lock: %w", err)
		}
		if !ok {
			return struct{}{}, busyError{}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx := context.WithoutCancel(ctx)
			if err := releaseScript.Run(rctx, s.client, []string{key}, token).Err(); err != nil {
				s.logger.Warn("Failed to release draft lock; it expires on its own",
					zap.Int("sentence_id", sentenceID),
					zap.Duration("ttl", s.lockTTL),
					zap.Error(err))
			}
		})
	}, nil
}

// Lock takes the draft's lock within this process. The memory store is not
// shared between replicas, so nothing wider is needed.
func (s *MemoryStore) Lock(ctx context.Context, sid string, sentenceID int) (func(), error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	return s.locks.Lock(lockKey(sid, sentenceID)), nil
}

// keyedMutex serialises work per key. Entries are dropped once nobody
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires key and returns its release function. Calling the release
// function more than once is safe.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
