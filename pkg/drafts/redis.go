package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/config"
	"github.com/kgcorpus/tagging-console/pkg/editor"
	"github.com/kgcorpus/tagging-console/pkg/retry"
)

// keyPrefix namespaces draft hashes: one hash per session, one field per
// sentence, so a sign-out removes every draft with a single DEL.
const keyPrefix = "tagging-console:drafts:"

// NewRedisClient creates a new Redis client with the given configuration.
// Returns nil if Redis is not configured (host is empty).
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps drafts in Redis so they survive restarts and are shared
// between replicas.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	lockTTL  time.Duration
	lockWait *retry.Config
	now      func() time.Time
	logger   *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client. A session's drafts expire ttl
// after its last write; ttl <= 0 uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:   client,
		ttl:      ttl,
		lockTTL:  DefaultLockTTL,
		lockWait: lockWait(),
		now:      time.Now,
		logger:   logger.Named("drafts"),
	}
}

func sessionKey(sid string) string {
	return keyPrefix + sid
}

func (s *RedisStore) Get(ctx context.Context, sid string, sentenceID int) (*Draft, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	raw, err := s.client.HGet(ctx, sessionKey(sid), strconv.Itoa(sentenceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(sentenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		// A draft written by an incompatible version is dropped, not fatal.
		s.logger.Warn("Discarding unreadable draft",
			zap.Int("sentence_id", sentenceID),
			zap.Error(err))
		_ = s.Delete(ctx, sid, sentenceID)
		return nil, notFound(sentenceID)
	}
	return &d, nil
}

func (s *RedisStore) Put(ctx context.Context, sid string, snap editor.Snapshot) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	raw, err := json.Marshal(Draft{Snapshot: snap, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	key := sessionKey(sid)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(snap.SentenceID), raw)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sid string, sentenceID int) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	if err := s.client.HDel(ctx, sessionKey(sid), strconv.Itoa(sentenceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sid string) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	if err := s.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("failed to delete session drafts: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
