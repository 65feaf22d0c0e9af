// Package drafts keeps unsaved sentence edits between requests. Drafts are
// keyed by the browser session ID and the sentence ID, so two browsers
// editing the same sentence never see each other's changes.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/apperrors"
	"github.com/kgcorpus/tagging-console/pkg/config"
	"github.com/kgcorpus/tagging-console/pkg/editor"
	"github.com/kgcorpus/tagging-console/pkg/metrics"
)

// DefaultTTL is how long an untouched draft is kept.
const DefaultTTL = 12 * time.Hour

// Draft is a stored editor snapshot.
type Draft struct {
	Snapshot  editor.Snapshot `json:"snapshot"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists drafts.
type Store interface {
	// Get returns the draft, or apperrors.ErrNotFound.
	Get(ctx context.Context, sid string, sentenceID int) (*Draft, error)
	// Put stores snap, replacing any previous draft for the same sentence.
	Put(ctx context.Context, sid string, snap editor.Snapshot) error
	// Delete removes one draft. Deleting a missing draft is not an error.
	Delete(ctx context.Context, sid string, sentenceID int) error
	// DeleteSession removes every draft of a session, e.g. on sign-out.
	DeleteSession(ctx context.Context, sid string) error
	// Lock serialises read-modify-write cycles on one draft across every
	// process sharing the store. The returned release function may be
	// called more than once.
	Lock(ctx context.Context, sid string, sentenceID int) (unlock func(), err error)
	// Ping reports whether the store can be reached.
	Ping(ctx context.Context) error
	// Close releases the store's connections.
	Close() error
}

// validateSID rejects session IDs that were not issued by the console.
func validateSID(sid string) error {
	if _, err := uuid.Parse(sid); err != nil {
		return fmt.Errorf("%w: invalid session id", apperrors.ErrValidation)
	}
	return nil
}

func notFound(sentenceID int) error {
	return fmt.Errorf("draft for sentence %d: %w", sentenceID, apperrors.ErrNotFound)
}

// StaleSaveAfter is how long a draft may claim a save in flight before the
// save is treated as failed.
const StaleSaveAfter = 2 * time.Minute

// ErrAbandonedSave is the error recorded for a save that never finished.
var ErrAbandonedSave = errors.New("save did not finish; try again")

// Current returns the snapshot to restore an editor from. A save still
// marked in flight after StaleSaveAfter is reported as a failed save so the
// user can retry it.
func (d *Draft) Current(now time.Time) editor.Snapshot {
	snap := d.Snapshot
	if snap.State == editor.StateSaving && now.Sub(d.UpdatedAt) >= StaleSaveAfter {
		snap.State = editor.StateSaveError
		snap.Error = ErrAbandonedSave.Error()
	}
	return snap
}

// Open returns a Redis store when cfg names a host and an in-memory store
// otherwise.
func Open(ctx context.Context, cfg *config.RedisConfig, m *metrics.Metrics, logger *zap.Logger) (Store, error) {
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Info("Redis not configured; keeping drafts in memory")
		return NewMemoryStore(cfg.DraftTTL, m), nil
	}
	logger.Info("Keeping drafts in Redis", zap.String("addr", cfg.Addr()))
	return NewRedisStore(client, cfg.DraftTTL, logger), nil
}
