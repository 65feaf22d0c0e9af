package drafts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgcorpus/tagging-console/pkg/apperrors"
	"github.com/kgcorpus/tagging-console/pkg/retry"
)

func TestKeyedMutex_SerialisesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			defer unlock()
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size(), "released entries are dropped")
}

func TestKeyedMutex_KeysAreIndependent(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
}

func TestKeyedMutex_DoubleUnlock(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	unlock()
	assert.Equal(t, 0, k.size())

	k.Lock("a")()
}

func TestMemoryStore_Lock(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestMemoryStore(time.Hour)
	sid := uuid.NewString()

	unlock, err := s.Lock(ctx, sid, 4)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := s.Lock(ctx, sid, 4)
		if err == nil {
			u()
		}
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("second holder entered while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired

	_, err = s.Lock(ctx, "not-a-session", 4)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.NoError(t, s.Ping(ctx))
}

func TestBusyError(t *testing.T) {
	var err error = busyError{}
	assert.ErrorIs(t, err, ErrLockBusy)
	assert.True(t, retry.IsRetryable(err), "a held lock is waited for")
}
