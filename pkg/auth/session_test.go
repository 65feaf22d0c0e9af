package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

func testIdentity(role string) *Identity {
	return &Identity{User: models.User{ID: 1, Username: "aida", Role: role, IsActive: true}}
}

func TestSession_SetNotifiesInOrder(t *testing.T) {
	s := NewSession()
	var calls []string
	s.Subscribe(func(id *Identity) { calls = append(calls, "first") })
	s.Subscribe(func(id *Identity) { calls = append(calls, "second") })

	s.Set(testIdentity(models.RoleEditor))

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestSession_SubscriberSeesNewState(t *testing.T) {
	s := NewSession()
	var seen *Identity
	s.Subscribe(func(*Identity) { seen = s.Current() })

	id := testIdentity(models.RoleAdmin)
	s.Set(id)
	assert.Same(t, id, seen)

	s.Clear()
	assert.Nil(t, seen)
	assert.Nil(t, s.Current())
}

func TestSession_Unsubscribe(t *testing.T) {
	s := NewSession()
	n := 0
	unsubscribe := s.Subscribe(func(*Identity) { n++ })

	s.Set(testIdentity(models.RoleViewer))
	unsubscribe()
	s.Clear()

	assert.Equal(t, 1, n)
}

func TestSession_SubscriberMaySubscribe(t *testing.T) {
	// Notifications run outside the lock.
	s := NewSession()
	s.Subscribe(func(*Identity) {
		s.Subscribe(func(*Identity) {})
	})

	done := make(chan struct{})
	go func() {
		s.Set(testIdentity(models.RoleEditor))
		close(done)
	}()
	<-done
}

func TestGuard_Decide(t *testing.T) {
	tests := []struct {
		name   string
		access Access
		id     *Identity
		want   Decision
	}{
		{"public signed out", Public, nil, Allow},
		{"protected signed out", Protected, nil, RedirectLogin},
		{"protected viewer", Protected, testIdentity(models.RoleViewer), Allow},
		{"admin route signed out", AdminOnly, nil, RedirectLogin},
		{"admin route editor", AdminOnly, testIdentity(models.RoleEditor), Deny},
		{"admin route admin", AdminOnly, testIdentity(models.RoleAdmin), Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			if tt.id != nil {
				s.Set(tt.id)
			}
			assert.Equal(t, tt.want, NewGuard(s).Decide(tt.access))
		})
	}
}

func TestGuard_SeesSignOutImmediately(t *testing.T) {
	s := NewSession()
	g := NewGuard(s)
	s.Set(testIdentity(models.RoleAdmin))
	require.Equal(t, Allow, g.Decide(AdminOnly))

	s.Clear()
	assert.Equal(t, RedirectLogin, g.Decide(AdminOnly))
	assert.Equal(t, RedirectLogin, g.Decide(Protected))
}

func TestGetIdentity_PrefersSession(t *testing.T) {
	stale := testIdentity(models.RoleAdmin)
	s := NewSession()
	ctx := WithSession(WithIdentity(context.Background(), stale), s)

	_, ok := GetIdentity(ctx)
	assert.False(t, ok, "an empty session hides the context identity")

	_, err := RequireIdentity(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	s.Set(testIdentity(models.RoleEditor))
	id, ok := GetIdentity(ctx)
	require.True(t, ok)
	assert.Equal(t, models.RoleEditor, id.User.Role)
}
