package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/models"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func identityContext(username, role string) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{
		User: models.User{ID: 7, Username: username, Role: role},
	})
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var ev SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func TestNewSecurityAuditor(t *testing.T) {
	logger, _ := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	assert.NotNil(t, auditor)
	assert.NotNil(t, auditor.logger)
}

func TestLogLoginFailure(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auditor.now = func() time.Time { return fixed }

	auditor.LogLoginFailure(context.Background(), "bakyt", "invalid credentials", "10.0.0.5")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.Equal(t, "security_audit", logs[0].LoggerName)

	ev := decodeEvent(t, logs[0])
	assert.Equal(t, EventLoginFailure, ev.EventType)
	assert.Equal(t, "bakyt", ev.Username)
	assert.Equal(t, "10.0.0.5", ev.ClientIP)
	assert.Equal(t, "warning", ev.Severity)
	assert.True(t, fixed.Equal(ev.Timestamp))
	assert.NotEmpty(t, ev.EventID)
}

func TestLogLogin_RecordsIdentity(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogLogin(context.Background(), &auth.Identity{User: models.User{Username: "aida", Role: models.RoleAdmin}}, "127.0.0.1")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.InfoLevel, logs[0].Level)
	ev := decodeEvent(t, logs[0])
	assert.Equal(t, EventLogin, ev.EventType)
	assert.Equal(t, "aida", ev.Username)
	assert.Equal(t, models.RoleAdmin, ev.Role)
}

func TestLogAccessDenied(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		wantUser string
	}{
		{name: "with identity", ctx: identityContext("nurlan", models.RoleEditor), wantUser: "nurlan"},
		{name: "without identity", ctx: context.Background(), wantUser: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, recorded := setupTestLogger(t)
			auditor := NewSecurityAuditor(logger)

			auditor.LogAccessDenied(tt.ctx, "/users", "192.168.1.100")

			logs := recorded.All()
			require.Len(t, logs, 1)
			ev := decodeEvent(t, logs[0])
			assert.Equal(t, EventAccessDenied, ev.EventType)
			assert.Equal(t, tt.wantUser, ev.Username)
			details, ok := ev.Details.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "/users", details["path"])
		})
	}
}

func TestLogUserAdministration(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	ctx := identityContext("aida", models.RoleAdmin)

	auditor.LogUserCreated(ctx, "nurlan", models.RoleEditor, "")
	auditor.LogUserDeleted(ctx, 12, "")

	logs := recorded.All()
	require.Len(t, logs, 2)

	created := decodeEvent(t, logs[0])
	assert.Equal(t, EventUserCreated, created.EventType)
	assert.Equal(t, "aida", created.Username)
	assert.Equal(t, map[string]any{"target_username": "nurlan", "target_role": models.RoleEditor}, created.Details)

	deleted := decodeEvent(t, logs[1])
	assert.Equal(t, EventUserDeleted, deleted.EventType)
	assert.Equal(t, zapcore.WarnLevel, logs[1].Level)
	assert.Equal(t, map[string]any{"target_user_id": float64(12)}, deleted.Details)
}

func TestNilAuditorIsSilent(t *testing.T) {
	var auditor *SecurityAuditor
	assert.NotPanics(t, func() {
		auditor.LogLoginFailure(context.Background(), "x", "y", "z")
	})
}
