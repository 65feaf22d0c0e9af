// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventLoginFailure is logged when the backend rejects a sign-in.
	EventLoginFailure SecurityEventType = "login_failure"
	// EventLogin is logged for a successful sign-in.
	EventLogin SecurityEventType = "login"
	// EventLogout is logged when a user signs out.
	EventLogout SecurityEventType = "logout"
	// EventAccessDenied is logged when a signed-in user opens an administrator-only view.
	EventAccessDenied SecurityEventType = "access_denied"
	// EventUserCreated and EventUserDeleted record account administration.
	EventUserCreated SecurityEventType = "user_created"
	EventUserDeleted SecurityEventType = "user_deleted"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	EventID   uuid.UUID         `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Role      string            `json:"role,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details,omitempty"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogLoginFailure records a rejected sign-in. The attempted username is
// taken from the form since there is no identity yet.
func (a *SecurityAuditor) LogLoginFailure(ctx context.Context, username, reason, clientIP string) {
	a.log(ctx, EventLoginFailure, "warning", username, clientIP, map[string]string{"reason": reason})
}

// LogLogin records a successful sign-in.
func (a *SecurityAuditor) LogLogin(ctx context.Context, id *auth.Identity, clientIP string) {
	a.logIdentity(ctx, EventLogin, "info", id, clientIP, nil)
}

// LogLogout records a sign-out of the identity in ctx.
func (a *SecurityAuditor) LogLogout(ctx context.Context, clientIP string) {
	id, _ := auth.GetIdentity(ctx)
	a.logIdentity(ctx, EventLogout, "info", id, clientIP, nil)
}

// LogAccessDenied records a non-administrator opening an administrator-only path.
func (a *SecurityAuditor) LogAccessDenied(ctx context.Context, path, clientIP string) {
	id, _ := auth.GetIdentity(ctx)
	a.logIdentity(ctx, EventAccessDenied, "warning", id, clientIP, map[string]string{"path": path})
}

// LogUserCreated records an administrator creating an account.
func (a *SecurityAuditor) LogUserCreated(ctx context.Context, username, role, clientIP string) {
	id, _ := auth.GetIdentity(ctx)
	a.logIdentity(ctx, EventUserCreated, "info", id, clientIP, map[string]string{
		"target_username": username,
		"target_role":     role,
	})
}

// LogUserDeleted records an administrator deleting an account.
func (a *SecurityAuditor) LogUserDeleted(ctx context.Context, userID int, clientIP string) {
	id, _ := auth.GetIdentity(ctx)
	a.logIdentity(ctx, EventUserDeleted, "warning", id, clientIP, map[string]int{"target_user_id": userID})
}

func (a *SecurityAuditor) logIdentity(ctx context.Context, t SecurityEventType, severity string, id *auth.Identity, clientIP string, details any) {
	var username, role string
	if id != nil {
		username, role = id.User.Username, id.User.Role
	}
	a.write(SecurityEvent{
		EventType: t,
		Username:  username,
		Role:      role,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  severity,
	})
}

func (a *SecurityAuditor) log(_ context.Context, t SecurityEventType, severity, username, clientIP string, details any) {
	a.write(SecurityEvent{
		EventType: t,
		Username:  username,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  severity,
	})
}

func (a *SecurityAuditor) write(event SecurityEvent) {
	if a == nil {
		return
	}
	event.EventID = uuid.New()
	event.Timestamp = a.now().UTC()

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("username", event.Username),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	}
	if event.Severity == "warning" {
		a.logger.Warn("Security event", fields...)
		return
	}
	a.logger.Info("Security event", fields...)
}
