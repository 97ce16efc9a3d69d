package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
// A nil *Auditor discards all events.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event represents a security audit event
type Event struct {
	Type           string
	UserID         string
	ProviderUserID string
	IPAddress      string
	Details        map[string]any
	Timestamp      time.Time
}

// LogEvent logs a security event with the user ID hashed.
// The request ID, when present in ctx, is attached for correlation.
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	a.logger.InfoContext(ctx, "security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"provider_user_id", event.ProviderUserID,
		"ip_address", event.IPAddress,
		"request_id", GetRequestID(ctx),
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLinkStarted logs when a user is sent to the provider's authorize page
func (a *Auditor) LogLinkStarted(ctx context.Context, userID, ipAddress string) {
	a.LogEvent(ctx, Event{
		Type:      EventLinkStarted,
		UserID:    userID,
		IPAddress: ipAddress,
	})
}

// LogLinkCompleted logs when a credential has been stored
func (a *Auditor) LogLinkCompleted(ctx context.Context, userID, providerUserID string) {
	a.LogEvent(ctx, Event{
		Type:           EventLinkCompleted,
		UserID:         userID,
		ProviderUserID: providerUserID,
	})
}

// LogLinkFailed logs a failed callback with its reason
func (a *Auditor) LogLinkFailed(ctx context.Context, userID, reason string) {
	a.LogEvent(ctx, Event{
		Type:   EventLinkFailed,
		UserID: userID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogProviderDenied logs a provider error redirect
func (a *Auditor) LogProviderDenied(ctx context.Context, providerError string) {
	a.LogEvent(ctx, Event{
		Type: EventProviderDenied,
		Details: map[string]any{
			"error": providerError,
		},
	})
}

// LogStateRejected logs a callback whose state failed verification
func (a *Auditor) LogStateRejected(ctx context.Context, ipAddress string) {
	a.LogEvent(ctx, Event{
		Type:      EventStateRejected,
		IPAddress: ipAddress,
	})
}

// LogExchangeFailed logs a failed token exchange hop
func (a *Auditor) LogExchangeFailed(ctx context.Context, hop string) {
	a.LogEvent(ctx, Event{
		Type: EventProviderExchangeFailed,
		Details: map[string]any{
			"hop": hop,
		},
	})
}

// LogSessionRejected logs a missing or unresolvable first-party session
func (a *Auditor) LogSessionRejected(ctx context.Context, reason string) {
	a.LogEvent(ctx, Event{
		Type: EventSessionRejected,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogWebhookSubscriptionFailed logs a failed best-effort webhook subscription
func (a *Auditor) LogWebhookSubscriptionFailed(ctx context.Context, userID string, err error) {
	details := map[string]any{}
	if err != nil {
		details["error"] = err.Error()
	}
	a.LogEvent(ctx, Event{
		Type:    EventWebhookSubscriptionFailed,
		UserID:  userID,
		Details: details,
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress string) {
	a.LogEvent(ctx, Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
