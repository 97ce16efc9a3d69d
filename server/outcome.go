package server

import (
	"errors"
	"fmt"

	"github.com/giantswarm/instagram-link/storage"
)

// Reason classifies how a callback ended.
type Reason string

const (
	// ReasonNone marks a successful flow
	ReasonNone Reason = ""

	ReasonProviderDenied    Reason = "provider_denied"
	ReasonInvalidRequest    Reason = "invalid_request"
	ReasonInvalidState      Reason = "invalid_state"
	ReasonExchangeFailed    Reason = "exchange_failed"
	ReasonNoSession         Reason = "no_session"
	ReasonInvalidSession    Reason = "invalid_session"
	ReasonPersistenceFailed Reason = "persistence_failed"

	// ReasonWebhookFailed is recorded for a failed subscription; it never
	// becomes an Outcome's Reason.
	ReasonWebhookFailed Reason = "webhook_subscription_failed"

	// ReasonUnknown covers unexpected errors and recovered panics
	ReasonUnknown Reason = "unknown"
)

// String returns the reason, or "success" for ReasonNone.
func (r Reason) String() string {
	if r == ReasonNone {
		return "success"
	}
	return string(r)
}

// FlowError is a fatal stage failure.
type FlowError struct {
	Reason Reason
	Err    error
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func fail(reason Reason, err error) error {
	return &FlowError{Reason: reason, Err: err}
}

// ReasonOf returns the Reason carried by err, ReasonUnknown for any other
// non-nil error and ReasonNone for nil.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonUnknown
}

// Outcome is the single terminal result of a callback.
type Outcome struct {
	// Reason is ReasonNone on success
	Reason Reason

	// Err is the cause of a failure
	Err error

	// UserID is the resolved first-party user, once the session stage ran
	UserID string

	// Credential is the stored credential on success
	Credential *storage.Credential

	// WebhookErr is set when the best-effort subscription failed
	WebhookErr error
}

// Succeeded reports whether the credential was stored.
func (o Outcome) Succeeded() bool {
	return o.Reason == ReasonNone
}
