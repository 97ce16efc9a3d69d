package security

// Audit event types for the account-link flow.
const (
	// EventLinkStarted is logged when a user is redirected to the provider
	EventLinkStarted = "link_started"

	// EventLinkCompleted is logged when a credential has been stored for a user
	EventLinkCompleted = "link_completed"

	// EventLinkFailed is logged when a callback ends in a failure outcome
	EventLinkFailed = "link_failed"

	// EventProviderDenied is logged when the provider redirects back with an error
	EventProviderDenied = "provider_denied"

	// EventStateRejected is logged when a callback carries a state we did not issue,
	// or one that has expired. Repeated occurrences indicate forged callbacks.
	EventStateRejected = "state_rejected"

	// EventProviderExchangeFailed is logged when either token exchange hop fails
	EventProviderExchangeFailed = "provider_exchange_failed"

	// EventSessionRejected is logged when the first-party session cannot be resolved
	EventSessionRejected = "session_rejected"

	// EventWebhookSubscriptionFailed is logged when the best-effort webhook
	// subscription fails after a successful link
	EventWebhookSubscriptionFailed = "webhook_subscription_failed"

	// EventRateLimitExceeded is logged when a client exceeds the flow start rate limit
	EventRateLimitExceeded = "rate_limit_exceeded"
)
