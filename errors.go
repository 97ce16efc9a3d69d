package link

import (
	"net/url"

	"github.com/giantswarm/instagram-link/internal/util"
	"github.com/giantswarm/instagram-link/server"
)

// Redirect error codes, as read by the web application
const (
	ErrorCodeInstagramAuth  = "instagram_auth"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidState   = "invalid_state"
	ErrorCodeDatabase       = "database"
	ErrorCodeUnknown        = "unknown"
	ErrorCodeNoSession      = "no_session"
	ErrorCodeInvalidSession = "invalid_session"
)

// RedirectErrorCode maps a flow failure reason to the error code carried on
// the redirect. It returns "" for success.
func RedirectErrorCode(reason server.Reason) string {
	switch reason {
	case server.ReasonNone:
		return ""
	case server.ReasonProviderDenied:
		return ErrorCodeInstagramAuth
	case server.ReasonInvalidRequest:
		return ErrorCodeInvalidRequest
	case server.ReasonInvalidState:
		return ErrorCodeInvalidState
	case server.ReasonPersistenceFailed:
		return ErrorCodeDatabase
	case server.ReasonNoSession:
		return ErrorCodeNoSession
	case server.ReasonInvalidSession:
		return ErrorCodeInvalidSession
	default:
		// exchange failures included
		return ErrorCodeUnknown
	}
}

// isLoginReason reports whether the user must sign in again
func isLoginReason(reason server.Reason) bool {
	return reason == server.ReasonNoSession || reason == server.ReasonInvalidSession
}

// RedirectTarget builds the absolute redirect for a callback outcome.
// Session failures go to the login page, everything else to settings.
func RedirectTarget(appURL string, reason server.Reason) string {
	if reason == server.ReasonNone {
		return util.JoinURL(appURL, settingsPath) + "?" + url.Values{"success": {"true"}}.Encode()
	}

	path := settingsPath
	if isLoginReason(reason) {
		path = loginPath
	}
	return util.JoinURL(appURL, path) + "?" + url.Values{"error": {RedirectErrorCode(reason)}}.Encode()
}
