package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/giantswarm/instagram-link/internal/util"
)

// MaxResponseBytes bounds how much of a provider response body is read.
const MaxResponseBytes = 1 << 20

// maxErrorBodyLength bounds the raw body kept on a RetrieveError.
const maxErrorBodyLength = 512

// ReadBody reads at most MaxResponseBytes from resp.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// NewRetrieveError builds an *oauth2.RetrieveError from a failed token
// endpoint response. It understands both the RFC 6749 error shape and the
// error_type/error_message shape used by the Instagram endpoints.
func NewRetrieveError(resp *http.Response, body []byte) *oauth2.RetrieveError {
	var payload struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
		ErrorType        string          `json:"error_type"`
		ErrorMessage     string          `json:"error_message"`
		Code             int             `json:"code"`
	}
	_ = json.Unmarshal(body, &payload)

	rerr := &oauth2.RetrieveError{
		Response:         resp,
		Body:             []byte(util.SafeTruncate(string(body), maxErrorBodyLength)),
		ErrorCode:        payload.ErrorType,
		ErrorDescription: payload.ErrorMessage,
	}

	// "error" is either a string code or a graph-style object.
	var code string
	var nested struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	switch {
	case json.Unmarshal(payload.Error, &code) == nil && code != "":
		rerr.ErrorCode = code
		rerr.ErrorDescription = payload.ErrorDescription
	case json.Unmarshal(payload.Error, &nested) == nil && nested.Type != "":
		rerr.ErrorCode = nested.Type
		rerr.ErrorDescription = nested.Message
	}
	return rerr
}
