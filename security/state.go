package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultStateTTL is how long an issued state stays valid.
	DefaultStateTTL = 10 * time.Minute

	// DefaultClockSkewGracePeriod is the leeway applied to time-based claims
	// to absorb small clock differences between instances.
	DefaultClockSkewGracePeriod = 5 * time.Second

	// MaxStateLength bounds the size of a state value accepted for parsing.
	MaxStateLength = 2048

	stateIssuer   = "instagram-link"
	stateAudience = "instagram-link/state"
)

// ErrInvalidState is returned for any state that fails verification.
var ErrInvalidState = errors.New("invalid state")

// StateClaims are the claims carried by a state token.
// Subject holds the first-party user that started the flow, when known.
type StateClaims struct {
	jwt.RegisteredClaims
}

// StateOption configures a StateCodec.
type StateOption func(*StateCodec)

// WithStateTTL overrides DefaultStateTTL.
func WithStateTTL(ttl time.Duration) StateOption {
	return func(c *StateCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStateClock sets the time source used for issuing and validating states.
func WithStateClock(now func() time.Time) StateOption {
	return func(c *StateCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// StateCodec issues and verifies signed, time-bound CSRF state values.
// It holds no per-flow state and is safe for concurrent use.
//
// The jti is not tracked, so a state verifies any number of times until it
// expires. Replay is bounded by the TTL, by the subject binding checked at
// the callback and by the provider accepting each authorization code once.
type StateCodec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewStateCodec creates a codec signing with key, which must be at least KeySize bytes.
func NewStateCodec(key []byte, opts ...StateOption) (*StateCodec, error) {
	if len(key) < KeySize {
		return nil, fmt.Errorf("state key must be at least %d bytes, got %d", KeySize, len(key))
	}

	c := &StateCodec{
		key: append([]byte(nil), key...),
		ttl: DefaultStateTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(DefaultClockSkewGracePeriod),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// TTL returns the lifetime of issued states.
func (c *StateCodec) TTL() time.Duration {
	return c.ttl
}

// Issue mints a new state for a flow started by subject (may be empty).
func (c *StateCodec) Issue(subject string) (string, error) {
	now := c.now()
	claims := StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Parse verifies state and returns its claims.
// The signature is checked before expiry, issuer and audience.
func (c *StateCodec) Parse(state string) (*StateClaims, error) {
	if state == "" || len(state) > MaxStateLength {
		return nil, ErrInvalidState
	}

	claims := &StateClaims{}
	token, err := c.parser.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, ErrInvalidState
	}
	return claims, nil
}

// Verify reports whether state was issued by this codec and has not expired.
func (c *StateCodec) Verify(state string) bool {
	_, err := c.Parse(state)
	return err == nil
}
