package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testStateKey(t *testing.T, secret string) []byte {
	t.Helper()
	key, err := DeriveKey([]byte(secret), StateKeyInfo)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	return key
}

func newTestCodec(t *testing.T, now *time.Time) *StateCodec {
	t.Helper()
	codec, err := NewStateCodec(testStateKey(t, "test-state-secret-0123456789"),
		WithStateClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	return codec
}

func TestNewStateCodec(t *testing.T) {
	if _, err := NewStateCodec(make([]byte, 16)); err == nil {
		t.Error("NewStateCodec() with short key should fail")
	}

	codec, err := NewStateCodec(make([]byte, KeySize), WithStateTTL(2*time.Minute))
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	if codec.TTL() != 2*time.Minute {
		t.Errorf("TTL() = %v, want 2m", codec.TTL())
	}

	codec, _ = NewStateCodec(make([]byte, KeySize), WithStateTTL(-1))
	if codec.TTL() != DefaultStateTTL {
		t.Errorf("TTL() = %v, want default %v", codec.TTL(), DefaultStateTTL)
	}
}

func TestStateCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	state, err := codec.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if len(state) > MaxStateLength {
		t.Errorf("issued state length %d exceeds MaxStateLength", len(state))
	}

	claims, err := codec.Parse(state)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		t.Errorf("jti %q is not a UUID", claims.ID)
	}
	if !codec.Verify(state) {
		t.Error("Verify() = false for a freshly issued state")
	}
}

func TestStateCodec_IssueIsUnique(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	a, _ := codec.Issue("")
	b, _ := codec.Issue("")
	if a == b {
		t.Error("two states issued at the same instant must differ")
	}
}

func TestStateCodec_Expiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	codec := newTestCodec(t, &now)

	state, err := codec.Issue("")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	now = start.Add(DefaultStateTTL - time.Second)
	if !codec.Verify(state) {
		t.Error("state should be valid just before expiry")
	}

	now = start.Add(DefaultStateTTL + DefaultClockSkewGracePeriod - time.Second)
	if !codec.Verify(state) {
		t.Error("state should be valid within the clock skew grace period")
	}

	now = start.Add(DefaultStateTTL + DefaultClockSkewGracePeriod + 2*time.Second)
	_, err = codec.Parse(state)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Parse() after expiry error = %v, want ErrInvalidState", err)
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Parse() after expiry error = %v, want wrapped ErrTokenExpired", err)
	}
}

func TestStateCodec_IssuedInFuture(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	codec := newTestCodec(t, &now)

	state, _ := codec.Issue("")
	now = start.Add(-time.Minute)
	if codec.Verify(state) {
		t.Error("state issued a minute in the future should be rejected")
	}
}

func TestStateCodec_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)
	valid, _ := codec.Issue("user-1")

	otherNow := now
	other := newTestCodecWithSecret(t, "a-different-secret-abcdefgh", &otherNow)
	foreign, _ := other.Issue("user-1")

	baseClaims := func() StateClaims {
		return StateClaims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			ID:        "jti-1",
		}}
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, baseClaims()).SignedString(codec.key)

	wrongAud := baseClaims()
	wrongAud.Audience = jwt.ClaimStrings{"someone-else"}
	wrongAudToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, wrongAud).SignedString(codec.key)

	wrongIss := baseClaims()
	wrongIss.Issuer = "evil"
	wrongIssToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, wrongIss).SignedString(codec.key)

	noExp := baseClaims()
	noExp.ExpiresAt = nil
	noExpToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, noExp).SignedString(codec.key)

	noID := baseClaims()
	noID.ID = ""
	noIDToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, noID).SignedString(codec.key)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		state string
	}{
		{name: "empty", state: ""},
		{name: "garbage", state: "not-a-state"},
		{name: "oversized", state: strings.Repeat("a", MaxStateLength+1)},
		{name: "signed with another key", state: foreign},
		{name: "tampered payload", state: tampered},
		{name: "alg none", state: none},
		{name: "HS512", state: hs512},
		{name: "wrong audience", state: wrongAudToken},
		{name: "wrong issuer", state: wrongIssToken},
		{name: "missing exp", state: noExpToken},
		{name: "missing jti", state: noIDToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if codec.Verify(tt.state) {
				t.Error("Verify() = true, want false")
			}
			if _, err := codec.Parse(tt.state); !errors.Is(err, ErrInvalidState) {
				t.Errorf("Parse() error = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestStateCodec_SharedSecretAcrossInstances(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := newTestCodec(t, &now)
	b := newTestCodec(t, &now)

	state, _ := a.Issue("")
	if !b.Verify(state) {
		t.Error("an instance sharing the secret must accept the state")
	}
}

func newTestCodecWithSecret(t *testing.T, secret string, now *time.Time) *StateCodec {
	t.Helper()
	codec, err := NewStateCodec(testStateKey(t, secret), WithStateClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewStateCodec() error = %v", err)
	}
	return codec
}

func TestStateCodec_ReusableUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	state, err := codec.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := codec.Parse(state); err != nil {
			t.Fatalf("Parse() #%d error = %v", i+1, err)
		}
		now = now.Add(codec.TTL() / 4)
	}

	now = now.Add(codec.TTL() + DefaultClockSkewGracePeriod)
	if _, err := codec.Parse(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Parse() after expiry error = %v, want ErrInvalidState", err)
	}
}
