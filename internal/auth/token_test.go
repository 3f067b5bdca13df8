package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errSign = errors.New("sign error")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueValidateSubject(t *testing.T) {
	codec := NewCodec("test-secret")
	token, err := codec.Issue("a@x.com", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !codec.Validate(token) {
		t.Fatalf("expected token to validate")
	}
	subject, err := codec.SubjectOf(token)
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	if subject != "a@x.com" {
		t.Fatalf("unexpected subject: %s", subject)
	}
}

func TestTokenExpiryBoundary(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := NewCodec("test-secret").Issue("a@x.com", issuedAt)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	before := NewCodec("test-secret", WithClock(fixedClock(issuedAt.Add(23*time.Hour+59*time.Minute))))
	if !before.Validate(token) {
		t.Fatalf("expected token valid at +23h59m")
	}

	after := NewCodec("test-secret", WithClock(fixedClock(issuedAt.Add(24*time.Hour+time.Minute))))
	if after.Validate(token) {
		t.Fatalf("expected token invalid at +24h1m")
	}
	if _, err := after.SubjectOf(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestTokensAreDistinct(t *testing.T) {
	codec := NewCodec("test-secret")
	now := time.Now()
	a, _ := codec.Issue("a@x.com", now)
	b, _ := codec.Issue("b@x.com", now)
	c, _ := codec.Issue("a@x.com", now.Add(time.Second))
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct tokens")
	}
}

func TestValidateRejects(t *testing.T) {
	codec := NewCodec("test-secret")
	token, _ := codec.Issue("a@x.com", time.Now())

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"truncated":    token[:len(token)-5],
		"other secret": mustIssue(t, NewCodec("other-secret"), "a@x.com"),
		"bearer":       "Bearer " + token,
	}
	for name, tok := range cases {
		if codec.Validate(tok) {
			t.Fatalf("%s: expected validate to be false", name)
		}
	}
}

func TestSubjectOfBearerPrefix(t *testing.T) {
	codec := NewCodec("test-secret")
	token, _ := codec.Issue("a@x.com", time.Now())
	if _, err := codec.SubjectOf("Bearer " + token); !errors.Is(err, ErrBearerPrefix) {
		t.Fatalf("expected bearer prefix error, got %v", err)
	}
	if _, err := codec.SubjectOf("bearer " + token); !errors.Is(err, ErrBearerPrefix) {
		t.Fatalf("expected case-insensitive prefix check, got %v", err)
	}
}

func TestValidateRejectsOtherAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "a@x.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if NewCodec("test-secret").Validate(token) {
		t.Fatalf("expected HS256 token to be rejected")
	}
}

func TestValidateRequiresExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "a@x.com"}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if NewCodec("test-secret").Validate(token) {
		t.Fatalf("expected token without exp to be rejected")
	}
}

func TestParseTokenInvalid(t *testing.T) {
	oldParse := parseWithClaimsFn
	parseWithClaimsFn = func(_ string, _ jwt.Claims, _ jwt.Keyfunc, _ ...jwt.ParserOption) (*jwt.Token, error) {
		return &jwt.Token{Valid: false, Claims: &jwt.RegisteredClaims{}}, nil
	}
	defer func() { parseWithClaimsFn = oldParse }()

	if _, err := NewCodec("test-secret").SubjectOf("token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestIssueSignError(t *testing.T) {
	oldSign := signTokenFn
	signTokenFn = func(_ *Codec, _ jwt.RegisteredClaims) (string, error) {
		return "", errSign
	}
	defer func() { signTokenFn = oldSign }()

	if _, err := NewCodec("test-secret").Issue("a@x.com", time.Now()); err == nil {
		t.Fatalf("expected error")
	}
}

func mustIssue(t *testing.T, codec *Codec, subject string) string {
	t.Helper()
	token, err := codec.Issue(subject, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("unexpected token shape")
	}
	return token
}
