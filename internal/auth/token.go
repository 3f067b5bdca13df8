package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the lifetime of a session token.
const TokenTTL = 24 * time.Hour

var (
	ErrBearerPrefix = errors.New("token must not carry a Bearer prefix")
	ErrTokenInvalid = errors.New("token invalid")
)

// Codec issues and verifies HS512 session tokens whose subject is the
// member's email. It holds no per-token state.
type Codec struct {
	secret []byte
	now    func() time.Time
}

type CodecOption func(*Codec)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(secret string, opts ...CodecOption) *Codec {
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Issue(subject string, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TokenTTL)),
	}
	return signTokenFn(c, claims)
}

// Validate never fails loudly: malformed, foreign, prefixed and expired
// tokens all yield false.
func (c *Codec) Validate(token string) bool {
	_, err := c.parse(token)
	return err == nil
}

func (c *Codec) SubjectOf(token string) (string, error) {
	claims, err := c.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (c *Codec) parse(token string) (*jwt.RegisteredClaims, error) {
	if hasBearerPrefix(token) {
		return nil, ErrBearerPrefix
	}
	parsed, err := parseWithClaimsFn(token, &jwt.RegisteredClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func hasBearerPrefix(token string) bool {
	return len(token) >= 7 && strings.EqualFold(token[:7], "Bearer ")
}

var signTokenFn = func(c *Codec, claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
}

var parseWithClaimsFn = jwt.ParseWithClaims
