package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/arena/internal/domain/errs"
	"github.com/okian/arena/internal/domain/model"
)

// ErrNoSecret is returned when an authenticator is built without a key.
var ErrNoSecret = errors.New("identity: empty signing secret")

// Claims are the token fields the service reads. The subject is the user id.
type Claims struct {
	Role         string  `json:"role"`
	Competitions []int64 `json:"competitions,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies and issues HS256 bearer tokens.
type Authenticator struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithIssuer sets the iss claim written and required.
func WithIssuer(iss string) AuthOption {
	return func(a *Authenticator) { a.issuer = iss }
}

// WithClock sets the time source for expiry checks.
func WithClock(now func() time.Time) AuthOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator creates an authenticator for secret.
func NewAuthenticator(secret []byte, opts ...AuthOption) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	a := &Authenticator{key: secret, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate parses a token, with or without the "Bearer " prefix.
func (a *Authenticator) Authenticate(token string) (model.Principal, error) {
	const op = "identity.authenticate"
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return model.Principal{}, errs.NewKind(op, errs.ErrUnauthenticated, "missing token")
	}

	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	tkn, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.key, nil
	}, parserOpts...)
	if err != nil {
		return model.Principal{}, errs.WrapKind(op, errs.ErrUnauthenticated, err)
	}
	if !tkn.Valid {
		return model.Principal{}, errs.NewKind(op, errs.ErrUnauthenticated, "invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return model.Principal{}, errs.NewKind(op, errs.ErrUnauthenticated, "invalid subject %q", claims.Subject)
	}
	role := model.Role(strings.ToLower(claims.Role))
	switch role {
	case model.RoleAdmin, model.RoleJudge, model.RoleViewer:
	default:
		return model.Principal{}, errs.NewKind(op, errs.ErrUnauthenticated, "unknown role %q", claims.Role)
	}
	return model.Principal{UserID: id, Role: role, Competitions: claims.Competitions}, nil
}

// Issue signs a token for p valid for ttl.
func (a *Authenticator) Issue(p model.Principal, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		Role:         string(p.Role),
		Competitions: p.Competitions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
