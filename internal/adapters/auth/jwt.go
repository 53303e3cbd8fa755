package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/realm/internal/domain"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token carries no user id")
)

// Verifier checks HMAC-signed tokens. The identity is read from the "id"
// claim, falling back to "sub".
type Verifier struct {
	Secret []byte
	TTL    time.Duration
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{Secret: []byte(secret), TTL: 24 * time.Hour}
}

func (v *Verifier) Verify(_ context.Context, token string) (domain.UserID, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	for _, key := range []string{"id", "sub"} {
		if s, ok := claims[key].(string); ok && s != "" {
			return domain.UserID(s), nil
		}
	}
	return "", ErrNoSubject
}

// Sign issues a token for id. Used by the dev token tool and tests.
func (v *Verifier) Sign(id domain.UserID) (string, time.Time, error) {
	ttl := v.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	exp := now.Add(ttl)
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"id":  string(id),
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString(v.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
