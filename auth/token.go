package auth

import (
	"strings"
	"time"

	"calendar/config"
	"calendar/crypto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Tokens issues HS256 bearer tokens for API clients. The subject is the
// username, which is all the API needs to scope requests.
type Tokens struct {
	secret []byte
	expiry time.Duration
	issuer string
}

func NewTokens(cfg *config.Config) *Tokens {
	return &Tokens{
		secret: crypto.DeriveKey(cfg.SessionKey, crypto.PurposeToken),
		expiry: cfg.TokenTTL(),
		issuer: cfg.AppName,
	}
}

func (t *Tokens) Issue(username string) (string, error) {
	if username == "" {
		return "", ErrUnauthenticated
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   username,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify returns the username of a valid token, or ErrUnauthenticated.
func (t *Tokens) Verify(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthenticated
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}
