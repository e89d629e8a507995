package auth

import (
	"errors"
	"net/http"
	"strings"

	"calendar/config"
	"calendar/crypto"

	"github.com/gorilla/sessions"
)

const SessionName = "calendar-session"

const sessionUsernameKey = "username"

var ErrUnauthenticated = errors.New("not logged in")

// Sessions issues and reads the signed, encrypted login cookie. The cookie
// carries a single claim: the username.
type Sessions struct {
	store *sessions.CookieStore
}

func NewSessions(cfg *config.Config) *Sessions {
	// Separate keys for signing (HMAC) and content encryption (AES), both
	// derived from the configured secret
	store := sessions.NewCookieStore(
		crypto.DeriveKey(cfg.SessionKey, crypto.PurposeSessionAuth),
		crypto.DeriveKey(cfg.SessionKey, crypto.PurposeSessionEnc),
	)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(cfg.SessionMaxAgeSeconds)

	return &Sessions{store: store}
}

// Username returns the logged in user, or ErrUnauthenticated when the
// request carries no valid session.
func (s *Sessions) Username(r *http.Request) (string, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return "", ErrUnauthenticated
	}
	username, ok := session.Values[sessionUsernameKey].(string)
	if !ok || username == "" {
		return "", ErrUnauthenticated
	}
	return username, nil
}

func (s *Sessions) SetSession(w http.ResponseWriter, r *http.Request, username string) error {
	// A stale or tampered cookie yields a fresh session, which is what we want
	session, _ := s.store.Get(r, SessionName)
	session.Values[sessionUsernameKey] = username
	return session.Save(r, w)
}

func (s *Sessions) ClearSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, SessionName)
	delete(session.Values, sessionUsernameKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
