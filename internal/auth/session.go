package auth

import (
	"net/http"
	"strconv"
	"time"
)

// Cookie names carrying the session token record and the OAuth state nonce.
//
// All cookies are http-only and SameSite=Lax; the server never persists tokens centrally.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieExpiresAt    = "expires_at"
	CookieOAuthState   = "spotify_oauth_state"
)

// StateTTL bounds the lifetime of the OAuth state cookie.
const StateTTL = 300 * time.Second

// Session is the per-browser-session token record.
//
// ExpiresAt is an absolute unix timestamp (seconds) for when AccessToken becomes invalid.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// Authenticated reports whether the record carries an access token.
// A record with a refresh token but no access token is invalid and forces re-authentication.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Expired reports whether the access token is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return now.Unix() > s.ExpiresAt
}

// ReadSession deserializes the token record from request cookies.
// Missing or malformed cookies yield zero values; a bad expires_at reads as 0 (expired).
func ReadSession(r *http.Request) Session {
	var s Session

	if c, err := r.Cookie(CookieAccessToken); err == nil {
		s.AccessToken = c.Value
	}
	if c, err := r.Cookie(CookieRefreshToken); err == nil {
		s.RefreshToken = c.Value
	}
	if c, err := r.Cookie(CookieExpiresAt); err == nil {
		if v, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			s.ExpiresAt = v
		}
	}

	return s
}

// WriteSession serializes the token record onto the outgoing response.
//
// The refresh token cookie is only rewritten when present, so a refresh response that
// omitted a new refresh token leaves the browser's existing cookie untouched.
func WriteSession(w http.ResponseWriter, s Session) {
	setCookie(w, CookieAccessToken, s.AccessToken, 0)
	if s.RefreshToken != "" {
		setCookie(w, CookieRefreshToken, s.RefreshToken, 0)
	}
	setCookie(w, CookieExpiresAt, strconv.FormatInt(s.ExpiresAt, 10), 0)
}

// ClearSession deletes all token cookies (logout).
func ClearSession(w http.ResponseWriter) {
	deleteCookie(w, CookieAccessToken)
	deleteCookie(w, CookieRefreshToken)
	deleteCookie(w, CookieExpiresAt)
	deleteCookie(w, CookieOAuthState)
}

// WriteStateCookie sets the short-lived anti-CSRF state cookie at the start of the
// authorization redirect.
func WriteStateCookie(w http.ResponseWriter, state string) {
	setCookie(w, CookieOAuthState, state, int(StateTTL.Seconds()))
}

// ReadStateCookie returns the state nonce from the request, or "" when absent.
func ReadStateCookie(r *http.Request) string {
	c, err := r.Cookie(CookieOAuthState)
	if err != nil {
		return ""
	}
	return c.Value
}

// ClearStateCookie consumes the single-use state cookie.
func ClearStateCookie(w http.ResponseWriter) {
	deleteCookie(w, CookieOAuthState)
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func deleteCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
