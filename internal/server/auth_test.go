package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/muse/internal/auth"
	"github.com/desertthunder/muse/internal/shared"
)

// fakeTokens is a test double for [TokenManager].
type fakeTokens struct {
	session     auth.Session
	exchangeErr error

	validToken string
	validErr   error
	// refreshed, when set, replaces the session inside ValidAccessToken to simulate a refresh
	refreshed *auth.Session

	validCalls int
}

func (f *fakeTokens) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (f *fakeTokens) ExchangeCode(_ context.Context, code, state, cookieState string) (auth.Session, error) {
	if state == "" || cookieState == "" || state != cookieState {
		return auth.Session{}, shared.ErrStateMismatch
	}
	if f.exchangeErr != nil {
		return auth.Session{}, f.exchangeErr
	}
	return f.session, nil
}

func (f *fakeTokens) ValidAccessToken(_ context.Context, sess *auth.Session) (string, error) {
	f.validCalls++
	if f.validErr != nil {
		*sess = auth.Session{}
		return "", f.validErr
	}
	if f.refreshed != nil {
		*sess = *f.refreshed
	}
	return f.validToken, nil
}

func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	cookies := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		cookies[c.Name] = c
	}
	return cookies
}

func TestLogin(t *testing.T) {
	h := NewAuthHandler(&fakeTokens{}, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}

	stateCookie := responseCookies(w)[auth.CookieOAuthState]
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("state cookie not set")
	}

	location := w.Header().Get("Location")
	if !strings.Contains(location, "state="+stateCookie.Value) {
		t.Errorf("redirect %q does not carry the state cookie value %q", location, stateCookie.Value)
	}
}

func TestCallback(t *testing.T) {
	newRequest := func(query string, cookieState string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/auth/callback?"+query, nil)
		if cookieState != "" {
			r.AddCookie(&http.Cookie{Name: auth.CookieOAuthState, Value: cookieState})
		}
		return r
	}

	t.Run("provider error redirects home", func(t *testing.T) {
		h := NewAuthHandler(&fakeTokens{}, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("error=access_denied", "nonce"))

		if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
			t.Errorf("expected redirect to /, got %d %s", w.Code, w.Header().Get("Location"))
		}
	})

	t.Run("state mismatch redirects home without session cookies", func(t *testing.T) {
		h := NewAuthHandler(&fakeTokens{session: auth.Session{AccessToken: "at"}}, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("code=abc&state=evil", "nonce"))

		if w.Header().Get("Location") != "/" {
			t.Errorf("Location = %q, want /", w.Header().Get("Location"))
		}
		if c := responseCookies(w)[auth.CookieAccessToken]; c != nil {
			t.Error("session cookie written despite failed state check")
		}
	})

	t.Run("successful exchange writes session cookies and redirects to profile", func(t *testing.T) {
		want := auth.Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour).Unix()}
		h := NewAuthHandler(&fakeTokens{session: want}, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("code=abc&state=nonce", "nonce"))

		if w.Header().Get("Location") != "/profile" {
			t.Errorf("Location = %q, want /profile", w.Header().Get("Location"))
		}

		cookies := responseCookies(w)
		if c := cookies[auth.CookieAccessToken]; c == nil || c.Value != "at" {
			t.Error("access token cookie not written")
		}
		if c := cookies[auth.CookieRefreshToken]; c == nil || c.Value != "rt" {
			t.Error("refresh token cookie not written")
		}

		state := cookies[auth.CookieOAuthState]
		if state == nil || state.MaxAge >= 0 {
			t.Error("state cookie not consumed")
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("POST clears session cookies", func(t *testing.T) {
		h := NewAuthHandler(&fakeTokens{}, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}

		cookies := responseCookies(w)
		for _, name := range []string{auth.CookieAccessToken, auth.CookieRefreshToken, auth.CookieExpiresAt} {
			if c := cookies[name]; c == nil || c.MaxAge >= 0 {
				t.Errorf("cookie %s not cleared", name)
			}
		}
	})

	t.Run("GET is rejected", func(t *testing.T) {
		h := NewAuthHandler(&fakeTokens{}, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})
}

func TestStatus(t *testing.T) {
	serve := func(t *testing.T, sess auth.Session) string {
		t.Helper()

		h := NewAuthHandler(&fakeTokens{}, nil)

		r := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		w := httptest.NewRecorder()
		recorder := httptest.NewRecorder()
		auth.WriteSession(recorder, sess)
		for _, c := range recorder.Result().Cookies() {
			r.AddCookie(c)
		}

		h.ServeHTTP(w, r)
		return strings.TrimSpace(w.Body.String())
	}

	t.Run("no tokens", func(t *testing.T) {
		if got := serve(t, auth.Session{}); got != `{"authenticated":false}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("valid access token", func(t *testing.T) {
		sess := auth.Session{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour).Unix()}
		if got := serve(t, sess); got != `{"authenticated":true}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("expired with refresh token", func(t *testing.T) {
		sess := auth.Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1}
		if got := serve(t, sess); got != `{"authenticated":true}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		sess := auth.Session{AccessToken: "at", ExpiresAt: 1}
		if got := serve(t, sess); got != `{"authenticated":false}` {
			t.Errorf("body = %s", got)
		}
	})
}
