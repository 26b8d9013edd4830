package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/auth"
	"github.com/desertthunder/muse/internal/shared"
)

// TokenManager is the slice of the auth manager the HTTP surface depends on.
type TokenManager interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code, state, cookieState string) (auth.Session, error)
	ValidAccessToken(ctx context.Context, sess *auth.Session) (string, error)
}

// AuthHandler serves the login, callback, logout, and status routes.
//
// Callback failures never surface error pages: the browser is redirected back to the
// frontend root, matching the behavior the frontend is built against.
type AuthHandler struct {
	tokens TokenManager
	logger *log.Logger
	now    func() time.Time
}

// NewAuthHandler creates the auth route handler.
func NewAuthHandler(tokens TokenManager, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &AuthHandler{tokens: tokens, logger: logger, now: time.Now}
}

// Routes returns the path patterns this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{
		"/api/auth/login",
		"/api/auth/callback",
		"/api/auth/logout",
		"/api/auth/status",
	}
}

// ServeHTTP dispatches to the auth route implementations.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/login":
		h.login(w, r)
	case "/api/auth/callback":
		h.callback(w, r)
	case "/api/auth/logout":
		h.logout(w, r)
	case "/api/auth/status":
		h.status(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login issues a fresh state nonce and redirects to the provider's authorization page.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateStateToken()
	auth.WriteStateCookie(w, state)
	http.Redirect(w, r, h.tokens.AuthURL(state), http.StatusFound)
}

// callback consumes the single-use state cookie, exchanges the authorization code, and
// writes the session cookies. Any failure redirects to the frontend root.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	cookieState := auth.ReadStateCookie(r)
	auth.ClearStateCookie(w)

	if query.Get("error") != "" || code == "" {
		h.logger.Warn("authorization denied or missing code", "error", query.Get("error"))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	sess, err := h.tokens.ExchangeCode(r.Context(), code, state, cookieState)
	if err != nil {
		h.logger.Warn("code exchange failed", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	auth.WriteSession(w, sess)
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// logout deletes the session cookies.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	auth.ClearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// status reports whether the session could produce a usable token: an unexpired access
// token, or an expired one with a refresh token still present.
func (h *AuthHandler) status(w http.ResponseWriter, r *http.Request) {
	sess := auth.ReadSession(r)

	authenticated := sess.Authenticated() &&
		(!sess.Expired(h.now()) || sess.RefreshToken != "")

	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}
