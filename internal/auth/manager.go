// Package auth owns the session token lifecycle: the cookie-backed [Session] record,
// the authorization-code and refresh-token grants, and the decision of when to refresh.
//
// The manager returns token values for callers to persist; it never touches cookies itself.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// Scopes requested on login. playlist-modify-private covers proposal confirmation,
// the rest cover the library data routes.
var scopes = []string{
	"user-read-private",
	"user-read-email",
	"user-top-read",
	"user-read-recently-played",
	"playlist-modify-private",
}

// Manager performs OAuth2 grants against the provider's token endpoint and
// decides per request whether a session's access token needs refreshing.
type Manager struct {
	config *oauth2.Config
	logger *log.Logger
	now    func() time.Time
}

// ManagerOpts contains configuration options for creating a Manager.
type ManagerOpts struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Endpoint     oauth2.Endpoint // zero value selects the Spotify accounts endpoints
	Logger       *log.Logger
}

// NewManager creates a Manager with the given OAuth2 credentials.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	endpoint := opts.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauth2.Endpoint{
			AuthURL:   spotifyAuthURL,
			TokenURL:  spotifyTokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Manager{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		logger: logger,
		now:    time.Now,
	}, nil
}

// AuthURL builds the authorization redirect URL carrying the given state nonce.
func (m *Manager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// ExchangeCode validates the returned state against the cookie value and performs the
// authorization-code grant.
//
// The state check is exact-match and fails closed: an empty cookie or parameter never
// proceeds to the exchange.
func (m *Manager) ExchangeCode(ctx context.Context, code, state, cookieState string) (Session, error) {
	if state == "" || cookieState == "" || state != cookieState {
		return Session{}, shared.ErrStateMismatch
	}

	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		return Session{}, fmt.Errorf("code exchange failed: %w", err)
	}

	return m.sessionFromToken(tok), nil
}

// Refresh performs the refresh-token grant.
//
// The provider may omit a new refresh token in the response; the previous one is
// preserved in that case rather than discarded.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, fmt.Errorf("%w: no refresh token available", shared.ErrRefreshFailed)
	}

	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// Provider rejected the grant: terminal for this refresh token.
			return Session{}, fmt.Errorf("%w: provider rejected refresh token: %v", shared.ErrRefreshFailed, err)
		}
		return Session{}, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	sess := m.sessionFromToken(tok)
	if sess.RefreshToken == "" {
		sess.RefreshToken = refreshToken
	}

	return sess, nil
}

// ValidAccessToken returns an access token whose expiry is in the future, refreshing
// the session in place when needed.
//
// On any failure the session's token record is cleared and [shared.ErrAuthRequired] is
// returned; the caller redirects to the authorization endpoint. Callers are responsible
// for persisting the mutated session back to the transport (cookies).
func (m *Manager) ValidAccessToken(ctx context.Context, sess *Session) (string, error) {
	if sess == nil || !sess.Authenticated() {
		return "", shared.ErrAuthRequired
	}

	if !sess.Expired(m.now()) {
		return sess.AccessToken, nil
	}

	m.logger.Debug("access token expired, refreshing", "expires_at", sess.ExpiresAt)

	refreshed, err := m.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		*sess = Session{}
		return "", fmt.Errorf("%w: %v", shared.ErrAuthRequired, err)
	}

	*sess = refreshed
	return sess.AccessToken, nil
}

// sessionFromToken maps an [oauth2.Token] onto the cookie-backed record.
func (m *Manager) sessionFromToken(tok *oauth2.Token) Session {
	expiresAt := m.now().Unix()
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.Unix()
	}

	return Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}
