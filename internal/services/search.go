package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const spotifyAccountsTokenURL = "https://accounts.spotify.com/api/token"

// refreshWindow is how close to expiry the cached app token is treated as stale.
const refreshWindow = 60 * time.Second

// SearchService resolves track queries against the catalog using an app-level
// client-credentials token, shared across all sessions.
type SearchService struct {
	conf   *clientcredentials.Config
	client *SpotifyClient
	logger *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
	group singleflight.Group
}

// SearchServiceOpts contains configuration options for creating a SearchService.
type SearchServiceOpts struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to the Spotify accounts token endpoint
	Client       *SpotifyClient
	Logger       *log.Logger
}

// NewSearchService creates a search service backed by the client-credentials grant.
func NewSearchService(opts SearchServiceOpts) (*SearchService, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyAccountsTokenURL
	}

	if opts.Client == nil {
		opts.Client = NewSpotifyClient(SpotifyClientOpts{Logger: opts.Logger})
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SearchService{
		conf: &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		client: opts.Client,
		logger: opts.Logger,
		now:    time.Now,
	}, nil
}

// appToken returns a cached app token, fetching a new one when the cache is empty or
// within the refresh window of expiry. Concurrent callers share one grant request.
func (s *SearchService) appToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()

	if tok != nil && (tok.Expiry.IsZero() || s.now().Add(refreshWindow).Before(tok.Expiry)) {
		return tok.AccessToken, nil
	}

	v, err, _ := s.group.Do("app-token", func() (any, error) {
		// Re-check under the flight: a caller that lost the race may arrive after the
		// winning fetch already stored a fresh token.
		s.mu.Lock()
		cached := s.token
		s.mu.Unlock()
		if cached != nil && (cached.Expiry.IsZero() || s.now().Add(refreshWindow).Before(cached.Expiry)) {
			return cached.AccessToken, nil
		}

		fresh, err := s.conf.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("client credentials grant failed: %w", err)
		}

		s.mu.Lock()
		s.token = fresh
		s.mu.Unlock()

		s.logger.Debug("fetched app search token", "expires_at", fresh.Expiry.Unix())
		return fresh.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// SearchTrack searches the catalog for tracks matching the query.
func (s *SearchService) SearchTrack(ctx context.Context, query string, limit int) ([]SpotifyTrack, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 1
	}

	token, err := s.appToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := s.client.do(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Tracks.Items, nil
}
