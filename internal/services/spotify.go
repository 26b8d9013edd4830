// Spotify Web API client
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/shared"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// defaultTimeout bounds every outbound provider call.
const defaultTimeout = 10 * time.Second

// ProviderError is a non-401 failure from the resource API, surfaced to callers as a
// gateway-style error with the provider's status and body.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Body)
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	Email        string         `json:"email"`
	Images       []SpotifyImage `json:"images"`
	ExternalURLs externalURLs   `json:"external_urls"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Genres       []string       `json:"genres"`
	Images       []SpotifyImage `json:"images"`
	Popularity   int            `json:"popularity"`
	ExternalURLs externalURLs   `json:"external_urls"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	URI          string          `json:"uri"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

// Owner identifies the user owning a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
type SpotifyPlaylistTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

type playlistTracks struct {
	Total int                    `json:"total"`
	Items []SpotifyPlaylistTrack `json:"items"`
}

// SpotifyPlaylist represents a full playlist object.
type SpotifyPlaylist struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Owner        Owner          `json:"owner"`
	Public       bool           `json:"public"`
	Followers    followers      `json:"followers"`
	Tracks       playlistTracks `json:"tracks"`
	Images       []SpotifyImage `json:"images"`
	ExternalURLs externalURLs   `json:"external_urls"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Owner        Owner                `json:"owner"`
	Public       bool                 `json:"public"`
	Tracks       simplePlaylistTracks `json:"tracks"`
	Images       []SpotifyImage       `json:"images"`
	ExternalURLs externalURLs         `json:"external_urls"`
}

// SpotifyPaginatedPlaylists represents a page of the user's playlists.
type SpotifyPaginatedPlaylists struct {
	Items []SpotifySimplePlaylist `json:"items"`
	Total int                     `json:"total"`
	Next  *string                 `json:"next"`
}

// SpotifyPlayHistoryItem represents one entry of the recently-played feed.
type SpotifyPlayHistoryItem struct {
	PlayedAt string       `json:"played_at"`
	Track    SpotifyTrack `json:"track"`
}

// SpotifyClient issues authenticated requests against the Spotify Web API.
//
// The client holds no user state; callers supply the bearer token per call.
type SpotifyClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// SpotifyClientOpts contains configuration options for creating a SpotifyClient.
type SpotifyClientOpts struct {
	BaseURL    string // defaults to the public API base URL
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewSpotifyClient creates a new Spotify API client.
func NewSpotifyClient(opts SpotifyClientOpts) *SpotifyClient {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SpotifyClient{
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
}

// do performs an authenticated request and decodes the JSON response into result.
//
// endpoint may be a path relative to the base URL or an absolute URL (pagination links).
// A 401 maps to [shared.ErrUnauthorized]; any other non-2xx status maps to [*ProviderError].
func (c *SpotifyClient) do(ctx context.Context, method, endpoint, token string, body, result any) error {
	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = c.baseURL + endpoint
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: status 401", shared.ErrUnauthorized)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{Status: resp.StatusCode, Body: string(data)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Profile retrieves the authenticated user's profile.
func (c *SpotifyClient) Profile(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlists retrieves all of the user's playlists, following the next cursor link until
// exhausted and preserving provider order.
func (c *SpotifyClient) Playlists(ctx context.Context, token string) ([]SpotifySimplePlaylist, error) {
	var all []SpotifySimplePlaylist
	endpoint := "/me/playlists"

	for endpoint != "" {
		var page SpotifyPaginatedPlaylists
		if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Items...)

		if page.Next == nil {
			break
		}
		endpoint = *page.Next
	}

	return all, nil
}

// Playlist retrieves a playlist by ID.
func (c *SpotifyClient) Playlist(ctx context.Context, token, playlistID string) (*SpotifyPlaylist, error) {
	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("/playlists/%s", playlistID)
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// TopArtists retrieves the user's top artists for the given time range.
func (c *SpotifyClient) TopArtists(ctx context.Context, token, timeRange string, limit int) ([]SpotifyArtist, error) {
	if timeRange == "" {
		timeRange = "medium_term"
	}
	if limit <= 0 {
		limit = 20
	}

	endpoint := fmt.Sprintf("/me/top/artists?time_range=%s&limit=%d", url.QueryEscape(timeRange), limit)

	var response struct {
		Items []SpotifyArtist `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// RecentlyPlayed retrieves the user's recently played tracks.
func (c *SpotifyClient) RecentlyPlayed(ctx context.Context, token string, limit int) ([]SpotifyPlayHistoryItem, error) {
	if limit <= 0 {
		limit = 10
	}

	endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", limit)

	var response struct {
		Items []SpotifyPlayHistoryItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Items, nil
}

// CreatePlaylist creates a playlist owned by the given user.
func (c *SpotifyClient) CreatePlaylist(ctx context.Context, token, ownerID, name, description string, public bool) (*SpotifyPlaylist, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(ownerID))

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var playlist SpotifyPlaylist
	if err := c.do(ctx, http.MethodPost, endpoint, token, body, &playlist); err != nil {
		return nil, err
	}

	return &playlist, nil
}

// AddTracks appends tracks to a playlist in a single batched call.
//
// Track IDs are converted to spotify:track: URIs; order is preserved.
func (c *SpotifyClient) AddTracks(ctx context.Context, token, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return fmt.Errorf("%w: no track IDs provided", shared.ErrInvalidInput)
	}

	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = "spotify:track:" + id
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	body := map[string]any{"uris": uris}

	return c.do(ctx, http.MethodPost, endpoint, token, body, nil)
}
