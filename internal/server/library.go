package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/auth"
	"github.com/desertthunder/muse/internal/services"
	"github.com/desertthunder/muse/internal/shared"
)

// LibraryAPI is the slice of the provider client the data routes depend on.
type LibraryAPI interface {
	Profile(ctx context.Context, token string) (*services.SpotifyUser, error)
	Playlists(ctx context.Context, token string) ([]services.SpotifySimplePlaylist, error)
	Playlist(ctx context.Context, token, playlistID string) (*services.SpotifyPlaylist, error)
	TopArtists(ctx context.Context, token, timeRange string, limit int) ([]services.SpotifyArtist, error)
	RecentlyPlayed(ctx context.Context, token string, limit int) ([]services.SpotifyPlayHistoryItem, error)
}

// LibraryHandler serves the authenticated library data routes.
//
// Each route validates the session token up front, refreshing and rewriting cookies when
// needed. A 401 from the provider gets one forced refresh and retry; a second failure
// redirects to the authorization endpoint.
type LibraryHandler struct {
	tokens  TokenManager
	spotify LibraryAPI
	logger  *log.Logger
}

// NewLibraryHandler creates the library data route handler.
func NewLibraryHandler(tokens TokenManager, spotify LibraryAPI, logger *log.Logger) *LibraryHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &LibraryHandler{tokens: tokens, spotify: spotify, logger: logger}
}

// Routes returns the path patterns this handler serves.
func (h *LibraryHandler) Routes() []string {
	return []string{
		"/api/me",
		"/api/playlists",
		"/api/playlists/",
		"/api/top-artists",
		"/api/recently-played",
	}
}

// ServeHTTP dispatches to the library route implementations.
func (h *LibraryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch {
	case r.URL.Path == "/api/me":
		h.me(w, r)
	case r.URL.Path == "/api/playlists":
		h.playlists(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/playlists/"):
		h.playlistDetails(w, r)
	case r.URL.Path == "/api/top-artists":
		h.topArtists(w, r)
	case r.URL.Path == "/api/recently-played":
		h.recentlyPlayed(w, r)
	default:
		http.NotFound(w, r)
	}
}

// withToken runs fn with a valid access token, refreshing the session when needed and
// retrying once after a provider 401.
//
// Refreshed sessions are written back as cookies before fn runs so the browser record
// stays current even when fn fails.
func (h *LibraryHandler) withToken(w http.ResponseWriter, r *http.Request, fn func(token string) error) {
	sess := auth.ReadSession(r)
	before := sess

	token, err := h.tokens.ValidAccessToken(r.Context(), &sess)
	if err != nil {
		http.Redirect(w, r, "/api/auth/login", http.StatusFound)
		return
	}

	if sess != before {
		auth.WriteSession(w, sess)
	}

	err = fn(token)
	if errors.Is(err, shared.ErrUnauthorized) {
		// Provider rejected a token we thought was valid. Force one refresh and retry.
		sess.ExpiresAt = 0
		token, err = h.tokens.ValidAccessToken(r.Context(), &sess)
		if err != nil {
			http.Redirect(w, r, "/api/auth/login", http.StatusFound)
			return
		}

		auth.WriteSession(w, sess)
		err = fn(token)
	}

	if err != nil {
		h.writeUpstreamError(w, r, err)
	}
}

// writeUpstreamError maps provider failures onto the HTTP response.
func (h *LibraryHandler) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrUnauthorized) || errors.Is(err, shared.ErrAuthRequired) {
		http.Redirect(w, r, "/api/auth/login", http.StatusFound)
		return
	}

	var providerErr *services.ProviderError
	if errors.As(err, &providerErr) && providerErr.Status == http.StatusForbidden {
		writeError(w, http.StatusForbidden, "Missing permissions.")
		return
	}

	h.logger.Error("provider request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusBadGateway, "Spotify API Error: "+err.Error())
}

type imagePayload struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

func imagesPayload(images []services.SpotifyImage) []imagePayload {
	out := make([]imagePayload, len(images))
	for i, img := range images {
		out[i] = imagePayload{URL: img.URL, Height: img.Height, Width: img.Width}
	}
	return out
}

func (h *LibraryHandler) me(w http.ResponseWriter, r *http.Request) {
	h.withToken(w, r, func(token string) error {
		user, err := h.spotify.Profile(r.Context(), token)
		if err != nil {
			return err
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{
				"id":           user.ID,
				"display_name": user.DisplayName,
				"email":        user.Email,
				"images":       imagesPayload(user.Images),
				"external_url": user.ExternalURLs.Spotify,
			},
		})
		return nil
	})
}

func (h *LibraryHandler) playlists(w http.ResponseWriter, r *http.Request) {
	h.withToken(w, r, func(token string) error {
		items, err := h.spotify.Playlists(r.Context(), token)
		if err != nil {
			return err
		}

		playlists := make([]map[string]any, 0, len(items))
		for _, p := range items {
			owner := p.Owner.DisplayName
			if owner == "" {
				owner = p.Owner.ID
			}

			playlists = append(playlists, map[string]any{
				"id":           p.ID,
				"name":         p.Name,
				"owner":        owner,
				"tracks_total": p.Tracks.Total,
				"images":       imagesPayload(p.Images),
				"external_url": p.ExternalURLs.Spotify,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
		return nil
	})
}

func (h *LibraryHandler) playlistDetails(w http.ResponseWriter, r *http.Request) {
	playlistID := strings.TrimPrefix(r.URL.Path, "/api/playlists/")
	if playlistID == "" || strings.Contains(playlistID, "/") {
		http.NotFound(w, r)
		return
	}

	h.withToken(w, r, func(token string) error {
		playlist, err := h.spotify.Playlist(r.Context(), token, playlistID)
		if err != nil {
			return err
		}

		tracks := make([]map[string]any, 0, len(playlist.Tracks.Items))
		for _, item := range playlist.Tracks.Items {
			artists := make([]map[string]any, len(item.Track.Artists))
			for i, artist := range item.Track.Artists {
				artists[i] = map[string]any{
					"id":            artist.ID,
					"name":          artist.Name,
					"external_urls": map[string]string{"spotify": artist.ExternalURLs.Spotify},
				}
			}

			tracks = append(tracks, map[string]any{
				"added_at": item.AddedAt,
				"track": map[string]any{
					"id":            item.Track.ID,
					"name":          item.Track.Name,
					"duration_ms":   item.Track.DurationMS,
					"uri":           item.Track.URI,
					"external_urls": map[string]string{"spotify": item.Track.ExternalURLs.Spotify},
					"album": map[string]any{
						"id":     item.Track.Album.ID,
						"name":   item.Track.Album.Name,
						"images": imagesPayload(item.Track.Album.Images),
					},
					"artists": artists,
				},
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":            playlist.ID,
			"name":          playlist.Name,
			"description":   playlist.Description,
			"images":        imagesPayload(playlist.Images),
			"owner":         map[string]any{"display_name": playlist.Owner.DisplayName},
			"followers":     map[string]any{"total": playlist.Followers.Total},
			"external_urls": playlist.ExternalURLs.Spotify,
			"tracks": map[string]any{
				"total": playlist.Tracks.Total,
				"items": tracks,
			},
		})
		return nil
	})
}

func (h *LibraryHandler) topArtists(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("time_range")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	h.withToken(w, r, func(token string) error {
		items, err := h.spotify.TopArtists(r.Context(), token, timeRange, limit)
		if err != nil {
			return err
		}

		artists := make([]map[string]any, 0, len(items))
		for _, artist := range items {
			artists = append(artists, map[string]any{
				"id":           artist.ID,
				"name":         artist.Name,
				"genres":       artist.Genres,
				"images":       imagesPayload(artist.Images),
				"popularity":   artist.Popularity,
				"external_url": artist.ExternalURLs.Spotify,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{"artists": artists})
		return nil
	})
}

func (h *LibraryHandler) recentlyPlayed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	h.withToken(w, r, func(token string) error {
		items, err := h.spotify.RecentlyPlayed(r.Context(), token, limit)
		if err != nil {
			return err
		}

		formatted := make([]map[string]any, 0, len(items))
		for _, item := range items {
			artists := make([]map[string]any, len(item.Track.Artists))
			for i, artist := range item.Track.Artists {
				artists[i] = map[string]any{"name": artist.Name}
			}

			var image string
			if len(item.Track.Album.Images) > 0 {
				image = item.Track.Album.Images[0].URL
			}

			formatted = append(formatted, map[string]any{
				"played_at": item.PlayedAt,
				"track": map[string]any{
					"id":           item.Track.ID,
					"name":         item.Track.Name,
					"duration_ms":  item.Track.DurationMS,
					"artists":      artists,
					"image":        image,
					"external_url": item.Track.ExternalURLs.Spotify,
				},
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{"items": formatted})
		return nil
	})
}
