package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/muse/internal/shared"
)

func newTestSpotifyClient(t *testing.T, handler http.Handler) (*SpotifyClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewSpotifyClient(SpotifyClientOpts{BaseURL: server.URL})
	return client, server
}

func TestSpotifyClientErrors(t *testing.T) {
	t.Run("401 maps to ErrUnauthorized", func(t *testing.T) {
		client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := client.Profile(context.Background(), "expired-token")
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("non-401 failure carries status and body", func(t *testing.T) {
		client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"status":429,"message":"rate limited"}}`)
		}))

		_, err := client.Profile(context.Background(), "token")

		var providerErr *ProviderError
		if !errors.As(err, &providerErr) {
			t.Fatalf("expected ProviderError, got %v", err)
		}
		if providerErr.Status != http.StatusTooManyRequests {
			t.Errorf("Status = %d, want 429", providerErr.Status)
		}
		if providerErr.Body == "" {
			t.Error("Body is empty")
		}
	})
}

func TestProfile(t *testing.T) {
	client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"id":"user1","display_name":"Listener","email":"l@example.com","external_urls":{"spotify":"https://open.spotify.com/user/user1"}}`)
	}))

	user, err := client.Profile(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}

	if user.ID != "user1" || user.DisplayName != "Listener" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.ExternalURLs.Spotify == "" {
		t.Error("external URL not decoded")
	}
}

func TestPlaylists(t *testing.T) {
	t.Run("follows pagination links in order", func(t *testing.T) {
		var server *httptest.Server

		mux := http.NewServeMux()
		mux.HandleFunc("/me/playlists", func(w http.ResponseWriter, r *http.Request) {
			next := server.URL + "/page2"
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"id": "p1", "name": "First"}},
				"next":  next,
			})
		})
		mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"id": "p2", "name": "Second"}},
				"next":  nil,
			})
		})

		client, s := newTestSpotifyClient(t, mux)
		server = s

		playlists, err := client.Playlists(context.Background(), "token")
		if err != nil {
			t.Fatalf("Playlists failed: %v", err)
		}

		if len(playlists) != 2 {
			t.Fatalf("got %d playlists, want 2", len(playlists))
		}
		if playlists[0].ID != "p1" || playlists[1].ID != "p2" {
			t.Errorf("pagination order broken: %s, %s", playlists[0].ID, playlists[1].ID)
		}
	})
}

func TestTopArtists(t *testing.T) {
	client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("time_range") != "short_term" {
			t.Errorf("time_range = %q", query.Get("time_range"))
		}
		if query.Get("limit") != "5" {
			t.Errorf("limit = %q", query.Get("limit"))
		}
		fmt.Fprint(w, `{"items":[{"id":"a1","name":"Artist","genres":["electronic"],"popularity":70}]}`)
	}))

	artists, err := client.TopArtists(context.Background(), "token", "short_term", 5)
	if err != nil {
		t.Fatalf("TopArtists failed: %v", err)
	}
	if len(artists) != 1 || artists[0].Name != "Artist" {
		t.Errorf("unexpected artists: %+v", artists)
	}
}

func TestCreatePlaylist(t *testing.T) {
	client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/user1/playlists" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Late Nights" {
			t.Errorf("name = %v", body["name"])
		}
		if body["public"] != false {
			t.Errorf("public = %v, want false", body["public"])
		}

		fmt.Fprint(w, `{"id":"new-playlist","name":"Late Nights","external_urls":{"spotify":"https://open.spotify.com/playlist/new-playlist"}}`)
	}))

	playlist, err := client.CreatePlaylist(context.Background(), "token", "user1", "Late Nights", "after hours", false)
	if err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}
	if playlist.ID != "new-playlist" {
		t.Errorf("ID = %q", playlist.ID)
	}
}

func TestAddTracks(t *testing.T) {
	t.Run("converts IDs to track URIs in one batch", func(t *testing.T) {
		var calls int
		client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if r.URL.Path != "/playlists/pl1/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}

			var body struct {
				URIs []string `json:"uris"`
			}
			json.NewDecoder(r.Body).Decode(&body)

			want := []string{"spotify:track:t1", "spotify:track:t2"}
			if len(body.URIs) != len(want) {
				t.Fatalf("got %d uris, want %d", len(body.URIs), len(want))
			}
			for i := range want {
				if body.URIs[i] != want[i] {
					t.Errorf("uris[%d] = %q, want %q", i, body.URIs[i], want[i])
				}
			}

			fmt.Fprint(w, `{"snapshot_id":"snap"}`)
		}))

		if err := client.AddTracks(context.Background(), "token", "pl1", []string{"t1", "t2"}); err != nil {
			t.Fatalf("AddTracks failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected one batched call, got %d", calls)
		}
	})

	t.Run("rejects empty track list", func(t *testing.T) {
		client, _ := newTestSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("request sent for empty track list")
		}))

		err := client.AddTracks(context.Background(), "token", "pl1", nil)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
