package proposals

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/services"
	"github.com/desertthunder/muse/internal/shared"
	"golang.org/x/time/rate"
)

// nothingPendingMessage is returned when confirm arrives with no proposal in the cache.
// This is a conversational no-op, not an error.
const nothingPendingMessage = "There's no playlist proposal pending right now. Ask me to put one together first."

// TrackSearcher resolves a free-text query to catalog tracks.
type TrackSearcher interface {
	SearchTrack(ctx context.Context, query string, limit int) ([]services.SpotifyTrack, error)
}

// PlaylistWriter performs the provider writes needed to realize a confirmed proposal.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, token, ownerID, name, description string, public bool) (*services.SpotifyPlaylist, error)
	AddTracks(ctx context.Context, token, playlistID string, trackIDs []string) error
}

// Machine drives the propose and confirm transitions for playlist creation.
type Machine struct {
	cache   Cache
	search  TrackSearcher
	writer  PlaylistWriter
	limiter *rate.Limiter
	ttl     time.Duration
	logger  *log.Logger
}

// MachineOpts contains configuration options for creating a Machine.
type MachineOpts struct {
	Cache  Cache
	Search TrackSearcher
	Writer PlaylistWriter
	TTL    time.Duration // proposal lifetime, defaults to [DefaultTTL]
	Logger *log.Logger
}

// NewMachine creates a proposal state machine.
//
// Track resolution is rate limited to stay inside the catalog search quota when the
// model proposes long track lists.
func NewMachine(opts MachineOpts) *Machine {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Machine{
		cache:   opts.Cache,
		search:  opts.Search,
		writer:  opts.Writer,
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		ttl:     opts.TTL,
		logger:  opts.Logger,
	}
}

// Propose resolves each track query against the catalog, caches the result as the
// session's pending proposal, and returns the confirmation summary.
//
// Queries with no match become "(not found)" display entries and contribute no track ID.
// Each call overwrites the session's previous proposal.
func (m *Machine) Propose(ctx context.Context, sessionID string, call services.ProposeCall) (string, error) {
	if call.Name == "" || len(call.Tracks) == 0 {
		return "", fmt.Errorf("%w: proposal requires a name and at least one track query", shared.ErrInvalidInput)
	}

	proposal := &Proposal{
		Name:        call.Name,
		Description: call.Description,
	}

	for _, query := range call.Tracks {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("track resolution interrupted: %w", err)
		}

		tracks, err := m.search.SearchTrack(ctx, query, 1)
		if err != nil {
			return "", fmt.Errorf("track search failed for %q: %w", query, err)
		}

		if len(tracks) == 0 {
			m.logger.Debug("track query unresolved", "session_id", sessionID, "query", query)
			proposal.Display = append(proposal.Display, TrackDisplay{Name: query})
			continue
		}

		track := tracks[0]
		artists := make([]string, len(track.Artists))
		for i, artist := range track.Artists {
			artists[i] = artist.Name
		}

		proposal.TrackIDs = append(proposal.TrackIDs, track.ID)
		proposal.Display = append(proposal.Display, TrackDisplay{
			Name:    track.Name,
			Artists: artists,
			Found:   true,
		})
	}

	state := State{AwaitingConfirmation: true, Pending: proposal}
	if err := m.cache.Put(ctx, sessionID, state, m.ttl); err != nil {
		return "", err
	}

	m.logger.Info("cached playlist proposal",
		"session_id", sessionID,
		"name", proposal.Name,
		"resolved", len(proposal.TrackIDs),
		"requested", len(call.Tracks))

	return proposal.Summary(), nil
}

// ConfirmResult is the outcome of a successful confirm transition.
type ConfirmResult struct {
	Message    string
	PlaylistID string
}

// Confirm creates the session's pending proposal as a private playlist and batch-adds
// its resolved tracks.
//
// With no pending proposal it returns the fixed no-op message and performs no provider
// writes. The pending state is cleared before the provider writes begin, so a failed
// create or add never leaves the proposal confirmable again; the user must ask for a
// new proposal.
func (m *Machine) Confirm(ctx context.Context, sessionID, token, ownerID string) (*ConfirmResult, error) {
	state, err := m.cache.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !state.AwaitingConfirmation || state.Pending == nil {
		return &ConfirmResult{Message: nothingPendingMessage}, nil
	}

	proposal := state.Pending

	if err := m.cache.Put(ctx, sessionID, State{}, m.ttl); err != nil {
		return nil, err
	}

	playlist, err := m.writer.CreatePlaylist(ctx, token, ownerID, proposal.Name, proposal.Description, false)
	if err != nil {
		return nil, fmt.Errorf("playlist creation failed: %w", err)
	}

	if len(proposal.TrackIDs) > 0 {
		if err := m.writer.AddTracks(ctx, token, playlist.ID, proposal.TrackIDs); err != nil {
			return nil, fmt.Errorf("created playlist %q but adding tracks failed: %w", proposal.Name, err)
		}
	}

	m.logger.Info("created playlist from proposal",
		"session_id", sessionID,
		"playlist_id", playlist.ID,
		"tracks", len(proposal.TrackIDs))

	message := fmt.Sprintf("Done! I created %q with %d tracks.", proposal.Name, len(proposal.TrackIDs))
	if playlist.ExternalURLs.Spotify != "" {
		message += " Open it here: " + playlist.ExternalURLs.Spotify
	}

	return &ConfirmResult{Message: message, PlaylistID: playlist.ID}, nil
}
