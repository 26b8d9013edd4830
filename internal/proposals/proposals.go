// Package proposals implements the two-phase playlist creation flow: a session-keyed
// cache holding at most one pending proposal, and the state machine that consumes the
// model's propose and confirm tool calls.
//
// A session is either Idle (no pending proposal) or Proposed (awaiting confirmation with
// resolved track IDs). Propose always overwrites the session's prior proposal, and a
// verbal decline is never a tool call: the stale proposal just ages out of the cache.
package proposals

import (
	"fmt"
	"strings"
)

// TrackDisplay is the user-facing line for one entry of a proposal. Found is false when
// the catalog search had no match for the query, in which case Name holds the raw query.
type TrackDisplay struct {
	Name    string   `json:"name"`
	Artists []string `json:"artists"`
	Found   bool     `json:"found"`
}

// Proposal is a pending playlist awaiting the user's confirmation.
//
// TrackIDs holds only identifiers resolved by catalog search, never values supplied by
// the model, and is parallel to Display minus the unresolved entries.
type Proposal struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	TrackIDs    []string       `json:"track_ids"`
	Display     []TrackDisplay `json:"display"`
}

// State is the cached per-session proposal record. The zero value is the Idle state.
type State struct {
	AwaitingConfirmation bool      `json:"awaiting_confirmation"`
	Pending              *Proposal `json:"pending"`
}

// Summary renders the numbered confirmation text shown to the user, ending with an
// explicit question.
func (p *Proposal) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Here's the playlist I put together for %q:\n\n", p.Name)

	for i, track := range p.Display {
		if !track.Found {
			fmt.Fprintf(&b, "%d. %s (not found)\n", i+1, track.Name)
			continue
		}

		if len(track.Artists) > 0 {
			fmt.Fprintf(&b, "%d. %s by %s\n", i+1, track.Name, strings.Join(track.Artists, ", "))
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, track.Name)
		}
	}

	b.WriteString("\nShould I go ahead and create it?")
	return b.String()
}
