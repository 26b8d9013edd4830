// Package chat orchestrates a conversation turn: it forwards the message and history to
// the model, dispatches any tool call to the proposal state machine, and folds the
// outcome back into the returned history.
//
// The transcript store is a best-effort collaborator. A failed append is logged and
// never fails the turn, so chat keeps working when the database is unavailable.
package chat

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/models"
	"github.com/desertthunder/muse/internal/proposals"
	"github.com/desertthunder/muse/internal/services"
	"github.com/desertthunder/muse/internal/shared"
)

// ModelClient generates one conversational reply, possibly carrying a tool call.
type ModelClient interface {
	Generate(ctx context.Context, history []services.Turn, message string) (*services.Reply, error)
}

// ProposalMachine drives the propose and confirm transitions.
type ProposalMachine interface {
	Propose(ctx context.Context, sessionID string, call services.ProposeCall) (string, error)
	Confirm(ctx context.Context, sessionID, token, ownerID string) (*proposals.ConfirmResult, error)
}

// ProfileFetcher resolves the authenticated user's provider profile, needed for the
// owner ID on playlist creation.
type ProfileFetcher interface {
	Profile(ctx context.Context, token string) (*services.SpotifyUser, error)
}

// TranscriptStore appends turns to the persistent chat transcript.
type TranscriptStore interface {
	Append(sessionID, role, content string) error
}

// Result is the outcome of one chat turn.
type Result struct {
	Text       string
	PlaylistID string // set only when this turn created a playlist
	History    []services.Turn
}

// Orchestrator handles one chat turn end to end.
type Orchestrator struct {
	model      ModelClient
	machine    ProposalMachine
	profiles   ProfileFetcher
	transcript TranscriptStore
	logger     *log.Logger
}

// OrchestratorOpts contains configuration options for creating an Orchestrator.
type OrchestratorOpts struct {
	Model      ModelClient
	Machine    ProposalMachine
	Profiles   ProfileFetcher
	Transcript TranscriptStore // optional
	Logger     *log.Logger
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(opts OrchestratorOpts) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Orchestrator{
		model:      opts.Model,
		machine:    opts.Machine,
		profiles:   opts.Profiles,
		transcript: opts.Transcript,
		logger:     opts.Logger,
	}
}

// HandleMessage runs one turn: generate a reply, dispatch any tool call, persist the
// transcript, and return the text plus updated history.
//
// token must be a valid access token for the session; it is only used when the model
// confirms a proposal and the provider writes need the user's identity.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, token, message string, history []services.Turn) (*Result, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: empty chat message", shared.ErrInvalidInput)
	}

	o.appendTranscript(sessionID, models.RoleUser, message)

	reply, err := o.model.Generate(ctx, history, message)
	if err != nil {
		return nil, err
	}

	result := &Result{Text: reply.Text}

	switch call := reply.Call.(type) {
	case nil:

	case services.ProposeCall:
		summary, err := o.machine.Propose(ctx, sessionID, call)
		if err != nil {
			return nil, err
		}
		result.Text = summary

	case services.ConfirmCall:
		user, err := o.profiles.Profile(ctx, token)
		if err != nil {
			return nil, err
		}

		confirmed, err := o.machine.Confirm(ctx, sessionID, token, user.ID)
		if err != nil {
			return nil, err
		}

		result.Text = confirmed.Message
		result.PlaylistID = confirmed.PlaylistID

	default:
		o.logger.Warn("unhandled tool call", "session_id", sessionID)
	}

	o.appendTranscript(sessionID, models.RoleModel, result.Text)

	result.History = append(result.History, history...)
	result.History = append(result.History,
		services.Turn{Role: models.RoleUser, Text: message},
		services.Turn{Role: models.RoleModel, Text: result.Text},
	)

	return result, nil
}

func (o *Orchestrator) appendTranscript(sessionID, role, content string) {
	if o.transcript == nil || content == "" {
		return
	}

	if err := o.transcript.Append(sessionID, role, content); err != nil {
		o.logger.Warn("failed to persist chat turn", "session_id", sessionID, "role", role, "error", err)
	}
}
