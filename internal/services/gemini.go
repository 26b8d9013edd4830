package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/shared"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash"

	toolProposePlaylist = "proposePlaylist"
	toolConfirmPlaylist = "confirmAndCreatePlaylist"
)

const systemInstruction = "You are a helpful assistant that helps the user create Spotify playlists. " +
	"When the user asks for a playlist, propose one with the proposePlaylist tool instead of listing tracks as text. " +
	"Only call confirmAndCreatePlaylist after the user has seen a proposal and agreed to it."

// Turn is one entry of the conversation history.
type Turn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// ToolCall is a structured action requested by the model: either a [ProposeCall]
// or a [ConfirmCall].
type ToolCall interface {
	toolName() string
}

// ProposeCall asks the backend to resolve track queries and cache a playlist proposal.
//
// Tracks are free-text search queries, never track IDs; IDs only enter the system
// through the catalog search that resolves them.
type ProposeCall struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tracks      []string `json:"tracks"`
}

func (ProposeCall) toolName() string { return toolProposePlaylist }

// ConfirmCall asks the backend to create the cached proposal. It carries no
// arguments; the proposal content always comes from the cache.
type ConfirmCall struct{}

func (ConfirmCall) toolName() string { return toolConfirmPlaylist }

// Reply is the decoded model response: accumulated text plus at most one tool call.
type Reply struct {
	Text string
	Call ToolCall // nil for plain text replies
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// GeminiClientOpts contains configuration options for creating a GeminiClient.
type GeminiClientOpts struct {
	APIKey     string
	Model      string // defaults to gemini-2.5-flash
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(opts GeminiClientOpts) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api_key is required", shared.ErrMissingCredentials)
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGeminiBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &GeminiClient{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*geminiSchema `json:"properties,omitempty"`
	Items       *geminiSchema            `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  *geminiSchema `json:"parameters"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []struct {
		FunctionDeclarations []geminiFunctionDeclaration `json:"function_declarations"`
	} `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// toolDeclarations describes the two playlist tools to the model. The model never
// receives or emits track IDs through them, only search queries.
func toolDeclarations() []geminiFunctionDeclaration {
	return []geminiFunctionDeclaration{
		{
			Name: toolProposePlaylist,
			Description: "Propose a playlist by searching Spotify for each track. Call this with a name, " +
				"optional description, and a list of track search queries (e.g. song titles or 'artist - song'). " +
				"The backend will search for each, cache the track IDs, and show the user the actual tracks found. " +
				"After user confirms, the playlist is created and tracks are added using the cached IDs.",
			Parameters: &geminiSchema{
				Type: "object",
				Properties: map[string]*geminiSchema{
					"name":        {Type: "string", Description: "The name of the playlist"},
					"description": {Type: "string", Description: "Optional description of the playlist"},
					"tracks": {
						Type: "array",
						Items: &geminiSchema{
							Type: "string",
						},
						Description: "List of track search queries (e.g. 'Blinding Lights', " +
							"'The Weeknd - Save Your Tears'). Each will be searched on Spotify; first result is used.",
					},
				},
				Required: []string{"name", "tracks"},
			},
		},
		{
			Name: toolConfirmPlaylist,
			Description: "Call this when the user has confirmed they want the proposed playlist created " +
				"(e.g. said 'yes', 'create it', 'sounds good'). Uses the cached proposal from the last " +
				"proposePlaylist call. Do not call this before the user has seen a proposal and agreed.",
			Parameters: &geminiSchema{Type: "object"},
		},
	}
}

// Generate sends the conversation history plus the new user message and decodes the reply.
//
// A function call naming an unknown tool is logged and ignored, leaving a plain text reply.
func (c *GeminiClient) Generate(ctx context.Context, history []Turn, message string) (*Reply, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, geminiContent{
			Role:  turn.Role,
			Parts: []geminiPart{{Text: turn.Text}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: message}},
	})

	reqPayload := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}},
		Contents:          contents,
	}
	reqPayload.Tools = append(reqPayload.Tools, struct {
		FunctionDeclarations []geminiFunctionDeclaration `json:"function_declarations"`
	}{FunctionDeclarations: toolDeclarations()})

	data, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrModelRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrModelRequest, resp.StatusCode, string(body))
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrModelRequest, err)
	}

	if len(decoded.Candidates) == 0 {
		return nil, fmt.Errorf("%w: response contained no candidates", shared.ErrModelRequest)
	}

	return c.decodeReply(decoded.Candidates[0].Content.Parts)
}

// decodeReply accumulates text parts and decodes the first recognized function call.
func (c *GeminiClient) decodeReply(parts []geminiPart) (*Reply, error) {
	var reply Reply
	var text strings.Builder

	for _, part := range parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}

		if part.FunctionCall == nil || reply.Call != nil {
			continue
		}

		switch part.FunctionCall.Name {
		case toolProposePlaylist:
			var call ProposeCall
			if err := json.Unmarshal(part.FunctionCall.Args, &call); err != nil {
				return nil, fmt.Errorf("%w: malformed %s arguments: %v", shared.ErrModelRequest, toolProposePlaylist, err)
			}
			reply.Call = call
		case toolConfirmPlaylist:
			reply.Call = ConfirmCall{}
		default:
			c.logger.Warn("model requested unknown tool", "tool", part.FunctionCall.Name)
		}
	}

	reply.Text = strings.TrimSpace(text.String())
	return &reply, nil
}
