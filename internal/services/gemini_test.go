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

func newTestGeminiClient(t *testing.T, handler http.Handler) *GeminiClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(GeminiClientOpts{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewGeminiClient failed: %v", err)
	}

	return client
}

func candidateResponse(parts ...map[string]any) string {
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"role": "model", "parts": parts}},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestGenerate(t *testing.T) {
	t.Run("sends history plus message with tool declarations", func(t *testing.T) {
		client := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1beta/models/test-model:generateContent" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("x-goog-api-key") != "test-key" {
				t.Error("api key header missing")
			}

			var req geminiRequest
			json.NewDecoder(r.Body).Decode(&req)

			if len(req.Contents) != 3 {
				t.Errorf("contents len = %d, want 3", len(req.Contents))
			}
			if req.Contents[2].Role != "user" || req.Contents[2].Parts[0].Text != "make me a playlist" {
				t.Errorf("last content = %+v", req.Contents[2])
			}
			if len(req.Tools) != 1 || len(req.Tools[0].FunctionDeclarations) != 2 {
				t.Error("tool declarations missing")
			}
			if req.SystemInstruction == nil {
				t.Error("system instruction missing")
			}

			fmt.Fprint(w, candidateResponse(map[string]any{"text": "sure thing"}))
		}))

		history := []Turn{
			{Role: "user", Text: "hi"},
			{Role: "model", Text: "hello"},
		}

		reply, err := client.Generate(context.Background(), history, "make me a playlist")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if reply.Text != "sure thing" {
			t.Errorf("Text = %q", reply.Text)
		}
		if reply.Call != nil {
			t.Errorf("unexpected tool call: %+v", reply.Call)
		}
	})

	t.Run("decodes a propose call", func(t *testing.T) {
		client := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, candidateResponse(map[string]any{
				"functionCall": map[string]any{
					"name": "proposePlaylist",
					"args": map[string]any{
						"name":        "Focus",
						"description": "deep work",
						"tracks":      []string{"song one", "artist - song two"},
					},
				},
			}))
		}))

		reply, err := client.Generate(context.Background(), nil, "focus playlist please")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		call, ok := reply.Call.(ProposeCall)
		if !ok {
			t.Fatalf("Call = %T, want ProposeCall", reply.Call)
		}
		if call.Name != "Focus" || call.Description != "deep work" {
			t.Errorf("unexpected call: %+v", call)
		}
		if len(call.Tracks) != 2 || call.Tracks[1] != "artist - song two" {
			t.Errorf("tracks = %v", call.Tracks)
		}
	})

	t.Run("decodes a confirm call", func(t *testing.T) {
		client := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, candidateResponse(map[string]any{
				"functionCall": map[string]any{"name": "confirmAndCreatePlaylist", "args": map[string]any{}},
			}))
		}))

		reply, err := client.Generate(context.Background(), nil, "yes create it")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if _, ok := reply.Call.(ConfirmCall); !ok {
			t.Fatalf("Call = %T, want ConfirmCall", reply.Call)
		}
	})

	t.Run("unknown tool is ignored", func(t *testing.T) {
		client := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, candidateResponse(
				map[string]any{"text": "let me try something"},
				map[string]any{"functionCall": map[string]any{"name": "deleteEverything", "args": map[string]any{}}},
			))
		}))

		reply, err := client.Generate(context.Background(), nil, "hello")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if reply.Call != nil {
			t.Errorf("unknown tool produced a call: %+v", reply.Call)
		}
		if reply.Text != "let me try something" {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("upstream failure maps to ErrModelRequest", func(t *testing.T) {
		client := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
		}))

		_, err := client.Generate(context.Background(), nil, "hello")
		if !errors.Is(err, shared.ErrModelRequest) {
			t.Errorf("expected ErrModelRequest, got %v", err)
		}
	})

	t.Run("empty candidates is an error", func(t *testing.T) {
		client := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"candidates":[]}`)
		}))

		_, err := client.Generate(context.Background(), nil, "hello")
		if !errors.Is(err, shared.ErrModelRequest) {
			t.Errorf("expected ErrModelRequest, got %v", err)
		}
	})
}
