// Package services implements HTTP clients for the external collaborators:
// the Spotify Web API and the Gemini conversation model.
//
// # Spotify Client
//
// [SpotifyClient] issues bearer-authenticated reads and writes against the resource API.
// It is stateless with respect to users: every call takes the access token for the
// request's session, and token refresh decisions live in internal/auth, not here.
//
// A 401 from the provider surfaces as [shared.ErrUnauthorized], distinct from other
// failures which surface as [*ProviderError] with the status and body. The client never
// retries on its own; the orchestration layer decides between refresh-and-retry-once and
// a re-auth redirect.
//
// # Search Service
//
// [SearchService] resolves free-text track queries. Search does not require user identity,
// so it runs on an app-level client-credentials token cached with its expiry and refreshed
// through a single-flight group so concurrent requests share one grant.
//
// # Gemini Client
//
// [GeminiClient] calls the generateContent REST endpoint with the playlist tool
// declarations and decodes the response into a [Reply]: either plain text or one
// structured tool call ([ProposeCall] or [ConfirmCall]).
package services
