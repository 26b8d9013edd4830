package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthRequired  = fmt.Errorf("authentication required")
	ErrStateMismatch = fmt.Errorf("oauth state mismatch")
	ErrRefreshFailed = fmt.Errorf("token refresh failed")
	ErrTokenExpired  = fmt.Errorf("access token expired")

	// Provider errors
	ErrUnauthorized = fmt.Errorf("provider rejected token")
	ErrAPIRequest   = fmt.Errorf("API request failed")

	// Chat and proposal errors
	ErrProposalMissing = fmt.Errorf("no pending playlist proposal")
	ErrModelRequest    = fmt.Errorf("model request failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
