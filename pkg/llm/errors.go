package llm

import "errors"

var (
	// ErrOffline indicates no credentials are configured; callers switch to
	// their deterministic fallback path instead of retrying.
	ErrOffline = errors.New("llm client offline: no credentials configured")

	// ErrEmptyResponse indicates the provider answered without any choices.
	ErrEmptyResponse = errors.New("no response from llm")
)
