package llm

import "errors"

var (
	// ErrCompletion is returned when a completion request fails.
	ErrCompletion = errors.New("completion failed")

	// ErrMalformedResponse is returned when a provider response cannot be
	// decoded into the expected schema.
	ErrMalformedResponse = errors.New("malformed completion response")
)
