package llm

import "errors"

// Failure kinds surfaced by the Normalizer. Parse failures are not listed
// here: the original decode error is returned unchanged after logging so
// callers see the real cause.
var (
	// ErrMissingChoices indicates the response decoded into something
	// without a 'choices' field at all
	ErrMissingChoices = errors.New("response missing 'choices' field")

	// ErrNoChoicesAvailable indicates a structurally valid completion
	// whose choices list was empty
	ErrNoChoicesAvailable = errors.New("no choices available in response")
)
