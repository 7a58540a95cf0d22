package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package. All of them describe
// a failure scoped to a single generation call.
var (
	// ErrGenerationFailed is returned when generation fails for any general reason
	ErrGenerationFailed = errors.New("content generation failed")

	// ErrInvalidResponse is returned when the stream ends without usable output
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyPrompt is returned when a request carries no prompt text
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrTimeout is matched by both timeout errors below.
	ErrTimeout = errors.New("generation timed out")

	// ErrIdleTimeout is returned when no chunk arrives within the idle timeout.
	ErrIdleTimeout = fmt.Errorf("%w: no output within idle timeout", ErrTimeout)

	// ErrTotalTimeout is returned when the whole stream exceeds the total timeout.
	ErrTotalTimeout = fmt.Errorf("%w: total duration exceeded", ErrTimeout)
)
