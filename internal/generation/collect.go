package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Timeouts bound one generation call. Zero disables a limit.
type Timeouts struct {
	// Total caps the whole call.
	Total time.Duration
	// Idle caps the gap before the first chunk and between chunks.
	Idle time.Duration
}

// Collect streams req through client and returns the chunks concatenated
// in receipt order. Timeouts surface as ErrTotalTimeout or ErrIdleTimeout,
// both matching ErrTimeout. Output that is empty after trimming is
// ErrInvalidResponse.
func Collect(ctx context.Context, client Client, req Request, t Timeouts) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	if t.Total > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, t.Total, ErrTotalTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var idle *time.Timer
	if t.Idle > 0 {
		idle = time.AfterFunc(t.Idle, func() { cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	var (
		mu        sync.Mutex
		buf       strings.Builder
		full      string
		completed bool
		streamErr error
	)
	err := client.Stream(ctx, req, Callbacks{
		OnChunk: func(chunk string) {
			if idle != nil {
				idle.Reset(t.Idle)
			}
			mu.Lock()
			buf.WriteString(chunk)
			mu.Unlock()
		},
		OnComplete: func(text string) {
			mu.Lock()
			full, completed = text, true
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			streamErr = err
			mu.Unlock()
		},
	})

	mu.Lock()
	defer mu.Unlock()

	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, ErrTimeout) {
			return "", cause
		}
		return "", fmt.Errorf("generation cancelled: %w", cause)
	}
	if err == nil {
		err = streamErr
	}
	if err != nil {
		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrGenerationFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if !completed {
		return "", fmt.Errorf("%w: stream ended without completion", ErrInvalidResponse)
	}

	text := buf.String()
	if text == "" {
		text = full
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty output", ErrInvalidResponse)
	}
	return text, nil
}
