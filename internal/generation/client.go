package generation

import "context"

// Request is one generation call.
type Request struct {
	// Prompt is the user content sent to the model.
	Prompt string
	// SystemInstruction, when set, is sent as the model's system prompt.
	SystemInstruction string
}

// Callbacks receive the events of one stream. OnChunk is called for every
// text fragment in receipt order; exactly one of OnComplete or OnError is
// called at the end. Callbacks are invoked from the goroutine that called
// Stream.
type Callbacks struct {
	OnChunk    func(chunk string)
	OnComplete func(fullText string)
	OnError    func(err error)
}

// Client is a streaming text-generation service.
type Client interface {
	// Stream runs the request and reports progress through cb. It returns
	// when the stream has ended; the returned error matches the one passed
	// to OnError. Cancelling ctx aborts the stream.
	Stream(ctx context.Context, req Request, cb Callbacks) error
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request, cb Callbacks) error

// Stream implements Client.
func (f ClientFunc) Stream(ctx context.Context, req Request, cb Callbacks) error {
	return f(ctx, req, cb)
}
