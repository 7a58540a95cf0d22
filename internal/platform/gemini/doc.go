// Package gemini provides an implementation of the generation.Client
// interface backed by Google's Gemini API.
//
// This package is an infrastructure adapter: it translates a
// generation.Request into a streaming GenerateContent call and reports each
// text fragment through the caller's callbacks, without exposing genai
// types to the rest of the application.
//
// The client does not retry. Timeouts are enforced by the caller through
// the context (see generation.Collect), and safety blocks surface as
// generation.ErrContentBlocked.
package gemini
