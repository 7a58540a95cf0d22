package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"

	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeStreamer yields canned responses and records the request.
type fakeStreamer struct {
	responses []*genai.GenerateContentResponse
	err       error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeStreamer) GenerateContentStream(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.model, f.contents, f.config = model, contents, config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range f.responses {
			if !yield(r, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

// recorder captures callback events.
type recorder struct {
	chunks    []string
	completed string
	done      bool
	err       error
}

func (r *recorder) callbacks() generation.Callbacks {
	return generation.Callbacks{
		OnChunk:    func(c string) { r.chunks = append(r.chunks, c) },
		OnComplete: func(s string) { r.completed, r.done = s, true },
		OnError:    func(err error) { r.err = err },
	}
}

func newTestClient(t *testing.T, s streamer) *Client {
	t.Helper()
	c, err := newClient(slog.New(slog.NewTextHandler(io.Discard, nil)), s, config.LLMConfig{
		ModelName:   "gemini-test",
		Temperature: 0.4,
	})
	require.NoError(t, err)
	return c
}

func TestStream_ReportsChunksInOrder(t *testing.T) {
	t.Parallel()

	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{
		textResponse("## Version 1: A\n"),
		{Candidates: nil},
		textResponse("body"),
	}}
	c := newTestClient(t, fake)

	var rec recorder
	err := c.Stream(context.Background(), generation.Request{
		Prompt:            "rewrite",
		SystemInstruction: "be brief",
	}, rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, []string{"## Version 1: A\n", "body"}, rec.chunks)
	assert.True(t, rec.done)
	assert.Equal(t, "## Version 1: A\nbody", rec.completed)
	assert.NoError(t, rec.err)

	assert.Equal(t, "gemini-test", fake.model)
	require.Len(t, fake.contents, 1)
	assert.Equal(t, "rewrite", fake.contents[0].Parts[0].Text)
	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, "be brief", fake.config.SystemInstruction.Parts[0].Text)
	require.NotNil(t, fake.config.Temperature)
	assert.InDelta(t, 0.4, *fake.config.Temperature, 0.0001)
}

func TestStream_SkipsThoughtParts(t *testing.T) {
	t.Parallel()

	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "answer"},
			}},
		}},
	}}}

	var rec recorder
	require.NoError(t, newTestClient(t, fake).Stream(context.Background(), generation.Request{Prompt: "p"}, rec.callbacks()))
	assert.Equal(t, []string{"answer"}, rec.chunks)
}

func TestStream_Errors(t *testing.T) {
	t.Parallel()

	upstream := errors.New("connection reset")
	tests := []struct {
		name string
		fake *fakeStreamer
		want error
	}{
		{
			name: "transport error",
			fake: &fakeStreamer{responses: []*genai.GenerateContentResponse{textResponse("partial")}, err: upstream},
			want: upstream,
		},
		{
			name: "safety stop",
			fake: &fakeStreamer{responses: []*genai.GenerateContentResponse{{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}}},
			want: generation.ErrContentBlocked,
		},
		{
			name: "nil response",
			fake: &fakeStreamer{responses: []*genai.GenerateContentResponse{nil}},
			want: generation.ErrInvalidResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var rec recorder
			err := newTestClient(t, tc.fake).Stream(context.Background(), generation.Request{Prompt: "p"}, rec.callbacks())
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, rec.err, tc.want)
			assert.False(t, rec.done)
		})
	}
}

func TestStream_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var rec recorder
	err := newTestClient(t, &fakeStreamer{}).Stream(ctx, generation.Request{Prompt: "p"}, rec.callbacks())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, rec.done)
}

func TestStream_WithCollect(t *testing.T) {
	t.Parallel()

	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{
		textResponse("one "), textResponse("two"),
	}}
	text, err := generation.Collect(context.Background(), newTestClient(t, fake), generation.Request{Prompt: "p"}, generation.Timeouts{})
	require.NoError(t, err)
	assert.Equal(t, "one two", text)
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), slog.Default(), config.LLMConfig{ModelName: "m"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newClient(slog.Default(), &fakeStreamer{}, config.LLMConfig{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newClient(nil, &fakeStreamer{}, config.LLMConfig{ModelName: "m"})
	assert.Error(t, err)
}
