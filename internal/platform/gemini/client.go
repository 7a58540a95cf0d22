package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/generation"
	"github.com/phrazzld/quill-api/internal/redact"
	"google.golang.org/genai"
)

// streamer is the subset of *genai.Models used by Client.
type streamer interface {
	GenerateContentStream(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client implements generation.Client using the Gemini streaming API.
type Client struct {
	// logger is used for structured logging
	logger *slog.Logger

	// models issues the streaming requests
	models streamer

	// model is the name of the Gemini model to use
	model string

	temperature float32
}

var _ generation.Client = (*Client)(nil)

// NewClient creates a Gemini-backed generation client.
//
// Parameters:
//   - ctx: Context for initialization
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing API key, model name, and sampling settings
//
// Returns:
//   - A ready Client or an error wrapping generation.ErrInvalidConfig
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, redact.Error(err))
	}

	return newClient(logger, gc.Models, cfg)
}

func newClient(logger *slog.Logger, models streamer, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	return &Client{
		logger:      logger,
		models:      models,
		model:       cfg.ModelName,
		temperature: cfg.Temperature,
	}, nil
}

// Stream sends req to Gemini and reports every text fragment through cb.
// A response whose candidate stopped for safety reasons, or whose prompt
// was blocked, ends the stream with generation.ErrContentBlocked.
func (c *Client) Stream(ctx context.Context, req generation.Request, cb generation.Callbacks) error {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if req.SystemInstruction != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}

	c.logger.DebugContext(ctx, "Starting Gemini stream",
		"model", c.model,
		"prompt_length", len(req.Prompt))

	var (
		full   strings.Builder
		chunks int
	)
	for resp, err := range c.models.GenerateContentStream(ctx, c.model, genai.Text(req.Prompt), genCfg) {
		if err != nil {
			return c.fail(ctx, cb, fmt.Errorf("gemini stream: %w", err))
		}
		text, err := responseText(resp)
		if err != nil {
			return c.fail(ctx, cb, err)
		}
		if text == "" {
			continue
		}
		chunks++
		full.WriteString(text)
		cb.OnChunk(text)
	}
	if err := ctx.Err(); err != nil {
		return c.fail(ctx, cb, err)
	}

	c.logger.DebugContext(ctx, "Gemini stream completed",
		"chunks", chunks,
		"output_length", full.Len())
	cb.OnComplete(full.String())
	return nil
}

func (c *Client) fail(ctx context.Context, cb generation.Callbacks, err error) error {
	c.logger.WarnContext(ctx, "Gemini stream failed", "error", redact.Error(err))
	cb.OnError(err)
	return err
}

// responseText extracts the text of the first candidate of one streamed
// response. Thought parts are skipped.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
