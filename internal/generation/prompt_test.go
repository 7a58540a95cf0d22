package generation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptBuilder_Default(t *testing.T) {
	t.Parallel()

	b, err := generation.NewPromptBuilder("")
	require.NoError(t, err)

	r, err := b.Build(
		domain.GenerationConfig{
			ContentType:  domain.ContentTypeProductDescription,
			Persona:      "playful barista",
			VersionCount: 3,
		},
		domain.SourceSnapshot{
			Title:      "Pour-over kettle",
			Body:       "Gooseneck spout, 1L.",
			Attributes: map[string]string{"price": "39"},
		},
	)
	require.NoError(t, err)
	assert.Contains(t, r.Prompt, "3 distinct product description versions")
	assert.Contains(t, r.Prompt, "Write as: playful barista")
	assert.NotContains(t, r.Prompt, "Theme:")
	assert.Contains(t, r.Prompt, `Source "Pour-over kettle"`)
	assert.Contains(t, r.Prompt, "price: 39")
	assert.Contains(t, r.Prompt, "Gooseneck spout, 1L.")
	assert.Contains(t, r.Prompt, "## Version N: <title>")
	assert.NotEmpty(t, r.SystemInstruction)
}

func TestPromptBuilder_CustomTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{.VersionCount}}x {{.SourceBody}}"), 0o600))

	b, err := generation.NewPromptBuilder(path)
	require.NoError(t, err)
	r, err := b.Build(domain.GenerationConfig{VersionCount: 2}, domain.SourceSnapshot{Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "2x hello", r.Prompt)
}

func TestPromptBuilder_Errors(t *testing.T) {
	t.Parallel()

	_, err := generation.NewPromptBuilder(filepath.Join(t.TempDir(), "missing.tmpl"))
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	bad := filepath.Join(t.TempDir(), "bad.tmpl")
	require.NoError(t, os.WriteFile(bad, []byte("{{.Unclosed"), 0o600))
	_, err = generation.NewPromptBuilder(bad)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	b, err := generation.NewPromptBuilder("")
	require.NoError(t, err)
	_, err = b.Build(domain.GenerationConfig{VersionCount: 1}, domain.SourceSnapshot{Body: "  "})
	assert.ErrorIs(t, err, generation.ErrEmptyPrompt)
}
