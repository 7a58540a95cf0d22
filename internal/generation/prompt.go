package generation

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/phrazzld/quill-api/internal/domain"
)

//go:embed templates/rewrite.tmpl
var templatesFS embed.FS

// systemInstruction frames every rewrite request.
const systemInstruction = "You are a professional copywriter. Follow the requested format exactly " +
	"and keep each version self-contained."

// PromptData is the data passed to the prompt template.
type PromptData struct {
	ContentType  string
	Theme        string
	Persona      string
	Purpose      string
	VersionCount int
	SourceTitle  string
	SourceBody   string
	SourceURL    string
	Attributes   map[string]string
}

// PromptBuilder renders generation requests from a task config and an
// item's source snapshot.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the template at path, or the built-in template
// when path is empty.
func NewPromptBuilder(path string) (*PromptBuilder, error) {
	var (
		content []byte
		err     error
	)
	if path == "" {
		content, err = templatesFS.ReadFile("templates/rewrite.tmpl")
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read prompt template: %v", ErrInvalidConfig, err)
	}

	tmpl, err := template.New("rewrite").Option("missingkey=zero").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", ErrInvalidConfig, err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the request for one item.
func (b *PromptBuilder) Build(cfg domain.GenerationConfig, snapshot domain.SourceSnapshot) (Request, error) {
	if strings.TrimSpace(snapshot.Body) == "" {
		return Request{}, ErrEmptyPrompt
	}

	data := PromptData{
		ContentType:  strings.ReplaceAll(string(cfg.ContentType), "_", " "),
		Theme:        cfg.Theme,
		Persona:      cfg.Persona,
		Purpose:      cfg.Purpose,
		VersionCount: cfg.VersionCount,
		SourceTitle:  snapshot.Title,
		SourceBody:   snapshot.Body,
		SourceURL:    snapshot.URL,
		Attributes:   snapshot.Attributes,
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return Request{}, fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return Request{Prompt: buf.String(), SystemInstruction: systemInstruction}, nil
}
