// Package gemini runs intent extraction on Google Gemini through langchaingo.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/integrations/paramstore"
)

const defaultModel = "gemini-2.5-flash"

type modelFactory func(ctx context.Context, apiKey, model string) (llms.Model, error)

func newGoogleAI(ctx context.Context, apiKey, model string) (llms.Model, error) {
	return googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
}

// Client builds the Gemini model on first use, with the API key read from
// SSM, and reuses it afterwards.
type Client struct {
	getter      paramstore.Getter
	paramPrefix string
	model       string
	factory     modelFactory

	once sync.Once
	llm  llms.Model
	err  error
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func withFactory(f modelFactory) Option {
	return func(c *Client) { c.factory = f }
}

func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	c := &Client{
		getter:      ps,
		paramPrefix: paramPrefix,
		model:       defaultModel,
		factory:     newGoogleAI,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveModel(ctx context.Context) (llms.Model, error) {
	c.once.Do(func() {
		key, err := paramstore.Token(ctx, c.getter, c.paramPrefix+"/gemini-token")
		if err != nil {
			c.err = err
			return
		}
		c.llm, c.err = c.factory(ctx, key, c.model)
		if c.err != nil {
			c.err = fmt.Errorf("gemini: create client: %w", c.err)
		}
	})
	return c.llm, c.err
}

// ExtractStructured flattens the chat into one prompt, asks for JSON output
// matching schema, and returns the raw text.
func (c *Client) ExtractStructured(ctx context.Context, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error) {
	llm, err := c.resolveModel(ctx)
	if err != nil {
		return "", err
	}
	resp, err := llms.GenerateFromSinglePrompt(ctx, llm, flatten(messages, schema),
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return resp, nil
}

func flatten(messages []domain.ChatMessage, schema domain.ResponseSchema) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
		default:
			b.WriteString("\n\n### INPUT:\n")
			b.WriteString(m.Content)
		}
	}
	if len(schema.Schema) > 0 {
		b.WriteString("\n\n### OUTPUT JSON SCHEMA (")
		b.WriteString(schema.Name)
		b.WriteString("):\n")
		b.Write(schema.Schema)
		b.WriteString("\nRespond with a single JSON object only. Do not wrap it in markdown.")
	}
	return strings.TrimSpace(b.String())
}
