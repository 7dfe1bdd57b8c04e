// Package openai calls the Chat Completions endpoint with a strict JSON
// schema for intent extraction, and the Moderations endpoint for the
// pre-extraction safety check.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/integrations/paramstore"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	tokenParamName = "open-ai-token"

	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

// APIError is a non-2xx answer from OpenAI. The usecase layer reads the
// status through HTTPStatusCode.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: %s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *APIError) HTTPStatusCode() int { return e.Status }

type Client struct {
	baseURL  string
	http     *http.Client
	getter   paramstore.Getter
	keyParam string
	model    string

	keyOnce sync.Once
	key     string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithModel sets the completion model. Blank keeps the default.
func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// NewClient reads the API key from <paramPrefix>/open-ai-token on first use.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	prefix := strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if prefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		getter:   ps,
		keyParam: prefix + "/" + tokenParamName,
		model:    defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiKey is resolved once per process; a failed lookup is not retried.
func (c *Client) apiKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.key, c.keyErr = paramstore.Token(ctx, c.getter, c.keyParam)
	})
	return c.key, c.keyErr
}

// endpoint joins path onto the base URL, adding /v1 when the base lacks it.
func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

type completionRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat schemaFormat         `json:"response_format"`
}

type schemaFormat struct {
	Type       string `json:"type"`
	JSONSchema struct {
		Name   string          `json:"name"`
		Strict bool            `json:"strict"`
		Schema json.RawMessage `json:"schema"`
	} `json:"json_schema"`
}

type completionResponse struct {
	Choices []struct {
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

// ExtractStructured runs one deterministic completion constrained to schema
// and returns the message content unparsed.
func (c *Client) ExtractStructured(ctx context.Context, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error) {
	if schema.Name == "" || len(schema.Schema) == 0 {
		return "", errors.New("openai: response schema must not be empty")
	}
	req := completionRequest{Model: c.model, Messages: messages}
	req.ResponseFormat.Type = "json_schema"
	req.ResponseFormat.JSONSchema.Name = schema.Name
	req.ResponseFormat.JSONSchema.Strict = true
	req.ResponseFormat.JSONSchema.Schema = schema.Schema

	var resp completionResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Moderate reports whether OpenAI flags input.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	var resp struct {
		Results []struct {
			Flagged bool `json:"flagged"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/moderations", map[string]string{"input": input}, &resp); err != nil {
		return false, err
	}
	if len(resp.Results) == 0 {
		return false, errors.New("openai: moderation has no results")
	}
	return resp.Results[0].Flagged, nil
}

// post sends in as JSON to path and decodes a 2xx body into out.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	key, err := c.apiKey(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("openai: encode %s: %w", path, err)
	}
	url := c.endpoint(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openai: POST %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &APIError{Status: res.StatusCode, Endpoint: path, Body: string(msg)}
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("openai: decode %s: %w", path, err)
	}
	return nil
}
