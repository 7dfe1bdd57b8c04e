package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobboard-agent/internal/domain"
)

// fakeGetter serves parameters by name and counts lookups.
type fakeGetter struct {
	vals  map[string]string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.vals[name]
	if !ok {
		return "", errors.New("parameter not found: " + name)
	}
	return v, nil
}

func keyGetter() *fakeGetter {
	return &fakeGetter{vals: map[string]string{"/jobboard-agent/open-ai-token": `{"token":"sk-test"}`}}
}

var testSchema = domain.ResponseSchema{
	Name:   "intent_extraction",
	Schema: json.RawMessage(`{"type":"object","additionalProperties":false,"properties":{"role":{"type":"string"}},"required":["role"]}`),
}

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return clientFor(t, srv.URL)
}

func clientFor(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(baseURL), WithHTTPClient(&http.Client{Timeout: 2 * time.Second})}, opts...)
	c, err := NewClient(keyGetter(), "/jobboard-agent", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, "/jobboard-agent")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(keyGetter(), " / ")
	require.ErrorContains(t, err, "prefix")

	c, err := NewClient(keyGetter(), "/jobboard-agent/", WithModel("  "), WithBaseURL(""), WithHTTPClient(nil))
	require.NoError(t, err)
	require.Equal(t, defaultModel, c.model)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, "/jobboard-agent/open-ai-token", c.keyParam)
	require.NotNil(t, c.http)
}

func TestEndpoint(t *testing.T) {
	for base, want := range map[string]string{
		"https://api.openai.com/v1":  "https://api.openai.com/v1/moderations",
		"https://api.openai.com/v1/": "https://api.openai.com/v1/moderations",
		"http://localhost:8080":      "http://localhost:8080/v1/moderations",
		"http://localhost:8080/":     "http://localhost:8080/v1/moderations",
	} {
		c := &Client{baseURL: base}
		require.Equal(t, want, c.endpoint("/moderations"), base)
	}
}

func TestAPIKey_ResolvedOnce(t *testing.T) {
	g := keyGetter()
	c, err := NewClient(g, "/jobboard-agent")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := c.apiKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-test", key)
	}
	require.Equal(t, 1, g.calls)
}

func TestAPIKey_FailureIsNotRetried(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	c, err := NewClient(g, "/jobboard-agent")
	require.NoError(t, err)

	_, err = c.apiKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")
	_, err = c.Moderate(context.Background(), "hello")
	require.ErrorContains(t, err, "ssm unavailable")
	require.Equal(t, 1, g.calls)
}

func TestExtractStructured_SendsStrictSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var got struct {
			Model          string               `json:"model"`
			Messages       []domain.ChatMessage `json:"messages"`
			Temperature    *float64             `json:"temperature"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name   string `json:"name"`
					Strict bool   `json:"strict"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		require.Equal(t, "gpt-custom", got.Model)
		require.Len(t, got.Messages, 2)
		require.NotNil(t, got.Temperature)
		require.Zero(t, *got.Temperature)
		require.Equal(t, "json_schema", got.ResponseFormat.Type)
		require.Equal(t, "intent_extraction", got.ResponseFormat.JSONSchema.Name)
		require.True(t, got.ResponseFormat.JSONSchema.Strict)

		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"role\":\"nurse\"}"}}]}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv.URL, WithModel("gpt-custom"))
	out, err := c.ExtractStructured(context.Background(), []domain.ChatMessage{
		{Role: "system", Content: "extract"},
		{Role: "user", Content: "nurse jobs"},
	}, testSchema)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"nurse"}`, out)
}

func TestExtractStructured_EmptySchema(t *testing.T) {
	c := clientFor(t, "http://127.0.0.1:1")
	_, err := c.ExtractStructured(context.Background(), nil, domain.ResponseSchema{})
	require.ErrorContains(t, err, "schema")
}

func TestExtractStructured_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{name: "bad request", status: 400, body: `{"error":"bad request"}`, msg: "status 400"},
		{name: "server error", status: 500, body: `{"error":"internal"}`, msg: "status 500"},
		{name: "not json", status: 200, body: `not-a-json`, msg: "decode /chat/completions"},
		{name: "no choices", status: 200, body: `{"choices":[]}`, msg: "no choices"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := serve(t, tc.status, tc.body)
			_, err := c.ExtractStructured(context.Background(), nil, testSchema)
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestExtractStructured_RateLimitKeepsStatus(t *testing.T) {
	c := serve(t, 429, `{"error":"rate limited"}`)
	_, err := c.ExtractStructured(context.Background(), nil, testSchema)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 429, apiErr.HTTPStatusCode())
	require.Equal(t, "/chat/completions", apiErr.Endpoint)
	require.Contains(t, apiErr.Body, "rate limited")
}

func TestExtractStructured_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.ExtractStructured(context.Background(), nil, testSchema)
	require.ErrorContains(t, err, "POST /chat/completions")
}

func TestModerate(t *testing.T) {
	for body, want := range map[string]bool{
		`{"results":[{"flagged":false}]}`: false,
		`{"results":[{"flagged":true}]}`:  true,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/moderations", r.URL.Path)
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			require.Equal(t, "remote iOS jobs in Boston", in["input"])
			_, _ = w.Write([]byte(body))
		}))
		c := clientFor(t, srv.URL)
		flagged, err := c.Moderate(context.Background(), "remote iOS jobs in Boston")
		srv.Close()
		require.NoError(t, err)
		require.Equal(t, want, flagged, body)
	}
}

func TestModerate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{name: "rate limited", status: 429, body: `{"error":"rate limited"}`, msg: "status 429"},
		{name: "server error", status: 500, body: `{"error":"internal"}`, msg: "status 500"},
		{name: "not json", status: 200, body: `not-json`, msg: "decode /moderations"},
		{name: "no results", status: 200, body: `{"results":[]}`, msg: "no results"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := serve(t, tc.status, tc.body)
			_, err := c.Moderate(context.Background(), "hello")
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestModerate_NetworkError(t *testing.T) {
	c := clientFor(t, "http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	_, err := c.Moderate(context.Background(), "hello")
	require.ErrorContains(t, err, "POST /moderations")
}
