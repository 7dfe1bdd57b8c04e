// Package usajobs is a job-source adapter for the USAJOBS search API.
package usajobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/integrations/paramstore"
)

const (
	SourceName            = "usajobs"
	defaultBaseURL        = "https://data.usajobs.gov"
	defaultResultsPerPage = 50
	maxResultsPerPage     = 500
	httpTimeout           = 10 * time.Second
)

// HTTPStatusError is returned for non-2xx USAJOBS responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("usajobs: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }

type searchResponse struct {
	SearchResult struct {
		SearchResultCount int `json:"SearchResultCount"`
		SearchResultItems []struct {
			MatchedObjectDescriptor descriptor `json:"MatchedObjectDescriptor"`
		} `json:"SearchResultItems"`
	} `json:"SearchResult"`
}

type descriptor struct {
	PositionTitle           string `json:"PositionTitle"`
	PositionURI             string `json:"PositionURI"`
	OrganizationName        string `json:"OrganizationName"`
	PositionLocationDisplay string `json:"PositionLocationDisplay"`
	PositionLocation        []struct {
		LocationName string `json:"LocationName"`
	} `json:"PositionLocation"`
	QualificationSummary string `json:"QualificationSummary"`
	PositionSchedule     []struct {
		Name string `json:"Name"`
	} `json:"PositionSchedule"`
	ApplyURI             []string `json:"ApplyURI"`
	PublicationStartDate string   `json:"PublicationStartDate"`
}

// Client fetches postings from USAJOBS. The API key is read from SSM on the
// first Fetch and reused for the lifetime of the process.
type Client struct {
	baseURL        string
	email          string
	resultsPerPage int
	httpClient     *http.Client
	getter         paramstore.Getter
	tokenName      string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if b := strings.TrimSpace(baseURL); b != "" {
			c.baseURL = strings.TrimRight(b, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithResultsPerPage clamps n to the API maximum of 500.
func WithResultsPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.resultsPerPage = min(n, maxResultsPerPage)
		}
	}
}

// NewClient builds a USAJOBS client. email is sent in the User-Agent header
// as the API requires.
func NewClient(getter paramstore.Getter, tokenName, email string, opts ...Option) (*Client, error) {
	if getter == nil {
		return nil, errors.New("usajobs: paramstore getter must not be nil")
	}
	if strings.TrimSpace(tokenName) == "" {
		return nil, errors.New("usajobs: token parameter name must not be empty")
	}
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("usajobs: contact email must not be empty")
	}
	c := &Client{
		baseURL:        defaultBaseURL,
		email:          strings.TrimSpace(email),
		resultsPerPage: defaultResultsPerPage,
		httpClient:     &http.Client{Timeout: httpTimeout},
		getter:         getter,
		tokenName:      strings.TrimSpace(tokenName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return SourceName }

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = paramstore.Token(ctx, c.getter, c.tokenName)
	})
	return c.apiKey, c.keyErr
}

// Fetch runs one search for the intent's role and location.
func (c *Client) Fetch(ctx context.Context, in domain.Intent) ([]domain.JobResult, error) {
	if strings.TrimSpace(in.Role) == "" {
		return nil, errors.New("usajobs: role is required")
	}
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.searchURL(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("usajobs: create request: %w", err)
	}
	req.Header.Set("Authorization-Key", apiKey)
	req.Header.Set("User-Agent", "jobboard-agent ("+c.email+")")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usajobs: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	var payload searchResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("usajobs: decode response: %w", err)
	}

	jobs := make([]domain.JobResult, 0, len(payload.SearchResult.SearchResultItems))
	for _, item := range payload.SearchResult.SearchResultItems {
		if j, ok := toJob(item.MatchedObjectDescriptor); ok {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (c *Client) searchURL(in domain.Intent) string {
	q := url.Values{}
	q.Set("Keyword", strings.TrimSpace(in.Role))
	q.Set("ResultsPerPage", strconv.Itoa(c.resultsPerPage))
	q.Set("Page", "1")
	if loc := locationName(in.Location); loc != "" {
		q.Set("LocationName", loc)
	}
	if wantsRemote(in) {
		q.Set("RemoteIndicator", "True")
	}
	return c.baseURL + "/api/Search?" + q.Encode()
}

// locationName picks the first concrete place out of a free-text location
// such as "remote or Boston".
func locationName(loc string) string {
	for _, part := range strings.FieldsFunc(strings.ToLower(loc), func(r rune) bool { return r == ';' || r == '/' }) {
		for _, p := range strings.Split(part, " or ") {
			p = strings.TrimSpace(p)
			switch p {
			case "", "remote", "anywhere", "any":
				continue
			}
			return p
		}
	}
	return ""
}

func wantsRemote(in domain.Intent) bool {
	return in.RemotePreference == domain.RemoteRemote || strings.Contains(strings.ToLower(in.Location), "remote")
}

func toJob(d descriptor) (domain.JobResult, bool) {
	title := strings.TrimSpace(d.PositionTitle)
	if title == "" {
		return domain.JobResult{}, false
	}
	j := domain.JobResult{
		Title:       title,
		Company:     strings.TrimSpace(d.OrganizationName),
		Location:    strings.TrimSpace(d.PositionLocationDisplay),
		Description: strings.TrimSpace(d.QualificationSummary),
		ApplyURL:    strings.TrimSpace(d.PositionURI),
	}
	if j.Location == "" && len(d.PositionLocation) > 0 {
		j.Location = strings.TrimSpace(d.PositionLocation[0].LocationName)
	}
	if len(d.PositionSchedule) > 0 {
		j.JobType = strings.TrimSpace(d.PositionSchedule[0].Name)
	}
	if len(d.ApplyURI) > 0 && strings.TrimSpace(d.ApplyURI[0]) != "" {
		j.ApplyURL = strings.TrimSpace(d.ApplyURI[0])
	}
	if t, ok := parseDate(d.PublicationStartDate); ok {
		j.PostedAt = &t
	}
	return j, true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
