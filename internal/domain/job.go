package domain

import (
	"strings"
	"time"
)

// JobResult is one posting returned by a job source.
type JobResult struct {
	Title       string     `json:"title"`
	Company     string     `json:"company,omitempty"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	JobType     string     `json:"job_type,omitempty"`
	ApplyURL    string     `json:"apply_url"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	Source      string     `json:"source"`
	Badges      []string   `json:"badges"`
}

// DedupKey identifies the same posting across sources.
func (j JobResult) DedupKey() string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return norm(j.Title) + "\x00" + norm(j.Company) + "\x00" + norm(j.ApplyURL)
}

// SearchCriteria echoes the intent fields a search was run with.
type SearchCriteria struct {
	Role             string `json:"role"`
	Location         string `json:"location,omitempty"`
	WorkType         string `json:"work_type,omitempty"`
	RemotePreference string `json:"remote_preference,omitempty"`
}

// SearchResponse is the merged, ranked result of a gateway search.
type SearchResponse struct {
	Status         string         `json:"status"`
	Jobs           []JobResult    `json:"jobs"`
	JobsFound      int            `json:"jobs_found"`
	FetchSummary   map[string]int `json:"fetch_summary"`
	FailedSources  []string       `json:"failed_sources,omitempty"`
	SearchCriteria SearchCriteria `json:"search_criteria"`
}
