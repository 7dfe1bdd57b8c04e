// Package craigslist reads Craigslist job search RSS feeds with colly.
package craigslist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"jobboard-agent/internal/domain"
)

const (
	SourceName         = "craigslist"
	defaultSite        = "boston"
	defaultURLTemplate = "https://%s.craigslist.org"
	maxURLs            = 3
	fallbackCategory   = "jjj"
	userAgent          = "Mozilla/5.0 (compatible; jobboard-agent/1.0)"
)

var knownSites = map[string]bool{
	"boston": true, "newyork": true, "sfbay": true, "chicago": true, "losangeles": true,
	"seattle": true, "austin": true, "atlanta": true, "miami": true, "dallas": true,
	"denver": true, "sandiego": true, "portland": true,
}

// siteAliases maps common city spellings to their site slug.
var siteAliases = map[string]string{
	"new york":      "newyork",
	"nyc":           "newyork",
	"san francisco": "sfbay",
	"bay area":      "sfbay",
	"los angeles":   "losangeles",
	"la":            "losangeles",
	"san diego":     "sandiego",
}

// categoryKeywords is checked in order; the first match wins.
var categoryKeywords = []struct {
	code     string
	keywords []string
}{
	{"hea", []string{"nurse", "nursing", "rn", "lpn", "cna", "medical", "health", "caregiver", "therapist"}},
	{"edu", []string{"tutor", "teacher", "teaching", "instructor", "education"}},
	{"sci", []string{"data scientist", "machine learning", "ml", "ai", "scientist", "research", "analytics"}},
	{"sof", []string{"software", "developer", "engineer", "programmer", "ios", "android", "backend", "frontend", "devops"}},
	{"med", []string{"designer", "design", "ux", "writer", "editor", "media", "video"}},
	{"mkt", []string{"marketing", "seo", "social media", "growth", "content"}},
	{"sal", []string{"sales", "business development", "account executive"}},
	{"ofc", []string{"admin", "administrative", "office", "receptionist", "assistant"}},
}

var employmentTypes = map[string]int{
	domain.WorkTypeFullTime: 1,
	domain.WorkTypePartTime: 2,
	domain.WorkTypeContract: 3,
}

// Scraper fetches up to three Craigslist RSS searches per intent.
type Scraper struct {
	urlTemplate string
	defaultSite string
	timeout     time.Duration
}

type Option func(*Scraper)

// WithURLTemplate overrides the per-site base URL. The template takes the
// site slug as its only %s verb.
func WithURLTemplate(tmpl string) Option {
	return func(s *Scraper) {
		if strings.Contains(tmpl, "%s") {
			s.urlTemplate = strings.TrimRight(tmpl, "/")
		}
	}
}

func WithDefaultSite(site string) Option {
	return func(s *Scraper) {
		if site = strings.ToLower(strings.TrimSpace(site)); site != "" {
			s.defaultSite = site
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		urlTemplate: defaultURLTemplate,
		defaultSite: defaultSite,
		timeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scraper) Name() string { return SourceName }

// Fetch visits each search URL in turn. It fails only when every URL fails.
func (s *Scraper) Fetch(ctx context.Context, in domain.Intent) ([]domain.JobResult, error) {
	urls := s.searchURLs(in)
	if len(urls) == 0 {
		return nil, errors.New("craigslist: role is required")
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.timeout)

	var (
		jobs []domain.JobResult
		seen = map[string]bool{}
		errs []error
	)

	c.OnXML("//*[local-name()='item']", func(e *colly.XMLElement) {
		j, ok := itemToJob(e)
		if !ok || seen[j.ApplyURL] {
			return
		}
		seen[j.ApplyURL] = true
		jobs = append(jobs, j)
	})

	// Visit is synchronous and reports transport and non-2xx failures.
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.Visit(u); err != nil {
			errs = append(errs, fmt.Errorf("craigslist: visit %s: %w", u, err))
		}
	}

	if len(errs) == len(urls) {
		return nil, errors.Join(errs...)
	}
	return jobs, nil
}

// searchURLs returns the role's own category on the resolved site, the
// catch-all jobs category, then the default site when it differs.
func (s *Scraper) searchURLs(in domain.Intent) []string {
	query := strings.TrimSpace(in.Role)
	if query == "" {
		return nil
	}
	site := s.siteFor(in.Location)
	cat := categoryFor(in.Role)

	type target struct{ site, cat string }
	targets := []target{{site, cat}}
	if cat != fallbackCategory {
		targets = append(targets, target{site, fallbackCategory})
	}
	if site != s.defaultSite {
		targets = append(targets, target{s.defaultSite, cat})
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("format", "rss")
	if et, ok := employmentTypes[in.WorkType]; ok {
		q.Set("employment_type", strconv.Itoa(et))
	}
	if in.RemotePreference == domain.RemoteRemote {
		q.Set("is_telecommuting", "1")
	}

	out := make([]string, 0, maxURLs)
	for _, t := range targets {
		if len(out) == maxURLs {
			break
		}
		out = append(out, fmt.Sprintf(s.urlTemplate, t.site)+"/search/"+t.cat+"?"+q.Encode())
	}
	return out
}

var nonLetters = regexp.MustCompile(`[^a-z]`)

func (s *Scraper) siteFor(location string) string {
	for _, part := range strings.FieldsFunc(strings.ToLower(location), func(r rune) bool {
		return r == ',' || r == ';' || r == '/'
	}) {
		for _, p := range strings.Split(part, " or ") {
			p = strings.TrimSpace(p)
			if alias, ok := siteAliases[p]; ok {
				return alias
			}
			if slug := nonLetters.ReplaceAllString(p, ""); knownSites[slug] {
				return slug
			}
		}
	}
	return s.defaultSite
}

func categoryFor(role string) string {
	padded := " " + nonWord.ReplaceAllString(strings.ToLower(role), " ") + " "
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return c.code
			}
		}
	}
	return fallbackCategory
}

var (
	nonWord        = regexp.MustCompile(`[^a-z0-9]+`)
	titleLocation  = regexp.MustCompile(`\(([^()]+)\)\s*$`)
	htmlTag        = regexp.MustCompile(`<[^>]*>`)
	collapseSpaces = regexp.MustCompile(`\s+`)
)

func itemToJob(e *colly.XMLElement) (domain.JobResult, bool) {
	title := strings.TrimSpace(e.ChildText("*[local-name()='title']"))
	link := strings.TrimSpace(e.ChildText("*[local-name()='link']"))
	if title == "" || link == "" {
		return domain.JobResult{}, false
	}
	j := domain.JobResult{
		Title:       title,
		ApplyURL:    link,
		Description: cleanText(e.ChildText("*[local-name()='description']")),
	}
	if m := titleLocation.FindStringSubmatch(title); m != nil {
		j.Location = strings.TrimSpace(m[1])
		j.Title = strings.TrimSpace(strings.TrimSuffix(title, m[0]))
	}
	if raw := strings.TrimSpace(e.ChildText("*[local-name()='date']")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			t = t.UTC()
			j.PostedAt = &t
		}
	}
	return j, true
}

func cleanText(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.TrimSpace(collapseSpaces.ReplaceAllString(s, " "))
}
