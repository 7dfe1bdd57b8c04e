// Package search fans a completed intent out to job-source adapters and
// merges their results into one ranked list.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"jobboard-agent/internal/domain"
)

const (
	defaultAdapterTimeout = 8 * time.Second
	MaxResults            = 50
	statusSuccess         = "success"
)

// ErrNoSourcesConfigured is returned when the gateway has no adapters.
var ErrNoSourcesConfigured = errors.New("search: no sources configured")

// Adapter is one job source. Name is the stable source identifier used in
// fetch_summary and JobResult.Source.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, in domain.Intent) ([]domain.JobResult, error)
}

type Gateway struct {
	adapters []Adapter
	timeout  time.Duration
	limit    int
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Gateway)

func WithAdapterTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway builds a gateway over adapters in priority order.
func NewGateway(adapters []Adapter, opts ...Option) *Gateway {
	g := &Gateway{
		adapters: append([]Adapter(nil), adapters...),
		timeout:  defaultAdapterTimeout,
		limit:    MaxResults,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Sources returns the configured adapter names in priority order.
func (g *Gateway) Sources() []string {
	out := make([]string, 0, len(g.adapters))
	for _, a := range g.adapters {
		out = append(out, a.Name())
	}
	return out
}

type fetchResult struct {
	jobs []domain.JobResult
	err  error
}

// Search queries every adapter concurrently, each under its own timeout,
// and waits for all of them to settle. A failed adapter counts zero in
// FetchSummary and is listed in FailedSources.
func (g *Gateway) Search(ctx context.Context, in domain.Intent) (domain.SearchResponse, error) {
	if len(g.adapters) == 0 {
		return domain.SearchResponse{}, ErrNoSourcesConfigured
	}

	results := make([]fetchResult, len(g.adapters))
	var wg sync.WaitGroup
	for i, a := range g.adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			results[i] = g.fetch(ctx, a, in)
		}(i, a)
	}
	wg.Wait()

	summary := make(map[string]int, len(g.adapters))
	var (
		merged []ranked
		failed []string
	)
	for i, a := range g.adapters {
		name := a.Name()
		res := results[i]
		if res.err != nil {
			g.logger.Warn("job source failed", "source", name, "err", res.err)
			failed = append(failed, name)
			if _, ok := summary[name]; !ok {
				summary[name] = 0
			}
			continue
		}
		summary[name] += len(res.jobs)
		for _, j := range res.jobs {
			j.Source = name
			j.Badges = annotateBadges(j, g.now())
			merged = append(merged, ranked{job: j, priority: i, order: len(merged)})
		}
	}

	deduped := dedupe(merged)
	rank(deduped, in)

	jobs := make([]domain.JobResult, 0, min(len(deduped), g.limit))
	for _, r := range deduped {
		if len(jobs) == g.limit {
			break
		}
		jobs = append(jobs, r.job)
	}

	g.logger.Info("search completed", "role", in.Role, "jobs_found", len(deduped), "returned", len(jobs), "failed_sources", failed)
	return domain.SearchResponse{
		Status:        statusSuccess,
		Jobs:          jobs,
		JobsFound:     len(deduped),
		FetchSummary:  summary,
		FailedSources: failed,
		SearchCriteria: domain.SearchCriteria{
			Role:             in.Role,
			Location:         in.Location,
			WorkType:         in.WorkType,
			RemotePreference: in.RemotePreference,
		},
	}, nil
}

// fetch runs one adapter and gives up at the timeout even if the adapter
// ignores its context.
func (g *Gateway) fetch(ctx context.Context, a Adapter, in domain.Intent) fetchResult {
	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("search: adapter %s panicked: %v", a.Name(), r)}
			}
		}()
		jobs, err := a.Fetch(actx, in)
		done <- fetchResult{jobs: jobs, err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-actx.Done():
		return fetchResult{err: fmt.Errorf("search: adapter %s: %w", a.Name(), actx.Err())}
	}
}

type ranked struct {
	job      domain.JobResult
	score    float64
	priority int
	order    int
}

// dedupe keeps the first occurrence of each (title, company, url) key in
// merge order.
func dedupe(in []ranked) []ranked {
	seen := make(map[string]struct{}, len(in))
	out := make([]ranked, 0, len(in))
	for _, r := range in {
		if strings.TrimSpace(r.job.Title) == "" && strings.TrimSpace(r.job.ApplyURL) == "" {
			continue
		}
		k := r.job.DedupKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
