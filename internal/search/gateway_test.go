package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jobboard-agent/internal/domain"
)

type fakeAdapter struct {
	name  string
	jobs  []domain.JobResult
	err   error
	delay time.Duration
	// ignoreCtx makes the adapter sleep through cancellation.
	ignoreCtx bool
	calls     atomic.Int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, _ domain.Intent) ([]domain.JobResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.jobs, f.err
}

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func job(title, company, url string) domain.JobResult {
	return domain.JobResult{Title: title, Company: company, ApplyURL: url}
}

func newGateway(adapters ...Adapter) *Gateway {
	return NewGateway(adapters, WithAdapterTimeout(50*time.Millisecond), WithClock(func() time.Time { return now }))
}

func TestSearch_NoSourcesConfigured(t *testing.T) {
	_, err := NewGateway(nil).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.ErrorIs(t, err, ErrNoSourcesConfigured)
}

func TestSearch_TimedOutAdapterCountsZero(t *testing.T) {
	a := &fakeAdapter{name: "A", delay: time.Second, ignoreCtx: true}
	b := &fakeAdapter{name: "B", jobs: []domain.JobResult{
		job("Nurse", "General", "https://b/1"),
		job("Nurse", "City", "https://b/2"),
		job("Night Nurse", "City", "https://b/3"),
	}}

	start := time.Now()
	res, err := newGateway(a, b).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	require.Equal(t, map[string]int{"A": 0, "B": 3}, res.FetchSummary)
	require.Equal(t, []string{"A"}, res.FailedSources)
	require.Len(t, res.Jobs, 3)
	require.Equal(t, 3, res.JobsFound)
	for _, j := range res.Jobs {
		require.Equal(t, "B", j.Source)
	}
}

func TestSearch_FailingAdapterDoesNotFailSearch(t *testing.T) {
	a := &fakeAdapter{name: "A", err: errors.New("503")}
	b := &fakeAdapter{name: "B", jobs: []domain.JobResult{job("Go Developer", "X", "https://b/1")}}

	res, err := newGateway(a, b).Search(context.Background(), domain.Intent{Role: "go developer"})
	require.NoError(t, err)
	require.Equal(t, 0, res.FetchSummary["A"])
	require.Equal(t, 1, res.FetchSummary["B"])
	require.Equal(t, []string{"A"}, res.FailedSources)
	require.Equal(t, "success", res.Status)
}

func TestSearch_EmptySourceIsNotFailed(t *testing.T) {
	a := &fakeAdapter{name: "A"}
	b := &fakeAdapter{name: "B", jobs: []domain.JobResult{job("Nurse", "X", "https://b/1")}}
	res, err := newGateway(a, b).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.NoError(t, err)
	require.Equal(t, 0, res.FetchSummary["A"])
	require.Empty(t, res.FailedSources)
}

func TestSearch_AllAdaptersFailingIsEmptySuccess(t *testing.T) {
	a := &fakeAdapter{name: "A", err: errors.New("down")}
	res, err := newGateway(a).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.NoError(t, err)
	require.Empty(t, res.Jobs)
	require.Zero(t, res.JobsFound)
	require.Equal(t, map[string]int{"A": 0}, res.FetchSummary)
}

func TestSearch_PanickingAdapterIsIsolated(t *testing.T) {
	p := &panicAdapter{}
	b := &fakeAdapter{name: "B", jobs: []domain.JobResult{job("Nurse", "X", "https://b/1")}}
	res, err := newGateway(p, b).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.NoError(t, err)
	require.Equal(t, 0, res.FetchSummary["panicky"])
	require.Equal(t, []string{"panicky"}, res.FailedSources)
	require.Len(t, res.Jobs, 1)
}

type panicAdapter struct{}

func (panicAdapter) Name() string { return "panicky" }
func (panicAdapter) Fetch(context.Context, domain.Intent) ([]domain.JobResult, error) {
	panic("boom")
}

func TestSearch_DedupKeepsFirstAdapterCopy(t *testing.T) {
	a := &fakeAdapter{name: "A", jobs: []domain.JobResult{{Title: "iOS Engineer", Company: "Acme", ApplyURL: "https://x/1", Description: "from A"}}}
	b := &fakeAdapter{name: "B", jobs: []domain.JobResult{{Title: " ios engineer ", Company: "ACME", ApplyURL: "https://x/1", Description: "from B"}}}

	res, err := newGateway(a, b).Search(context.Background(), domain.Intent{Role: "iOS engineer"})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	require.Equal(t, "A", res.Jobs[0].Source)
	require.Equal(t, "from A", res.Jobs[0].Description)
	require.Equal(t, 1, res.JobsFound)
	require.Equal(t, map[string]int{"A": 1, "B": 1}, res.FetchSummary)
}

func TestSearch_CapsAtFifty(t *testing.T) {
	var jobs []domain.JobResult
	for i := 0; i < 80; i++ {
		jobs = append(jobs, job(fmt.Sprintf("Nurse %d", i), "H", fmt.Sprintf("https://a/%d", i)))
	}
	res, err := newGateway(&fakeAdapter{name: "A", jobs: jobs}).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.NoError(t, err)
	require.Len(t, res.Jobs, MaxResults)
	require.Equal(t, 80, res.JobsFound)
	require.Equal(t, 80, res.FetchSummary["A"])
}

func TestSearch_RanksByScoreThenRecencyThenPriority(t *testing.T) {
	a := &fakeAdapter{name: "A", jobs: []domain.JobResult{
		{Title: "Warehouse Associate", ApplyURL: "https://a/1", PostedAt: at(time.Hour)},
		{Title: "Nurse", ApplyURL: "https://a/2", PostedAt: at(72 * time.Hour)},
		{Title: "Nurse", ApplyURL: "https://a/3"},
	}}
	b := &fakeAdapter{name: "B", jobs: []domain.JobResult{
		{Title: "Nurse", ApplyURL: "https://b/1", PostedAt: at(2 * time.Hour)},
		{Title: "Nurse", ApplyURL: "https://b/2"},
	}}

	res, err := newGateway(a, b).Search(context.Background(), domain.Intent{Role: "nurse"})
	require.NoError(t, err)

	var urls []string
	for _, j := range res.Jobs {
		urls = append(urls, j.ApplyURL)
	}
	require.Equal(t, []string{"https://b/1", "https://a/2", "https://a/3", "https://b/2", "https://a/1"}, urls)
}

func TestSearch_LocationAndRemoteBoost(t *testing.T) {
	a := &fakeAdapter{name: "A", jobs: []domain.JobResult{
		{Title: "iOS Engineer", Location: "Denver, CO", ApplyURL: "https://a/1"},
		{Title: "iOS Engineer", Location: "Boston, MA", ApplyURL: "https://a/2"},
		{Title: "iOS Engineer", Location: "Remote (US)", ApplyURL: "https://a/3"},
	}}
	res, err := newGateway(a).Search(context.Background(), domain.Intent{Role: "iOS engineer", Location: "remote or Boston", RemotePreference: domain.RemoteRemote})
	require.NoError(t, err)
	require.Equal(t, "https://a/3", res.Jobs[0].ApplyURL)
	require.Equal(t, "https://a/2", res.Jobs[1].ApplyURL)
	require.Equal(t, "https://a/1", res.Jobs[2].ApplyURL)
	require.Contains(t, res.Jobs[0].Badges, BadgeRemote)
}

func TestSearch_CallsEveryAdapterOnce(t *testing.T) {
	a := &fakeAdapter{name: "A"}
	b := &fakeAdapter{name: "B"}
	c := &fakeAdapter{name: "C"}
	_, err := newGateway(a, b, c).Search(context.Background(), domain.Intent{Role: "x"})
	require.NoError(t, err)
	for _, f := range []*fakeAdapter{a, b, c} {
		require.Equal(t, int32(1), f.calls.Load(), f.name)
	}
}

func TestSources(t *testing.T) {
	g := newGateway(&fakeAdapter{name: "usajobs"}, &fakeAdapter{name: "craigslist"})
	require.Equal(t, []string{"usajobs", "craigslist"}, g.Sources())
}
