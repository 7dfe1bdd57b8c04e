// Package board is a job-source adapter over the job board's own Postgres
// jobs table.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobboard-agent/internal/domain"
)

const (
	SourceName   = "board"
	defaultLimit = 100
)

const searchSQL = `SELECT COALESCE(title, ''), COALESCE(company, ''), COALESCE(location, ''),
       COALESCE(description, ''), COALESCE(job_type, ''), COALESCE(url, ''), posted_at
FROM jobs
WHERE is_active
  AND (title ILIKE $1 OR description ILIKE $1)
  AND ($2 = '' OR location ILIKE '%' || $2 || '%' OR location ILIKE '%remote%')
ORDER BY posted_at DESC NULLS LAST
LIMIT $3`

// rows is the subset of pgx.Rows the adapter reads.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (rows, error)
}

// Source reads matching postings from the jobs table.
type Source struct {
	db    querier
	limit int
}

func NewSource(db querier) (*Source, error) {
	if db == nil {
		return nil, errors.New("board: querier must not be nil")
	}
	return &Source{db: db, limit: defaultLimit}, nil
}

func (s *Source) Name() string { return SourceName }

func (s *Source) Fetch(ctx context.Context, in domain.Intent) ([]domain.JobResult, error) {
	role := strings.TrimSpace(in.Role)
	if role == "" {
		return nil, errors.New("board: role is required")
	}

	r, err := s.db.Query(ctx, searchSQL, "%"+escapeLike(role)+"%", escapeLike(placeFilter(in.Location)), s.limit)
	if err != nil {
		return nil, fmt.Errorf("board: query jobs: %w", err)
	}
	defer r.Close()

	out := make([]domain.JobResult, 0)
	for r.Next() {
		var (
			j      domain.JobResult
			posted *time.Time
		)
		if err := r.Scan(&j.Title, &j.Company, &j.Location, &j.Description, &j.JobType, &j.ApplyURL, &posted); err != nil {
			return nil, fmt.Errorf("board: scan job: %w", err)
		}
		if posted != nil {
			t := posted.UTC()
			j.PostedAt = &t
		}
		out = append(out, j)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("board: read jobs: %w", err)
	}
	return out, nil
}

// placeFilter returns the first concrete place in a free-text location, or
// "" when the candidate only asked for remote work.
func placeFilter(loc string) string {
	for _, part := range strings.FieldsFunc(loc, func(r rune) bool { return r == ',' || r == ';' || r == '/' }) {
		for _, p := range strings.Split(strings.ToLower(part), " or ") {
			p = strings.TrimSpace(p)
			if p == "" || p == "remote" || p == "anywhere" {
				continue
			}
			return p
		}
	}
	return ""
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Pool adapts a pgxpool.Pool to the querier the Source reads through.
type Pool struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and pings it before returning.
func Connect(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("board: parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("board: open pool: %w", err)
	}

	pingCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("board: ping: %w", err)
	}
	return &Pool{pool: p}, nil
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (rows, error) {
	if p == nil || p.pool == nil {
		return nil, errors.New("board: nil pool")
	}
	return p.pool.Query(ctx, sql, args...)
}

func (p *Pool) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}
