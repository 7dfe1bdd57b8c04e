package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/search"
)

const searchCachePrefix = "jobs:search:"

type JobGateway interface {
	Search(ctx context.Context, in domain.Intent) (domain.SearchResponse, error)
}

// SearchCache is a best-effort JSON cache. Misses report false.
type SearchCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

type SearchService struct {
	gateway JobGateway
	cache   SearchCache
	logger  *slog.Logger
}

type SearchOption func(*SearchService)

func WithSearchCache(c SearchCache) SearchOption {
	return func(s *SearchService) { s.cache = c }
}

func WithSearchLogger(l *slog.Logger) SearchOption {
	return func(s *SearchService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSearchService(g JobGateway, opts ...SearchOption) (*SearchService, error) {
	if g == nil {
		return nil, errors.New("usecase: job gateway must not be nil")
	}
	s := &SearchService{gateway: g, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SearchService) Search(ctx context.Context, in domain.Intent) (domain.SearchResponse, error) {
	in.Role = strings.TrimSpace(in.Role)
	if in.Role == "" {
		return domain.SearchResponse{}, newError(ErrorInvalidInput, "missing_role", nil)
	}

	key := searchCacheKey(in)
	if s.cache != nil {
		var cached domain.SearchResponse
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		switch {
		case err != nil:
			s.logger.Warn("search cache read failed", "err", err)
		case ok:
			s.logger.Info("search cache hit", "key", key)
			return cached, nil
		}
	}

	resp, err := s.gateway.Search(ctx, in)
	if err != nil {
		if errors.Is(err, search.ErrNoSourcesConfigured) {
			return domain.SearchResponse{}, newError(ErrorNoSourcesConfigured, "no_sources_configured", err)
		}
		return domain.SearchResponse{}, newError(ErrorInternal, "search_error", err)
	}

	// Only complete answers are cached; a source that failed may be back on
	// the next call.
	if s.cache != nil && len(resp.Jobs) > 0 && len(resp.FailedSources) == 0 {
		if err := s.cache.SetJSON(ctx, key, resp); err != nil {
			s.logger.Warn("search cache write failed", "err", err)
		}
	} else if len(resp.FailedSources) > 0 {
		s.logger.Info("partial search result not cached", "failed_sources", resp.FailedSources)
	}
	return resp, nil
}

// searchCacheKey hashes the normalized intent so equivalent searches share
// an entry.
func searchCacheKey(in domain.Intent) string {
	norm := in.Clone()
	for _, f := range domain.Fields {
		if f == domain.FieldSalaryMin {
			continue
		}
		norm.Set(f, strings.ToLower(strings.Join(strings.Fields(norm.Value(f)), " ")))
	}
	b, _ := json.Marshal(norm)
	sum := sha256.Sum256(b)
	return searchCachePrefix + hex.EncodeToString(sum[:])
}
