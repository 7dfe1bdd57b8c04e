package app

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"jobboard-agent/handler"
	"jobboard-agent/internal/cache"
	"jobboard-agent/internal/integrations/gemini"
	"jobboard-agent/internal/integrations/openai"
	"jobboard-agent/internal/integrations/paramstore"
	"jobboard-agent/internal/intent"
	"jobboard-agent/internal/repository"
	"jobboard-agent/internal/search"
	"jobboard-agent/internal/sources/board"
	"jobboard-agent/internal/sources/craigslist"
	"jobboard-agent/internal/sources/usajobs"
	"jobboard-agent/internal/usecase"
)

// App holds the wired handler and the resources to release on shutdown.
type App struct {
	Handler *handler.Handler
	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build connects every dependency named by cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load aws config: %w", err)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: ssm client: %w", err)
	}

	// ---- Redis (sessions and/or search cache) ----
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	// ---- Session store ----
	var store usecase.SessionStore
	switch cfg.SessionBackend {
	case BackendDynamoDB:
		store, err = repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	case BackendRedis:
		store, err = repository.NewRedisStore(redisClient)
	default:
		logger.Warn("using in-memory session store, sessions are lost on restart")
		store = repository.NewMemoryStore()
	}
	if err != nil {
		return nil, fmt.Errorf("app: session store: %w", err)
	}

	// ---- Extraction ----
	svc, moderator, err := newExtractionService(cfg, ssmClient)
	if err != nil {
		return nil, err
	}
	extractor, err := intent.NewExtractor(svc, intent.WithTimeout(cfg.ExtractionTimeout), intent.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: extractor: %w", err)
	}

	// ---- Job sources ----
	adapters, closers, err := buildAdapters(ctx, cfg, ssmClient)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		logger.Warn("no job sources configured, /search will answer 503")
	}
	gateway := search.NewGateway(adapters, search.WithAdapterTimeout(cfg.AdapterTimeout), search.WithLogger(logger))

	// ---- Use cases ----
	searchOpts := []usecase.SearchOption{usecase.WithSearchLogger(logger)}
	if redisClient != nil {
		searchOpts = append(searchOpts, usecase.WithSearchCache(cache.NewRedis(redisClient, cfg.SearchCacheTTL, logger)))
	}
	searchService, err := usecase.NewSearchService(gateway, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: search service: %w", err)
	}
	intentService, err := usecase.NewIntentService(extractor, cfg.MaxIntentInput)
	if err != nil {
		return nil, fmt.Errorf("app: intent service: %w", err)
	}
	chatOpts := []usecase.ChatOption{
		usecase.WithSearcher(searchService),
		usecase.WithMaxMessageLength(cfg.MaxMessageLength),
		usecase.WithMaxRoleAttempts(cfg.MaxRoleAttempts),
		usecase.WithChatLogger(logger),
	}
	if moderator != nil {
		chatOpts = append(chatOpts, usecase.WithModerator(moderator))
	}
	chatService, err := usecase.NewChatService(store, extractor, chatOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: chat service: %w", err)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(intentService, searchService, chatService, handler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: handler: %w", err)
	}
	a.Handler = h

	logger.Info("jobboard agent ready",
		"session_backend", cfg.SessionBackend,
		"llm_provider", cfg.LLMProvider,
		"sources", gateway.Sources(),
		"search_cache", redisClient != nil,
	)
	return a, nil
}

// newExtractionService returns the structured-output provider and, for
// OpenAI with moderation enabled, the moderator.
func newExtractionService(cfg Config, getter paramstore.Getter) (intent.Service, usecase.Moderator, error) {
	switch cfg.LLMProvider {
	case ProviderGemini:
		c, err := gemini.NewClient(getter, cfg.ParamPrefix, gemini.WithModel(cfg.GeminiModel))
		if err != nil {
			return nil, nil, fmt.Errorf("app: gemini client: %w", err)
		}
		return c, nil, nil
	default:
		c, err := openai.NewClient(getter, cfg.ParamPrefix, openai.WithModel(cfg.OpenAIModel))
		if err != nil {
			return nil, nil, fmt.Errorf("app: openai client: %w", err)
		}
		if !cfg.ModerationEnabled {
			return c, nil, nil
		}
		return c, c, nil
	}
}

// buildAdapters creates the sources listed in cfg.Sources, in priority
// order. The returned closers are valid even when err is non-nil.
func buildAdapters(ctx context.Context, cfg Config, getter paramstore.Getter) ([]search.Adapter, []func(), error) {
	var (
		adapters []search.Adapter
		closers  []func()
	)
	for _, name := range cfg.Sources {
		switch name {
		case SourceUSAJobs:
			c, err := usajobs.NewClient(getter, cfg.USAJobsTokenParam, cfg.USAJobsEmail)
			if err != nil {
				return nil, closers, fmt.Errorf("app: usajobs source: %w", err)
			}
			adapters = append(adapters, c)
		case SourceCraigslist:
			adapters = append(adapters, craigslist.NewScraper(
				craigslist.WithDefaultSite(cfg.CraigslistDefaultSite),
				craigslist.WithRequestTimeout(cfg.AdapterTimeout),
			))
		case SourceBoard:
			pool, err := board.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, closers, fmt.Errorf("app: board source: %w", err)
			}
			closers = append(closers, pool.Close)
			src, err := board.NewSource(pool)
			if err != nil {
				return nil, closers, fmt.Errorf("app: board source: %w", err)
			}
			adapters = append(adapters, src)
		default:
			return nil, closers, fmt.Errorf("app: unknown source %q", name)
		}
	}
	return adapters, closers, nil
}
