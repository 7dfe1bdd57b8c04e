// Package app reads start-up configuration and wires the agent together.
package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendMemory   = "memory"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	SourceUSAJobs    = "usajobs"
	SourceCraigslist = "craigslist"
	SourceBoard      = "board"
)

// Config is read once at start-up. Nothing else reads the environment.
type Config struct {
	SessionBackend string
	StateTable     string
	RedisURL       string
	ParamPrefix    string

	LLMProvider       string
	OpenAIModel       string
	GeminiModel       string
	ModerationEnabled bool
	ExtractionTimeout time.Duration

	Sources               []string
	AdapterTimeout        time.Duration
	SearchCacheTTL        time.Duration
	USAJobsEmail          string
	USAJobsTokenParam     string
	CraigslistDefaultSite string
	DatabaseURL           string

	MaxMessageLength int
	MaxIntentInput   int
	MaxRoleAttempts  int

	HTTPPort string
}

// LoadConfig builds a Config from getenv, usually os.Getenv.
func LoadConfig(getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		SessionBackend: strings.ToLower(env("SESSION_BACKEND", BackendDynamoDB)),
		StateTable:     env("STATE_TABLE", ""),
		RedisURL:       env("REDIS_URL", ""),
		ParamPrefix:    strings.TrimRight(env("PARAM_PREFIX", ""), "/"),

		LLMProvider:       strings.ToLower(env("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIModel:       env("OPENAI_MODEL", ""),
		GeminiModel:       env("GEMINI_MODEL", ""),
		ModerationEnabled: envBool(env("MODERATION_ENABLED", ""), true),
		ExtractionTimeout: envSeconds(env("EXTRACTION_TIMEOUT_SECONDS", ""), 15),

		Sources:               splitList(env("SOURCES", SourceUSAJobs+","+SourceCraigslist)),
		AdapterTimeout:        envSeconds(env("ADAPTER_TIMEOUT_SECONDS", ""), 8),
		SearchCacheTTL:        envSeconds(env("SEARCH_CACHE_TTL_SECONDS", ""), 600),
		USAJobsEmail:          env("USAJOBS_EMAIL", ""),
		CraigslistDefaultSite: env("CRAIGSLIST_DEFAULT_SITE", "boston"),
		DatabaseURL:           env("DATABASE_URL", ""),

		MaxMessageLength: envInt(env("MAX_MESSAGE_LENGTH", ""), 1000),
		MaxIntentInput:   envInt(env("MAX_INTENT_INPUT_LENGTH", ""), 4000),
		MaxRoleAttempts:  envInt(env("MAX_ROLE_ATTEMPTS", ""), 3),

		HTTPPort: env("HTTP_PORT", "8080"),
	}
	cfg.USAJobsTokenParam = env("USAJOBS_TOKEN_PARAM", cfg.ParamPrefix+"/usajobs-token")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.ParamPrefix == "" {
		errs = append(errs, errors.New("PARAM_PREFIX is required"))
	}

	switch c.SessionBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb session backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis session backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend))
	}

	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}

	seen := map[string]bool{}
	for _, s := range c.Sources {
		if seen[s] {
			errs = append(errs, fmt.Errorf("source %q listed twice in SOURCES", s))
		}
		seen[s] = true
		switch s {
		case SourceUSAJobs:
			if c.USAJobsEmail == "" {
				errs = append(errs, errors.New("USAJOBS_EMAIL is required for the usajobs source"))
			}
		case SourceBoard:
			if c.DatabaseURL == "" {
				errs = append(errs, errors.New("DATABASE_URL is required for the board source"))
			}
		case SourceCraigslist:
		default:
			errs = append(errs, fmt.Errorf("unknown source %q in SOURCES", s))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	return nil
}

// splitList splits a comma-separated value. "none" yields an empty list.
func splitList(v string) []string {
	if strings.EqualFold(v, "none") {
		return []string{}
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSeconds(v string, def int) time.Duration {
	return time.Duration(envInt(v, def)) * time.Second
}

func envBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
