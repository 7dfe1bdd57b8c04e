// Package intent turns accumulated free text into a structured domain.Intent
// using an external structured-extraction service.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/validation"
)

const defaultTimeout = 15 * time.Second

// ErrExtractionServiceUnavailable is returned when the service fails, times
// out, or answers with something that is not a JSON object.
var ErrExtractionServiceUnavailable = errors.New("intent: extraction service unavailable")

// Service is the structured-output capability the extractor depends on.
type Service interface {
	ExtractStructured(ctx context.Context, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error)
}

// Result is the outcome of one extraction. Role absence is not listed in
// MissingFields; callers check Intent.Role.
type Result struct {
	Intent        domain.Intent
	MissingFields []domain.Field
	Raw           string
}

type Extractor struct {
	svc     Service
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Extractor)

func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewExtractor(svc Service, opts ...Option) (*Extractor, error) {
	if svc == nil {
		return nil, errors.New("intent: service must not be nil")
	}
	e := &Extractor{svc: svc, timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract runs the service over text and post-processes its answer.
// Identical text yields an identical Result for a deterministic service.
func (e *Extractor) Extract(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{MissingFields: domain.Intent{}.MissingFields()}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.svc.ExtractStructured(callCtx, buildMessages(text), Schema())
	if err != nil {
		e.logger.Warn("intent extraction failed", "err", err, "elapsed", time.Since(start))
		return Result{}, fmt.Errorf("%w: %w", ErrExtractionServiceUnavailable, err)
	}

	parsed, err := decodeIntent(raw)
	if err != nil {
		e.logger.Warn("intent extraction returned malformed output", "err", err)
		return Result{}, fmt.Errorf("%w: %w", ErrExtractionServiceUnavailable, err)
	}

	in := postProcess(parsed, text)
	return Result{
		Intent:        in,
		MissingFields: in.MissingFields(),
		Raw:           raw,
	}, nil
}

// rawIntent is the lenient decode target: any field may be absent, null, or
// of an unexpected type.
type rawIntent struct {
	Role             json.RawMessage `json:"role"`
	Location         json.RawMessage `json:"location"`
	WorkType         json.RawMessage `json:"work_type"`
	Seniority        json.RawMessage `json:"seniority"`
	SalaryMin        json.RawMessage `json:"salary_min"`
	RemotePreference json.RawMessage `json:"remote_preference"`
	Notes            json.RawMessage `json:"notes"`
}

func decodeIntent(raw string) (rawIntent, error) {
	obj := extractJSONObject(raw)
	if obj == "" {
		return rawIntent{}, errors.New("intent: no JSON object in service output")
	}
	var out rawIntent
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return rawIntent{}, fmt.Errorf("intent: decode service output: %w", err)
	}
	return out, nil
}

// extractJSONObject returns the outermost {...} span of s, tolerating code
// fences and surrounding prose.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// stringValue reads a JSON string or number. Anything else is absent.
func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return cleanValue(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

var placeholders = map[string]bool{
	"none": true, "none given": true, "n/a": true, "na": true, "null": true, "nil": true,
	"unknown": true, "not specified": true, "unspecified": true, "not provided": true, "-": true,
	"skip": true, "pass": true, "any": true, "whatever": true, "no preference": true,
	"not sure": true, "no idea": true, "idk": true, "don't know": true, "dont know": true,
	"i don't know": true, "i dont know": true,
}

func cleanValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if placeholders[strings.ToLower(strings.TrimRight(s, "."))] {
		return ""
	}
	return s
}

func salaryValue(raw json.RawMessage) *domain.Salary {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if s := stringValue(raw); s != "" {
		res := validation.Validate(domain.FieldSalaryMin, s)
		if !res.Accepted {
			return nil
		}
		return &domain.Salary{Amount: res.Amount, Currency: res.Currency}
	}
	var sal domain.Salary
	if err := json.Unmarshal(raw, &sal); err != nil || sal.Amount <= 0 {
		return nil
	}
	sal.Currency = strings.ToUpper(strings.TrimSpace(sal.Currency))
	if sal.Currency == "" {
		sal.Currency = domain.DefaultCurrency
	}
	return &sal
}

func postProcess(r rawIntent, text string) domain.Intent {
	in := domain.Intent{
		Role:             stringValue(r.Role),
		Location:         stringValue(r.Location),
		WorkType:         stringValue(r.WorkType),
		Seniority:        stringValue(r.Seniority),
		SalaryMin:        salaryValue(r.SalaryMin),
		RemotePreference: stringValue(r.RemotePreference),
		Notes:            stringValue(r.Notes),
	}
	normalizeEnums(&in)

	fillFromAnswers(&in, text)
	if !in.HasOptional() {
		fillFromHeuristics(&in, text)
	}
	return in
}

// normalizeEnums maps enum fields through the validator and drops values it
// does not recognize.
func normalizeEnums(in *domain.Intent) {
	for _, f := range []domain.Field{domain.FieldWorkType, domain.FieldSeniority, domain.FieldRemotePreference} {
		v := in.Value(f)
		if v == "" {
			continue
		}
		res := validation.Validate(f, v)
		if res.Accepted {
			in.Set(f, res.Normalized)
		} else {
			in.Set(f, "")
		}
	}
}
