package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/intent"
)

const defaultMaxIntentInput = 4000

type IntentExtractor interface {
	Extract(ctx context.Context, text string) (intent.Result, error)
}

// IntentService is the one-shot extraction behind /intent.
type IntentService struct {
	extractor IntentExtractor
	maxLen    int
}

type IntentInput struct {
	UserResponses string
}

type IntentOutput struct {
	Intent        domain.Intent
	Raw           string
	MissingFields []domain.Field
}

func NewIntentService(e IntentExtractor, maxInputLen int) (*IntentService, error) {
	if e == nil {
		return nil, errors.New("usecase: intent extractor must not be nil")
	}
	if maxInputLen <= 0 {
		maxInputLen = defaultMaxIntentInput
	}
	return &IntentService{extractor: e, maxLen: maxInputLen}, nil
}

func (s *IntentService) Extract(ctx context.Context, in IntentInput) (IntentOutput, error) {
	text := strings.TrimSpace(in.UserResponses)
	if text == "" {
		return IntentOutput{}, newError(ErrorInvalidInput, "empty_user_responses", nil)
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return IntentOutput{}, newError(ErrorInvalidInput, "user_responses_too_long", nil)
	}

	res, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return IntentOutput{}, upstreamError("extraction", err)
	}
	return IntentOutput{
		Intent:        res.Intent,
		Raw:           res.Raw,
		MissingFields: res.MissingFields,
	}, nil
}
