package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/intent"
)

type statusError struct{ code int }

func (e statusError) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusError) HTTPStatusCode() int { return e.code }

func TestNewIntentService_RequiresExtractor(t *testing.T) {
	_, err := NewIntentService(nil, 0)
	require.Error(t, err)

	s, err := NewIntentService(&fakeExtractor{}, 0)
	require.NoError(t, err)
	require.Equal(t, defaultMaxIntentInput, s.maxLen)
}

func TestIntentExtract(t *testing.T) {
	svc := &stubService{reply: fixedReply(`{"role":"barista","location":"Somerville","work_type":null,"seniority":null,"salary_min":null,"remote_preference":null,"notes":null}`)}
	s, err := NewIntentService(realExtractor(t, svc), 0)
	require.NoError(t, err)

	out, err := s.Extract(context.Background(), IntentInput{UserResponses: "  barista in Somerville  "})
	require.NoError(t, err)
	require.Equal(t, "barista", out.Intent.Role)
	require.Equal(t, "Somerville", out.Intent.Location)
	require.Equal(t, []domain.Field{domain.FieldWorkType, domain.FieldSeniority, domain.FieldSalaryMin}, out.MissingFields)
	require.Contains(t, out.Raw, `"barista"`)
}

func TestIntentExtract_InvalidInput(t *testing.T) {
	s, err := NewIntentService(&fakeExtractor{}, 10)
	require.NoError(t, err)

	_, err = s.Extract(context.Background(), IntentInput{UserResponses: " \n "})
	expectError(t, err, ErrorInvalidInput, "empty_user_responses")

	_, err = s.Extract(context.Background(), IntentInput{UserResponses: strings.Repeat("é", 11)})
	expectError(t, err, ErrorInvalidInput, "user_responses_too_long")
}

func TestIntentExtract_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   ErrorCode
		reason string
	}{
		{
			name:   "rate limited",
			err:    fmt.Errorf("%w: %w", intent.ErrExtractionServiceUnavailable, statusError{code: 429}),
			code:   ErrorRateLimited,
			reason: "extraction_rate_limited",
		},
		{
			name:   "server error",
			err:    fmt.Errorf("%w: %w", intent.ErrExtractionServiceUnavailable, statusError{code: 500}),
			code:   ErrorUpstream,
			reason: "extraction_error",
		},
		{
			name:   "timeout",
			err:    fmt.Errorf("%w: %w", intent.ErrExtractionServiceUnavailable, context.DeadlineExceeded),
			code:   ErrorUpstream,
			reason: "extraction_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewIntentService(&fakeExtractor{errs: []error{tt.err}}, 0)
			require.NoError(t, err)
			_, err = s.Extract(context.Background(), IntentInput{UserResponses: "nurse"})
			expectError(t, err, tt.code, tt.reason)
			require.True(t, errors.Is(err, intent.ErrExtractionServiceUnavailable))
		})
	}
}
