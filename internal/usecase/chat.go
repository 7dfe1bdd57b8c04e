package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/repository"
	"jobboard-agent/internal/validation"
)

const (
	defaultMaxMessageLen   = 1000
	defaultMaxRoleAttempts = 3
	maxSessionTurns        = 50
)

// SessionStore persists whole sessions. Put is a compare-and-swap on
// Session.Version and fails with repository.ErrVersionConflict when the
// stored version moved or the conversation was reset.
type SessionStore interface {
	Get(ctx context.Context, conversationID string) (domain.Session, bool, error)
	Put(ctx context.Context, s domain.Session, expectedVersion int64) error
	Clear(ctx context.Context, conversationID string) error
}

type Moderator interface {
	Moderate(ctx context.Context, input string) (bool, error)
}

type JobSearcher interface {
	Search(ctx context.Context, in domain.Intent) (domain.SearchResponse, error)
}

// ChatService runs the slot-filling conversation behind /run.
type ChatService struct {
	store           SessionStore
	extractor       IntentExtractor
	moderator       Moderator
	searcher        JobSearcher
	locks           *keyedMutex
	maxMessageLen   int
	maxRoleAttempts int
	now             func() time.Time
	newID           func() string
	logger          *slog.Logger
}

type ChatOption func(*ChatService)

func WithModerator(m Moderator) ChatOption {
	return func(s *ChatService) { s.moderator = m }
}

func WithSearcher(js JobSearcher) ChatOption {
	return func(s *ChatService) { s.searcher = js }
}

func WithMaxMessageLength(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func WithMaxRoleAttempts(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxRoleAttempts = n
		}
	}
}

func WithClock(now func() time.Time) ChatOption {
	return func(s *ChatService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithChatLogger(l *slog.Logger) ChatOption {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

type ChatInput struct {
	Message        string
	ConversationID string
}

type ChatOutput struct {
	Response       string
	ConversationID string
	CandidateInfo  domain.Intent
	MissingFields  []domain.Field
	State          domain.State
	PendingField   domain.Field
	Results        *domain.SearchResponse
}

type ResetOutput struct {
	Message string
}

func NewChatService(store SessionStore, extractor IntentExtractor, opts ...ChatOption) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if extractor == nil {
		return nil, errors.New("usecase: intent extractor must not be nil")
	}
	s := &ChatService{
		store:           store,
		extractor:       extractor,
		locks:           newKeyedMutex(),
		maxMessageLen:   defaultMaxMessageLen,
		maxRoleAttempts: defaultMaxRoleAttempts,
		now:             time.Now,
		newID:           uuid.NewString,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Chat processes one user turn. Turns for the same conversation are
// serialized; the session is persisted before the reply is returned.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	msg := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(msg) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = s.newID()
	}
	unlock := s.locks.Lock(convID)
	defer unlock()

	// The lock only covers this process. Another instance may win the
	// version check, in which case the turn is replayed once on its result.
	for attempt := 0; ; attempt++ {
		out, err := s.turn(ctx, convID, msg)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return out, err
		}

		latest, found, gerr := s.store.Get(ctx, out.ConversationID)
		if gerr != nil {
			return ChatOutput{}, newError(ErrorInternal, "session_load_error", gerr)
		}
		if found && latest.State == domain.StateTerminated {
			s.logger.Info("turn discarded after reset", "conversation_id", out.ConversationID)
			return ChatOutput{
				Response:       resetReply,
				ConversationID: out.ConversationID,
				State:          domain.StateTerminated,
				MissingFields:  []domain.Field{},
			}, nil
		}
		if attempt == 0 {
			s.logger.Info("concurrent write detected, replaying turn", "conversation_id", out.ConversationID)
			continue
		}
		s.logger.Warn("turn lost version race twice, asking user to retry", "conversation_id", out.ConversationID)
		if !found {
			latest = domain.NewSession(out.ConversationID, s.now())
		}
		return s.output(latest, retryPrompt, nil), nil
	}
}

// turn runs one read-modify-write against the store. On a version conflict
// it returns repository.ErrVersionConflict and the id it tried to write.
func (s *ChatService) turn(ctx context.Context, convID, msg string) (ChatOutput, error) {
	stored, found, err := s.store.Get(ctx, convID)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "session_load_error", err)
	}

	var (
		sess     domain.Session
		expected int64
	)
	switch {
	case !found:
		sess = domain.NewSession(convID, s.now())
	case stored.State == domain.StateTerminated:
		sess = domain.NewSession(s.newID(), s.now())
		s.logger.Info("terminated conversation replaced", "old_conversation_id", convID, "conversation_id", sess.ConversationID)
	default:
		sess = stored.Clone()
		expected = stored.Version
	}

	if msg != "" && s.moderator != nil {
		flagged, err := s.moderator.Moderate(ctx, msg)
		switch {
		case err != nil:
			s.logger.Warn("moderation failed, continuing", "conversation_id", sess.ConversationID, "err", err)
		case flagged:
			return s.output(sess, flaggedReply, nil), nil
		}
	}

	prevState := sess.State
	reply, results := s.step(ctx, &sess, msg)
	if !domain.CanTransition(prevState, sess.State) {
		return ChatOutput{}, newError(ErrorInternal, "invalid_transition", fmt.Errorf("%s -> %s", prevState, sess.State))
	}

	now := s.now()
	sess.Turns = append(sess.Turns,
		domain.Turn{Role: domain.TurnUser, Text: msg, At: now},
		domain.Turn{Role: domain.TurnBot, Text: reply, At: now},
	)
	if len(sess.Turns) > maxSessionTurns {
		sess.Turns = append([]domain.Turn(nil), sess.Turns[len(sess.Turns)-maxSessionTurns:]...)
	}
	sess.UpdatedAt = now
	sess.Version = expected + 1

	if err := s.store.Put(ctx, sess, expected); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ChatOutput{ConversationID: sess.ConversationID}, err
		}
		return ChatOutput{}, newError(ErrorInternal, "session_write_error", err)
	}

	s.logger.Info("chat turn completed",
		"conversation_id", sess.ConversationID,
		"from", prevState,
		"to", sess.State,
		"pending_field", sess.PendingField,
	)
	return s.output(sess, reply, results), nil
}

// step mutates sess for one message and returns the bot reply.
func (s *ChatService) step(ctx context.Context, sess *domain.Session, msg string) (string, *domain.SearchResponse) {
	if sess.State == domain.StateAwaitingAnswer && sess.PendingField != "" {
		field := sess.PendingField
		if field == domain.FieldRole && isNoAnswer(msg) {
			// not a role; counts as a miss without touching the transcript
			if sess.Intent == nil {
				sess.Intent = &domain.Intent{}
			}
			return s.advance(sess), nil
		}
		if field != domain.FieldRole && isSkip(msg) && sess.Intent != nil {
			sess.PendingField = ""
			sess.State = domain.StateCollecting
			return s.advance(sess), nil
		}
		res := validation.Validate(field, msg)
		if !res.Accepted {
			return clarification(field, res), nil
		}
		prev := sess.Clone()
		appendTranscript(sess, fmt.Sprintf("%s: %s", field, res.Normalized))
		sess.PendingField = ""
		sess.State = domain.StateCollecting
		return s.extractAndAdvance(ctx, sess, prev), nil
	}

	if msg == "" {
		if sess.Intent != nil && sess.State == domain.StateReady {
			return readySummary(*sess.Intent, s.searcher != nil), nil
		}
		return openingPrompt, nil
	}

	if sess.State == domain.StateReady && s.searcher != nil && isSearchTrigger(msg) && sess.Intent != nil {
		resp, err := s.searcher.Search(ctx, *sess.Intent)
		if err != nil {
			s.logger.Warn("search from chat failed", "conversation_id", sess.ConversationID, "err", err)
			return searchFailed, nil
		}
		return resultsSummary(resp), &resp
	}

	prev := sess.Clone()
	appendTranscript(sess, msg)
	return s.extractAndAdvance(ctx, sess, prev), nil
}

// extractAndAdvance re-runs extraction over the transcript and picks the
// next question. On failure sess is restored to prev.
func (s *ChatService) extractAndAdvance(ctx context.Context, sess *domain.Session, prev domain.Session) string {
	res, err := s.extractor.Extract(ctx, sess.Transcript)
	if err != nil {
		s.logger.Warn("extraction failed, keeping previous state", "conversation_id", sess.ConversationID, "err", err)
		*sess = prev
		return retryPrompt
	}

	in := res.Intent
	if prev.Intent != nil {
		// A field the user took back may be asked about again.
		for _, f := range domain.FollowUpPriority {
			if prev.Intent.Has(f) && !in.Has(f) {
				sess.AskedFields = removeField(sess.AskedFields, f)
			}
		}
	}
	sess.Intent = &in
	sess.MissingFields = append([]domain.Field{}, res.MissingFields...)
	return s.advance(sess)
}

// advance asks for the role, then the first unasked missing field, and
// otherwise marks the conversation READY.
func (s *ChatService) advance(sess *domain.Session) string {
	in := *sess.Intent
	if strings.TrimSpace(in.Role) == "" {
		sess.RoleAttempts++
		if sess.RoleAttempts > s.maxRoleAttempts {
			sess.State = domain.StateCollecting
			sess.PendingField = ""
			return giveUpReply
		}
		sess.State = domain.StateAwaitingAnswer
		sess.PendingField = domain.FieldRole
		return followUps[domain.FieldRole]
	}
	sess.RoleAttempts = 0

	for _, f := range sess.MissingFields {
		if !hasFollowUp(f) || sess.Asked(f) {
			continue
		}
		sess.State = domain.StateAwaitingAnswer
		sess.PendingField = f
		sess.AskedFields = append(sess.AskedFields, f)
		return followUps[f]
	}

	sess.State = domain.StateReady
	sess.PendingField = ""
	return readySummary(in, s.searcher != nil)
}

// Reset tombstones the conversation. It does not take the conversation lock,
// so an in-flight turn loses its compare-and-swap and is discarded.
func (s *ChatService) Reset(ctx context.Context, conversationID string) (ResetOutput, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return ResetOutput{}, newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	if err := s.store.Clear(ctx, id); err != nil {
		return ResetOutput{}, newError(ErrorInternal, "session_reset_error", err)
	}
	s.logger.Info("conversation reset", "conversation_id", id)
	return ResetOutput{Message: resetAck}, nil
}

func (s *ChatService) output(sess domain.Session, reply string, results *domain.SearchResponse) ChatOutput {
	out := ChatOutput{
		Response:       reply,
		ConversationID: sess.ConversationID,
		MissingFields:  append([]domain.Field{}, sess.MissingFields...),
		State:          sess.State,
		PendingField:   sess.PendingField,
		Results:        results,
	}
	if sess.Intent != nil {
		out.CandidateInfo = sess.Intent.Clone()
	}
	return out
}

func appendTranscript(sess *domain.Session, text string) {
	if sess.Transcript == "" {
		sess.Transcript = text
		return
	}
	sess.Transcript += "\n" + text
}

func removeField(fields []domain.Field, f domain.Field) []domain.Field {
	out := fields[:0:0]
	for _, x := range fields {
		if x != f {
			out = append(out, x)
		}
	}
	return out
}
