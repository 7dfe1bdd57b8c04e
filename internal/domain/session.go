package domain

import "time"

// State is the slot-filling state of a conversation.
//
//	COLLECTING ──► AWAITING_FIELD_ANSWER ──► COLLECTING
//	    │                                        │
//	    └──────────────► READY ◄─────────────────┘
//
// Any state may move to TERMINATED on reset. TERMINATED is final.
type State string

const (
	StateCollecting     State = "COLLECTING"
	StateAwaitingAnswer State = "AWAITING_FIELD_ANSWER"
	StateReady          State = "READY"
	StateTerminated     State = "TERMINATED"
)

var validTransitions = map[State][]State{
	StateCollecting:     {StateCollecting, StateAwaitingAnswer, StateReady, StateTerminated},
	StateAwaitingAnswer: {StateAwaitingAnswer, StateCollecting, StateReady, StateTerminated},
	StateReady:          {StateReady, StateCollecting, StateAwaitingAnswer, StateTerminated},
}

// CanTransition reports whether moving from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const (
	TurnUser = "user"
	TurnBot  = "bot"
)

// Turn is one exchanged message.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the server-side state of one conversation.
type Session struct {
	ConversationID string    `json:"conversation_id"`
	State          State     `json:"state"`
	Turns          []Turn    `json:"turns"`
	PendingField   Field     `json:"pending_field,omitempty"`
	Transcript     string    `json:"transcript"`
	Intent         *Intent   `json:"intent,omitempty"`
	MissingFields  []Field   `json:"missing_fields"`
	AskedFields    []Field   `json:"asked_fields"`
	RoleAttempts   int       `json:"role_attempts"`
	Version        int64     `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewSession(conversationID string, now time.Time) Session {
	return Session{
		ConversationID: conversationID,
		State:          StateCollecting,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored value.
func (s Session) Clone() Session {
	out := s
	out.Turns = append([]Turn(nil), s.Turns...)
	out.MissingFields = append([]Field(nil), s.MissingFields...)
	out.AskedFields = append([]Field(nil), s.AskedFields...)
	if s.Intent != nil {
		in := s.Intent.Clone()
		out.Intent = &in
	}
	return out
}

func (s Session) Asked(f Field) bool {
	for _, a := range s.AskedFields {
		if a == f {
			return true
		}
	}
	return false
}

// Tombstone is the record a reset leaves behind.
func Tombstone(conversationID string, now time.Time) Session {
	return Session{
		ConversationID: conversationID,
		State:          StateTerminated,
		UpdatedAt:      now,
	}
}
