package signals

import "time"

// MemoryKind classifies a memory candidate.
type MemoryKind string

const (
	MemoryPersonalFact MemoryKind = "PERSONAL_FACT"
	MemoryPreference   MemoryKind = "PREFERENCE"
	MemoryGoal         MemoryKind = "GOAL"
	MemoryEvent        MemoryKind = "EVENT"
	MemoryRelationship MemoryKind = "RELATIONSHIP"
)

// TriggerKind classifies what set off an emotional reaction.
type TriggerKind string

const (
	TriggerPerson    TriggerKind = "PERSON"
	TriggerEvent     TriggerKind = "EVENT"
	TriggerPlace     TriggerKind = "PLACE"
	TriggerSituation TriggerKind = "SITUATION"
)

// Polarity is the direction of a trigger's effect.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// EmotionSignal is the emotional reading of one analysed message. Signals
// are append-only.
type EmotionSignal struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CompanyID      string    `json:"company_id"`
	DepartmentID   string    `json:"department_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	PrimaryEmotion string    `json:"primary_emotion"`
	Intensity      int       `json:"intensity"`
	StressLevel    int       `json:"stress_level"`
	RiskLevel      int       `json:"risk_level"`
	RiskReason     string    `json:"risk_reason,omitempty"`
	Triggers       []string  `json:"triggers"`
	ContextSummary string    `json:"context_summary"`
}

// IsZero reports whether no emotion was extracted.
func (s EmotionSignal) IsZero() bool {
	return s.PrimaryEmotion == "" && s.Intensity == 0 && s.StressLevel == 0 &&
		s.RiskLevel == 0 && len(s.Triggers) == 0 && s.ContextSummary == ""
}

// MemoryCandidate is a fact about the user worth remembering. Deduplication
// happens downstream.
type MemoryCandidate struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      MemoryKind `json:"kind"`
	Content   string     `json:"content"`
	Relevance int        `json:"relevance"`
	Tags      []string   `json:"tags"`
}

// TriggerCandidate is a person, event, place or situation tied to an emotion.
type TriggerCandidate struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Kind              TriggerKind `json:"kind"`
	Description       string      `json:"description"`
	Impact            int         `json:"impact"`
	AssociatedEmotion string      `json:"associated_emotion"`
	Context           string      `json:"context"`
	Polarity          Polarity    `json:"polarity"`
}

// Turn is one user message with the scope it belongs to. Scope ids are
// always passed explicitly.
type Turn struct {
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name,omitempty"`
	TrustedEmail   string    `json:"trusted_email,omitempty"`
	CompanyID      string    `json:"company_id"`
	DepartmentID   string    `json:"department_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Message        string    `json:"message"`
	PriorReply     string    `json:"prior_reply,omitempty"`
	At             time.Time `json:"at"`
}
