package signals

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/alerts"
	"github.com/ziadkadry99/pulse/internal/logging"
)

// ErrNoMemories is returned when a user has nothing stored to start a
// conversation from.
var ErrNoMemories = errors.New("user has no memories")

// AlertDispatcher receives risk alerts raised while ingesting turns.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert alerts.RiskAlert) error
}

// IngestResult is what Process extracted and stored for one turn.
type IngestResult struct {
	Signal   EmotionSignal      `json:"signal"`
	Memories []MemoryCandidate  `json:"memories"`
	Triggers []TriggerCandidate `json:"triggers"`
	Alerted  bool               `json:"alerted"`
}

// Ingestor runs extraction for incoming turns, stores the signals and
// raises a risk alert when the risk level reaches the threshold.
type Ingestor struct {
	extractor *Extractor
	store     *Store
	alerts    AlertDispatcher
	threshold int
	logger    *zap.Logger
}

// NewIngestor creates an Ingestor. A nil dispatcher disables alerts.
func NewIngestor(extractor *Extractor, store *Store, dispatcher AlertDispatcher, threshold int, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		store:     store,
		alerts:    dispatcher,
		threshold: threshold,
		logger:    logging.OrNop(logger).Named("ingest"),
	}
}

// Process extracts and stores the signals of one turn. Only storage errors
// are returned; alert delivery problems are logged.
func (i *Ingestor) Process(ctx context.Context, turn Turn) (*IngestResult, error) {
	if turn.UserID == "" || turn.CompanyID == "" {
		return nil, fmt.Errorf("turn requires user and company ids")
	}

	sig, memories, triggers := i.extractor.ExtractSignals(ctx, turn)

	if err := i.store.SaveEmotion(ctx, &sig); err != nil {
		return nil, err
	}
	if err := i.store.SaveMemories(ctx, memories); err != nil {
		return nil, err
	}
	if err := i.store.SaveTriggers(ctx, triggers); err != nil {
		return nil, err
	}

	res := &IngestResult{Signal: sig, Memories: memories, Triggers: triggers}

	if i.alerts != nil && sig.RiskLevel >= i.threshold && i.threshold > 0 {
		alert := alerts.RiskAlert{
			UserID:         turn.UserID,
			UserName:       turn.UserName,
			TrustedEmail:   turn.TrustedEmail,
			MessageExcerpt: turn.Message,
			RiskLevel:      sig.RiskLevel,
			Reason:         sig.RiskReason,
			Context:        sig.ContextSummary,
		}
		if err := i.alerts.Dispatch(ctx, alert); err != nil {
			i.logger.Error("dispatching risk alert", zap.String("user_id", turn.UserID), zap.Error(err))
		} else {
			res.Alerted = true
		}
	}

	i.logger.Debug("turn ingested",
		zap.String("company_id", turn.CompanyID),
		zap.String("department_id", turn.DepartmentID),
		zap.String("emotion", sig.PrimaryEmotion),
		zap.Int("memories", len(memories)),
		zap.Int("triggers", len(triggers)),
	)
	return res, nil
}

// ProcessAudio transcribes a voice message and processes it as a turn.
// An empty transcript stores nothing.
func (i *Ingestor) ProcessAudio(ctx context.Context, turn Turn, audio []byte, mimeType string) (*IngestResult, error) {
	text := i.extractor.Transcribe(ctx, audio, mimeType)
	if text == "" {
		i.logger.Warn("empty transcript, turn skipped", zap.String("user_id", turn.UserID))
		return &IngestResult{}, nil
	}
	turn.Message = text
	return i.Process(ctx, turn)
}

// ProactiveQuestion is a conversation opener built from one stored memory.
type ProactiveQuestion struct {
	UserID   string          `json:"user_id"`
	Question string          `json:"question"`
	Memory   MemoryCandidate `json:"memory"`
}

// ProactiveQuestion writes an opener for userID from their most relevant
// memory. A failed model call yields the apology text, not an error.
func (i *Ingestor) ProactiveQuestion(ctx context.Context, userID string) (*ProactiveQuestion, error) {
	memories, err := i.store.MemoriesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, ErrNoMemories
	}
	m := memories[0]
	return &ProactiveQuestion{
		UserID:   userID,
		Question: i.extractor.GenerateProactiveQuestion(ctx, m.Content, m.Kind),
		Memory:   m,
	}, nil
}
