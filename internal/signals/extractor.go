package signals

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/db"
	"github.com/ziadkadry99/pulse/internal/llm"
	"github.com/ziadkadry99/pulse/internal/logging"
)

// Model is the part of llm.Client the extractor needs.
type Model interface {
	Extract(ctx context.Context, req llm.ExtractionRequest) llm.ExtractionResult
	Converse(ctx context.Context, task llm.TaskKind, history []llm.Message) llm.ExtractionResult
}

// Extractor renders prompt templates, calls the model and parses the
// results. Its methods never fail: call and parse failures both degrade to
// the task's empty result.
type Extractor struct {
	model  Model
	logger *zap.Logger
	now    func() time.Time
}

// NewExtractor creates an Extractor on top of model.
func NewExtractor(model Model, logger *zap.Logger) *Extractor {
	return &Extractor{model: model, logger: logging.OrNop(logger).Named("signals"), now: time.Now}
}

// GenerateReply answers the latest user turn in history.
func (e *Extractor) GenerateReply(ctx context.Context, history []llm.Message) string {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: replySystemPrompt})
	msgs = append(msgs, history...)
	return e.model.Converse(ctx, llm.TaskGenerateReply, msgs).Text
}

// ExtractMemories returns the memory candidates found in message. reply is
// the assistant's previous answer, used as context.
func (e *Extractor) ExtractMemories(ctx context.Context, message, reply string) []MemoryCandidate {
	res := e.model.Extract(ctx, llm.ExtractionRequest{
		SubjectText: memoryPrompt(message),
		Context:     priorReplyContext(reply),
		Task:        llm.TaskExtractMemories,
	})
	memories, err := ParseMemories(res.Text)
	e.logParse(llm.TaskExtractMemories, err)
	return memories
}

// ExtractEmotion returns the emotional reading of message and its triggers.
func (e *Extractor) ExtractEmotion(ctx context.Context, message string) (EmotionSignal, []TriggerCandidate) {
	res := e.model.Extract(ctx, llm.ExtractionRequest{SubjectText: emotionPrompt(message), Task: llm.TaskExtractEmotion})
	sig, triggers, err := ParseEmotion(res.Text)
	e.logParse(llm.TaskExtractEmotion, err)
	return sig, triggers
}

// ExtractEmotionAndMemories does both extractions in one model call.
func (e *Extractor) ExtractEmotionAndMemories(ctx context.Context, message, reply string) (EmotionSignal, []TriggerCandidate, []MemoryCandidate) {
	res := e.model.Extract(ctx, llm.ExtractionRequest{
		SubjectText: combinedPrompt(message),
		Context:     priorReplyContext(reply),
		Task:        llm.TaskExtractEmotionAndMemories,
	})
	sig, triggers, memories, err := ParseCombined(res.Text)
	e.logParse(llm.TaskExtractEmotionAndMemories, err)
	return sig, triggers, memories
}

// GenerateProactiveQuestion writes a conversation opener from a stored memory.
func (e *Extractor) GenerateProactiveQuestion(ctx context.Context, memoryContent string, kind MemoryKind) string {
	return e.model.Extract(ctx, llm.ExtractionRequest{
		SubjectText: proactivePrompt(memoryContent, kind),
		Task:        llm.TaskGenerateProactiveQuestion,
	}).Text
}

// GenerateInsights writes narrative insights for a report from a metrics summary.
func (e *Extractor) GenerateInsights(ctx context.Context, summary string) string {
	return e.model.Extract(ctx, llm.ExtractionRequest{SubjectText: insightsPrompt(summary), Task: llm.TaskGenerateNarrative}).Text
}

// GenerateRecommendations writes recommendations for a report from a metrics summary.
func (e *Extractor) GenerateRecommendations(ctx context.Context, summary string) string {
	return e.model.Extract(ctx, llm.ExtractionRequest{SubjectText: recommendationsPrompt(summary), Task: llm.TaskGenerateNarrative}).Text
}

// ExtractSignals analyses one turn and returns its signals stamped with the
// turn's user and scope. A turn with no emotional content still yields a
// signal so activity is counted.
func (e *Extractor) ExtractSignals(ctx context.Context, turn Turn) (EmotionSignal, []MemoryCandidate, []TriggerCandidate) {
	sig, triggers, memories := e.ExtractEmotionAndMemories(ctx, turn.Message, turn.PriorReply)

	at := turn.At
	if at.IsZero() {
		at = e.now()
	}
	sig.ID = db.NewID()
	sig.UserID = turn.UserID
	sig.CompanyID = turn.CompanyID
	sig.DepartmentID = turn.DepartmentID
	sig.ConversationID = turn.ConversationID
	sig.Timestamp = at

	for i := range memories {
		memories[i].ID = db.NewID()
		memories[i].UserID = turn.UserID
	}
	for i := range triggers {
		triggers[i].ID = db.NewID()
		triggers[i].UserID = turn.UserID
	}
	return sig, memories, triggers
}

func (e *Extractor) logParse(task llm.TaskKind, err error) {
	if err != nil {
		e.logger.Debug("unparseable model output, using empty result",
			zap.String("task", string(task)),
			zap.String("error", llm.Redact(err.Error())),
		)
	}
}

type transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) llm.ExtractionResult
}

// Transcribe turns a voice message into text. It returns "" when the model
// cannot transcribe or the call fails.
func (e *Extractor) Transcribe(ctx context.Context, audio []byte, mimeType string) string {
	t, ok := e.model.(transcriber)
	if !ok {
		return ""
	}
	return t.Transcribe(ctx, audio, mimeType).Text
}
