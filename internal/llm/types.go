package llm

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}

// TaskKind names what a model call is for. It selects the timeout budget,
// the output mode and the fallback sentinel.
type TaskKind string

const (
	TaskGenerateReply             TaskKind = "generate_reply"
	TaskExtractMemories           TaskKind = "extract_memories"
	TaskExtractEmotion            TaskKind = "extract_emotion"
	TaskExtractEmotionAndMemories TaskKind = "extract_emotion_and_memories"
	TaskGenerateProactiveQuestion TaskKind = "generate_proactive_question"
	TaskGenerateNarrative         TaskKind = "generate_narrative"
	TaskTranscribe                TaskKind = "transcribe"
)

// Structured reports whether the task expects a JSON document back.
func (t TaskKind) Structured() bool {
	switch t {
	case TaskExtractMemories, TaskExtractEmotion, TaskExtractEmotionAndMemories:
		return true
	default:
		return false
	}
}

// ExtractionRequest is one unit of work for the model: the text to analyse,
// optional context (for example the assistant's prior reply) and the task.
type ExtractionRequest struct {
	SubjectText string
	Context     string
	Task        TaskKind
}

// Prompt is the text sent to the model: the subject followed by the
// context, when there is one.
func (r ExtractionRequest) Prompt() string {
	if r.Context == "" {
		return r.SubjectText
	}
	return r.SubjectText + "\n\n" + r.Context
}

// ExtractionResult is what the Client hands back. Text is always usable for
// the task: either the provider's answer or the task's fallback sentinel.
type ExtractionResult struct {
	Text         string
	Task         TaskKind
	Succeeded    bool
	UsedFallback bool
}
