package llm

import "time"

// Fallback sentinels. Each one is a valid, harmless output for its task.
const (
	ApologyText     = "Desculpe, estou com dificuldade para responder agora. Podemos tentar de novo em instantes?"
	EmptyMemories   = `{"memorias":[]}`
	EmptyJSONObject = `{}`
)

// Fallback returns the sentinel text for a task.
func Fallback(task TaskKind) string {
	switch task {
	case TaskExtractMemories:
		return EmptyMemories
	case TaskExtractEmotion, TaskExtractEmotionAndMemories:
		return EmptyJSONObject
	case TaskTranscribe:
		return ""
	default:
		return ApologyText
	}
}

// timeoutFactor scales the base timeout: combined extraction gets twice the
// budget and transcription three times.
func timeoutFactor(task TaskKind) time.Duration {
	switch task {
	case TaskExtractEmotionAndMemories:
		return 2
	case TaskTranscribe:
		return 3
	default:
		return 1
	}
}

func maxTokensFor(task TaskKind) int {
	switch task {
	case TaskGenerateReply, TaskGenerateProactiveQuestion:
		return 512
	case TaskGenerateNarrative:
		return 1500
	default:
		return 1024
	}
}
