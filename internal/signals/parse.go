package signals

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ziadkadry99/pulse/internal/llm"
)

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return strings.Trim(raw, "`")
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}

// decode unmarshals raw into v. When raw is not valid for the task, the
// task's fallback skeleton is decoded instead and the original error is
// returned for logging only.
func decode(raw string, task llm.TaskKind, v any) error {
	err := json.Unmarshal([]byte(stripFences(raw)), v)
	if err == nil {
		return nil
	}
	if ferr := json.Unmarshal([]byte(llm.Fallback(task)), v); ferr != nil {
		return fmt.Errorf("fallback skeleton for %s: %w", task, ferr)
	}
	return fmt.Errorf("json parse: %w", err)
}

// ParseMemories parses a memory extraction response. Unusable input
// yields zero candidates.
func ParseMemories(raw string) ([]MemoryCandidate, error) {
	var p memoriesPayload
	err := decode(raw, llm.TaskExtractMemories, &p)
	if err != nil {
		p = memoriesPayload{}
	}
	return memoriesFrom(p.Memorias), err
}

// ParseEmotion parses an emotion extraction response. Unusable input
// yields a zero signal and no triggers.
func ParseEmotion(raw string) (EmotionSignal, []TriggerCandidate, error) {
	var p emotionPayload
	err := decode(raw, llm.TaskExtractEmotion, &p)
	if err != nil {
		p = emotionPayload{}
	}
	sig, triggers := emotionFrom(&p)
	return sig, triggers, err
}

// ParseCombined parses a combined emotion and memory response.
func ParseCombined(raw string) (EmotionSignal, []TriggerCandidate, []MemoryCandidate, error) {
	var p combinedPayload
	err := decode(raw, llm.TaskExtractEmotionAndMemories, &p)
	if err != nil {
		p = combinedPayload{}
	}
	sig, triggers := emotionFrom(p.Emocao)
	return sig, triggers, memoriesFrom(p.Memorias), err
}

func emotionFrom(p *emotionPayload) (EmotionSignal, []TriggerCandidate) {
	if p == nil {
		return EmotionSignal{}, nil
	}
	sig := EmotionSignal{
		PrimaryEmotion: strings.ToLower(strings.TrimSpace(p.EmocaoPrimaria)),
		Intensity:      round(p.Intensidade),
		StressLevel:    round(p.NivelEstresse),
		RiskLevel:      round(p.NivelRisco),
		RiskReason:     strings.TrimSpace(p.MotivoRisco),
		ContextSummary: strings.TrimSpace(p.ResumoContexto),
	}

	var triggers []TriggerCandidate
	for _, g := range p.Gatilhos {
		desc := strings.TrimSpace(g.Descricao)
		if desc == "" {
			continue
		}
		sig.Triggers = append(sig.Triggers, desc)
		triggers = append(triggers, TriggerCandidate{
			Kind:              triggerKind(g.Tipo),
			Description:       desc,
			Impact:            round(g.Impacto),
			AssociatedEmotion: strings.ToLower(strings.TrimSpace(g.EmocaoAssociada)),
			Context:           strings.TrimSpace(g.Contexto),
			Polarity:          polarity(g.Polaridade),
		})
	}
	return sig, triggers
}

func memoriesFrom(ps []memoryPayload) []MemoryCandidate {
	var out []MemoryCandidate
	for _, m := range ps {
		content := strings.TrimSpace(m.Conteudo)
		if content == "" {
			continue
		}
		out = append(out, MemoryCandidate{
			Kind:      memoryKind(m.Tipo),
			Content:   content,
			Relevance: round(m.Relevancia),
			Tags:      dedupeTags(m.Tags),
		})
	}
	return out
}

// round converts a model-supplied score to an int. Out-of-range values are
// kept as returned.
func round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

var memoryKinds = map[string]MemoryKind{
	"FATO_PESSOAL":   MemoryPersonalFact,
	"PERSONAL_FACT":  MemoryPersonalFact,
	"PREFERENCIA":    MemoryPreference,
	"PREFERÊNCIA":    MemoryPreference,
	"PREFERENCE":     MemoryPreference,
	"OBJETIVO":       MemoryGoal,
	"META":           MemoryGoal,
	"GOAL":           MemoryGoal,
	"EVENTO":         MemoryEvent,
	"EVENT":          MemoryEvent,
	"RELACIONAMENTO": MemoryRelationship,
	"RELATIONSHIP":   MemoryRelationship,
}

func memoryKind(s string) MemoryKind {
	if k, ok := memoryKinds[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return k
	}
	return MemoryPersonalFact
}

var triggerKinds = map[string]TriggerKind{
	"PESSOA":    TriggerPerson,
	"PERSON":    TriggerPerson,
	"EVENTO":    TriggerEvent,
	"EVENT":     TriggerEvent,
	"LUGAR":     TriggerPlace,
	"PLACE":     TriggerPlace,
	"SITUACAO":  TriggerSituation,
	"SITUAÇÃO":  TriggerSituation,
	"SITUATION": TriggerSituation,
}

func triggerKind(s string) TriggerKind {
	if k, ok := triggerKinds[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return k
	}
	return TriggerSituation
}

func polarity(s string) Polarity {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "neg") {
		return PolarityNegative
	}
	return PolarityPositive
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
