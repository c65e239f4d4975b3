package signals

import (
	"fmt"
	"strings"
)

const replySystemPrompt = `Você é a Pulse, uma assistente de bem-estar que conversa com colaboradores de empresas.
Responda em português, com empatia e em no máximo três frases curtas.
Nunca faça diagnósticos e nunca peça dados pessoais sensíveis.
Se a pessoa relatar risco à própria vida, incentive-a a procurar o CVV (188) ou alguém de confiança.`

const memoryPromptTemplate = `Extraia da mensagem do usuário as informações que valem ser lembradas em conversas futuras
(fatos pessoais, preferências, objetivos, eventos e relacionamentos).
Ignore saudações e conversa trivial. Se não houver nada relevante, devolva uma lista vazia.

Responda somente com um objeto JSON que siga este JSON Schema:
%s

Mensagem do usuário:
"""%s"""`

const emotionPromptTemplate = `Analise o estado emocional expresso na mensagem do usuário.
Identifique a emoção predominante, a intensidade, o nível de estresse, o nível de risco
e os gatilhos (pessoas, eventos, lugares ou situações) com a polaridade de cada um.

Responda somente com um objeto JSON que siga este JSON Schema:
%s

Mensagem do usuário:
"""%s"""`

const combinedPromptTemplate = `Faça duas análises da mensagem do usuário:
1. "emocao": o estado emocional (emoção predominante, intensidade, estresse, risco e gatilhos com polaridade).
2. "memorias": as informações que valem ser lembradas em conversas futuras.

Responda somente com um objeto JSON que siga este JSON Schema:
%s

Mensagem do usuário:
"""%s"""`

const proactivePromptTemplate = `Você é a Pulse, uma assistente de bem-estar.
Escreva uma única pergunta curta e acolhedora para retomar a conversa com o colaborador,
com base nesta lembrança (%s):
"""%s"""

Responda apenas com a pergunta.`

const insightsPromptTemplate = `Você é analista de clima organizacional. Com base nos indicadores agregados abaixo,
escreva de três a cinco insights objetivos em português, em tópicos.
Não cite pessoas e não invente números que não estejam nos dados.

Indicadores:
%s`

const recommendationsPromptTemplate = `Você é consultora de bem-estar corporativo. Com base nos indicadores agregados abaixo,
escreva de três a cinco recomendações práticas para a liderança, em tópicos.
Não cite pessoas e não invente números que não estejam nos dados.

Indicadores:
%s`

var memoryKindLabels = map[MemoryKind]string{
	MemoryPersonalFact: "fato pessoal",
	MemoryPreference:   "preferência",
	MemoryGoal:         "objetivo",
	MemoryEvent:        "evento",
	MemoryRelationship: "relacionamento",
}

const priorReplyTemplate = `Resposta anterior da assistente:
"""%s"""`

func memoryPrompt(message string) string {
	return fmt.Sprintf(memoryPromptTemplate, memorySchema(), message)
}

// priorReplyContext frames the assistant's previous answer for extraction
// prompts. An empty reply gives no context.
func priorReplyContext(reply string) string {
	if reply == "" {
		return ""
	}
	return fmt.Sprintf(priorReplyTemplate, reply)
}

func emotionPrompt(message string) string {
	return fmt.Sprintf(emotionPromptTemplate, emotionSchema(), message)
}

func combinedPrompt(message string) string {
	return fmt.Sprintf(combinedPromptTemplate, combinedSchema(), message)
}

func proactivePrompt(content string, kind MemoryKind) string {
	label, ok := memoryKindLabels[kind]
	if !ok {
		label = strings.ToLower(string(kind))
	}
	return fmt.Sprintf(proactivePromptTemplate, label, content)
}

func insightsPrompt(summary string) string {
	return fmt.Sprintf(insightsPromptTemplate, summary)
}

func recommendationsPrompt(summary string) string {
	return fmt.Sprintf(recommendationsPromptTemplate, summary)
}
