package signals

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// The payload types mirror what the model is asked to return. Keys are in
// Portuguese, the language the prompts are written in.

type triggerPayload struct {
	Tipo            string  `json:"tipo" jsonschema:"enum=PESSOA,enum=EVENTO,enum=LUGAR,enum=SITUACAO"`
	Descricao       string  `json:"descricao" jsonschema:"description=O que provocou a emoção"`
	Impacto         float64 `json:"impacto" jsonschema:"minimum=1,maximum=10"`
	EmocaoAssociada string  `json:"emocao_associada"`
	Contexto        string  `json:"contexto"`
	Polaridade      string  `json:"polaridade" jsonschema:"enum=positiva,enum=negativa"`
}

type emotionPayload struct {
	EmocaoPrimaria string           `json:"emocao_primaria" jsonschema:"description=Emoção predominante em uma palavra (ex.: medo; alegria; tristeza; raiva; ansiedade)"`
	Intensidade    float64          `json:"intensidade" jsonschema:"minimum=0,maximum=100"`
	NivelEstresse  float64          `json:"nivel_estresse" jsonschema:"minimum=0,maximum=100"`
	NivelRisco     float64          `json:"nivel_risco" jsonschema:"minimum=0,maximum=100,description=Risco à integridade da pessoa"`
	MotivoRisco    string           `json:"motivo_risco,omitempty"`
	Gatilhos       []triggerPayload `json:"gatilhos"`
	ResumoContexto string           `json:"resumo_contexto" jsonschema:"description=Uma frase sem dados identificáveis"`
}

type memoryPayload struct {
	Tipo       string   `json:"tipo" jsonschema:"enum=FATO_PESSOAL,enum=PREFERENCIA,enum=OBJETIVO,enum=EVENTO,enum=RELACIONAMENTO"`
	Conteudo   string   `json:"conteudo"`
	Relevancia float64  `json:"relevancia" jsonschema:"minimum=0,maximum=100"`
	Tags       []string `json:"tags"`
}

type memoriesPayload struct {
	Memorias []memoryPayload `json:"memorias"`
}

type combinedPayload struct {
	Emocao   *emotionPayload `json:"emocao,omitempty"`
	Memorias []memoryPayload `json:"memorias"`
}

var (
	emotionSchema  = sync.OnceValue(func() string { return schemaJSON(emotionPayload{}) })
	memorySchema   = sync.OnceValue(func() string { return schemaJSON(memoriesPayload{}) })
	combinedSchema = sync.OnceValue(func() string { return schemaJSON(combinedPayload{}) })
)

// schemaJSON renders the JSON Schema of v with all definitions inlined.
func schemaJSON(v any) string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	b, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}
