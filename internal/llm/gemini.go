package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider and Transcriber on the Gemini API.
// Gemini has no system role, so system text is folded into the first user
// turn, and assistant turns are sent with the "model" role.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini provider. An empty baseURL uses the
// public endpoint.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	temp := float32(req.Temperature)
	gc := &genai.GenerateContentConfig{Temperature: &temp}
	if req.JSONMode {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, geminiContents(req.Messages), gc)
	if err != nil {
		return nil, err
	}

	out := &CompletionResponse{
		Content: geminiText(resp),
		Model:   model,
	}
	if resp != nil {
		if resp.ModelVersion != "" {
			out.Model = resp.ModelVersion
		}
		if resp.UsageMetadata != nil {
			out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			out.FinishReason = string(resp.Candidates[0].FinishReason)
		}
	}
	return out, nil
}

func (p *GeminiProvider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText("Transcreva fielmente o áudio a seguir em português. Responda apenas com a transcrição."),
		genai.NewPartFromBytes(audio, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", err
	}
	text := geminiText(resp)
	if text == NoResponse {
		return "", nil
	}
	return text, nil
}

// geminiContents converts a conversation into Gemini turns. System messages
// are prepended to the first user turn; a history with only system text
// becomes a single user turn.
func geminiContents(msgs []Message) []*genai.Content {
	var system []string
	var contents []*genai.Content
	folded := false

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			text := msg.Content
			if !folded && len(system) > 0 {
				text = strings.Join(system, "\n\n") + "\n\n" + text
				folded = true
			}
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}

	if !folded && len(system) > 0 {
		head := genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
		contents = append([]*genai.Content{head}, contents...)
	}
	return contents
}

// geminiText concatenates the text parts of the first candidate. Any
// missing level of the response yields NoResponse.
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return NoResponse
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		return NoResponse
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return NoResponse
	}
	return b.String()
}
