package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// Transcriber is implemented by providers that can turn recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// NoResponse is returned as content when a provider reply has no usable text.
const NoResponse = "[sem resposta]"

// ErrUnsupported is returned by adapters for capabilities the backend lacks.
var ErrUnsupported = errors.New("operation not supported by provider")

// ConfigError marks a provider that cannot be built from the given settings.
// It is the only error class that should stop the process from starting.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("llm provider %q: %s", e.Provider, e.Reason)
}
