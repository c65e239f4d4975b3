package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/pulse/internal/logging"
)

// DefaultTimeout is the base per-call budget when none is configured.
const DefaultTimeout = 20 * time.Second

// ClientOptions tunes a Client.
type ClientOptions struct {
	Model       string
	Timeout     time.Duration
	Temperature float64
	Logger      *zap.Logger
}

// Client is the single entry point for model calls. Every method returns a
// usable result within its timeout budget; provider failures are logged
// with credentials removed and replaced by the task's fallback sentinel.
type Client struct {
	provider    Provider
	model       string
	timeout     time.Duration
	temperature float64
	logger      *zap.Logger
	usage       usageMeter
}

// NewClient wraps a provider.
func NewClient(p Provider, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	logger = logging.OrNop(logger)
	return &Client{
		provider:    p,
		model:       opts.Model,
		timeout:     opts.Timeout,
		temperature: opts.Temperature,
		logger:      logger.Named("llm"),
	}
}

// ProviderName returns the name of the wrapped provider.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Timeout returns the wait budget for a task.
func (c *Client) Timeout(task TaskKind) time.Duration {
	return c.timeout * timeoutFactor(task)
}

// Usage returns the calls and tokens recorded so far.
func (c *Client) Usage() Usage {
	return c.usage.snapshot()
}

// Generate sends a single-turn prompt for the given task.
func (c *Client) Generate(ctx context.Context, task TaskKind, prompt string) ExtractionResult {
	return c.Converse(ctx, task, []Message{{Role: RoleUser, Content: prompt}})
}

// Extract runs one ExtractionRequest as a single-turn prompt.
func (c *Client) Extract(ctx context.Context, req ExtractionRequest) ExtractionResult {
	return c.Generate(ctx, req.Task, req.Prompt())
}

// Converse sends a multi-turn history for the given task.
func (c *Client) Converse(ctx context.Context, task TaskKind, history []Message) ExtractionResult {
	req := CompletionRequest{
		Model:       c.model,
		Messages:    history,
		MaxTokens:   maxTokensFor(task),
		Temperature: c.temperature,
		JSONMode:    task.Structured(),
	}

	start := time.Now()
	resp, err := c.complete(ctx, task, req)
	if err == nil && (resp == nil || resp.Content == NoResponse || strings.TrimSpace(resp.Content) == "") {
		err = errors.New("empty response")
	}
	if err != nil {
		c.usage.record(c.model, resp, true)
		c.logFailure(task, start, err)
		return ExtractionResult{Text: Fallback(task), Task: task, UsedFallback: true}
	}

	c.usage.record(c.model, resp, false)
	c.logger.Debug("model call completed",
		zap.String("provider", c.provider.Name()),
		zap.String("task", string(task)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	return ExtractionResult{Text: resp.Content, Task: task, Succeeded: true}
}

// Transcribe converts audio to text. Providers without transcription
// support, and any failure, yield an empty transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) ExtractionResult {
	task := TaskTranscribe
	t, ok := c.provider.(Transcriber)
	if !ok {
		c.logFailure(task, time.Now(), ErrUnsupported)
		return ExtractionResult{Text: Fallback(task), Task: task, UsedFallback: true}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.Timeout(task))
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		text, err := t.Transcribe(callCtx, audio, mimeType)
		done <- outcome{text: text, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-callCtx.Done():
		o.err = callCtx.Err()
	}
	if o.err == nil && strings.TrimSpace(o.text) == "" {
		o.err = errors.New("empty transcript")
	}
	if o.err != nil {
		c.usage.record(c.model, nil, true)
		c.logFailure(task, start, o.err)
		return ExtractionResult{Text: Fallback(task), Task: task, UsedFallback: true}
	}
	c.usage.record(c.model, nil, false)
	return ExtractionResult{Text: strings.TrimSpace(o.text), Task: task, Succeeded: true}
}

// complete runs one provider call bounded by the task timeout. The wait
// ends at the deadline even if the provider ignores cancellation.
func (c *Client) complete(ctx context.Context, task TaskKind, req CompletionRequest) (*CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.Timeout(task))
	defer cancel()

	type outcome struct {
		resp *CompletionResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		resp, err := c.provider.Complete(callCtx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		return o.resp, o.err
	case <-callCtx.Done():
		return nil, callCtx.Err()
	}
}

func (c *Client) logFailure(task TaskKind, start time.Time, err error) {
	c.logger.Warn("model call failed, using fallback",
		zap.String("provider", c.provider.Name()),
		zap.String("task", string(task)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
		zap.String("error", Redact(err.Error())),
	)
}
