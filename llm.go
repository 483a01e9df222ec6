// Package taskory decomposes a free-form user request into a graph of
// dependent tasks, routes each task to a narrowly scoped worker, and
// reconciles the results into a single response. Plain conversation is
// served with minimal latency through speculative execution.
package taskory

import (
	"context"
	"log/slog"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn kept in the session history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ContentType is the requested output format of a completion session.
type ContentType string

const (
	ContentTypeText ContentType = "text"
	ContentTypeJSON ContentType = "application/json"
)

// LLMClient is a client for a completion service. Implementations live
// under llm/ (claude, openai, gemini); the engine depends only on this
// contract.
type LLMClient interface {
	NewSession(ctx context.Context, options ...SessionOption) (CompletionSession, error)
}

// CompletionSession is a single conversation with the completion
// service. Sessions created with ContentTypeJSON must return a single
// JSON object, or free text the caller can extract JSON from.
type CompletionSession interface {
	GenerateContent(ctx context.Context, input ...Input) (*Response, error)
}

// Response is a general response type for each completion service.
type Response struct {
	Texts       []string
	InputToken  int
	OutputToken int
}

func (r *Response) HasData() bool {
	return len(r.Texts) > 0
}

// Input is a restricted interface for prompt inputs.
type Input interface {
	isInput() restrictedValue
	LogValue() slog.Value
	String() string
}

type restrictedValue struct{}

// Text is a text input as prompt.
// Usage:
// input := taskory.Text("Hello, world!")
type Text string

func (t Text) isInput() restrictedValue {
	return restrictedValue{}
}

func (t Text) LogValue() slog.Value {
	return slog.StringValue(string(t))
}

func (t Text) String() string {
	return string(t)
}

// SessionConfig holds configuration for a completion session. Adapters
// read it through the accessor methods.
type SessionConfig struct {
	contentType  ContentType
	systemPrompt string
	temperature  *float64
	messages     []Message
}

// NewSessionConfig builds a SessionConfig from options. It is exported
// for adapter packages under llm/.
func NewSessionConfig(options ...SessionOption) *SessionConfig {
	cfg := &SessionConfig{
		contentType: ContentTypeText,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

func (c *SessionConfig) ContentType() ContentType { return c.contentType }
func (c *SessionConfig) SystemPrompt() string     { return c.systemPrompt }
func (c *SessionConfig) Temperature() *float64    { return c.temperature }

// Messages returns the seed conversation replayed into the session
// before the first generated content.
func (c *SessionConfig) Messages() []Message { return c.messages }

// SessionOption is the type for the options of a completion session.
type SessionOption func(*SessionConfig)

// WithSessionContentType sets the output format of the session.
func WithSessionContentType(contentType ContentType) SessionOption {
	return func(c *SessionConfig) {
		c.contentType = contentType
	}
}

// WithSessionSystemPrompt sets the system prompt of the session.
func WithSessionSystemPrompt(systemPrompt string) SessionOption {
	return func(c *SessionConfig) {
		c.systemPrompt = systemPrompt
	}
}

// WithSessionTemperature sets the sampling temperature of the session.
func WithSessionTemperature(temperature float64) SessionOption {
	return func(c *SessionConfig) {
		c.temperature = &temperature
	}
}

// WithSessionMessages seeds the session with prior conversation turns.
func WithSessionMessages(messages ...Message) SessionOption {
	return func(c *SessionConfig) {
		c.messages = append(c.messages, messages...)
	}
}
