package claude

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
)

// Client is a client for the Claude API.
type Client struct {
	// client is the underlying Claude client.
	client *anthropic.Client

	// defaultModel is the model to use for completions.
	// It can be overridden using WithModel option.
	defaultModel string

	// maxTokens limits the number of tokens to generate.
	maxTokens int64
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the default model to use for completions.
// Default: anthropic.ModelClaude3_5SonnetLatest
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.defaultModel = modelName
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
// Default: 4096
func WithMaxTokens(maxTokens int64) Option {
	return func(c *Client) {
		c.maxTokens = maxTokens
	}
}

// New creates a new client for the Claude API.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel: anthropic.ModelClaude3_5SonnetLatest,
		maxTokens:    4096,
	}

	for _, option := range options {
		option(client)
	}

	newClient := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	client.client = &newClient

	return client, nil
}

// NewSession creates a new session for the Claude API.
func (c *Client) NewSession(ctx context.Context, options ...taskory.SessionOption) (taskory.CompletionSession, error) {
	cfg := taskory.NewSessionConfig(options...)

	session := &Session{
		client:       c.client,
		defaultModel: c.defaultModel,
		maxTokens:    c.maxTokens,
		cfg:          cfg,
		messages:     convertMessages(cfg.Messages()),
	}

	return session, nil
}

// Session is a session for the Claude chat. It maintains the
// conversation state across GenerateContent calls.
type Session struct {
	client       *anthropic.Client
	defaultModel string
	maxTokens    int64
	cfg          *taskory.SessionConfig
	messages     []anthropic.MessageParam
}

// GenerateContent processes the input and generates a response.
func (s *Session) GenerateContent(ctx context.Context, input ...taskory.Input) (*taskory.Response, error) {
	for _, in := range input {
		switch v := in.(type) {
		case taskory.Text:
			s.messages = append(s.messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(string(v)),
			))
		default:
			return nil, goerr.Wrap(taskory.ErrInvalidParameter, "invalid input")
		}
	}

	params := anthropic.MessageNewParams{
		Model:     s.defaultModel,
		MaxTokens: s.maxTokens,
		Messages:  s.messages,
	}
	if t := s.cfg.Temperature(); t != nil {
		params.Temperature = anthropic.Float(*t)
	}
	if prompt := systemPrompt(s.cfg); prompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt}}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message")
	}

	s.messages = append(s.messages, resp.ToParam())

	response := &taskory.Response{
		Texts:       make([]string, 0),
		InputToken:  int(resp.Usage.InputTokens),
		OutputToken: int(resp.Usage.OutputTokens),
	}
	for _, content := range resp.Content {
		textBlock := content.AsResponseTextBlock()
		if textBlock.Type == "text" {
			response.Texts = append(response.Texts, textBlock.Text)
		}
	}

	return response, nil
}

// systemPrompt renders the session's system prompt. Claude has no
// native JSON output mode, so the JSON content type becomes an explicit
// instruction.
func systemPrompt(cfg *taskory.SessionConfig) string {
	prompt := cfg.SystemPrompt()
	if cfg.ContentType() == taskory.ContentTypeJSON {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += "Respond with a single valid JSON object and nothing else."
	}
	return prompt
}

func convertMessages(messages []taskory.Message) []anthropic.MessageParam {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == taskory.RoleAssistant {
			converted = append(converted, anthropic.NewAssistantMessage(block))
		} else {
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}
	return converted
}
