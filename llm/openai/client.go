package openai

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
	goopenai "github.com/sashabaranov/go-openai"
)

// Client is a client for the OpenAI chat completion API.
type Client struct {
	client       *goopenai.Client
	defaultModel string
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the default model to use for completions.
// Default: gpt-4o
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.defaultModel = modelName
	}
}

// New creates a new client for the OpenAI API.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel: goopenai.GPT4o,
	}

	for _, option := range options {
		option(client)
	}

	client.client = goopenai.NewClient(apiKey)

	return client, nil
}

// NewSession creates a new session for the OpenAI API.
func (c *Client) NewSession(ctx context.Context, options ...taskory.SessionOption) (taskory.CompletionSession, error) {
	cfg := taskory.NewSessionConfig(options...)

	session := &Session{
		client:       c.client,
		defaultModel: c.defaultModel,
		cfg:          cfg,
	}

	if prompt := cfg.SystemPrompt(); prompt != "" {
		session.messages = append(session.messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: prompt,
		})
	}
	for _, msg := range cfg.Messages() {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == taskory.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		session.messages = append(session.messages, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return session, nil
}

// Session is a session for the OpenAI chat.
type Session struct {
	client       *goopenai.Client
	defaultModel string
	cfg          *taskory.SessionConfig
	messages     []goopenai.ChatCompletionMessage
}

// GenerateContent processes the input and generates a response.
func (s *Session) GenerateContent(ctx context.Context, input ...taskory.Input) (*taskory.Response, error) {
	for _, in := range input {
		switch v := in.(type) {
		case taskory.Text:
			s.messages = append(s.messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: string(v),
			})
		default:
			return nil, goerr.Wrap(taskory.ErrInvalidParameter, "invalid input")
		}
	}

	req := goopenai.ChatCompletionRequest{
		Model:    s.defaultModel,
		Messages: s.messages,
	}
	if t := s.cfg.Temperature(); t != nil {
		req.Temperature = float32(*t)
	}
	if s.cfg.ContentType() == taskory.ContentTypeJSON {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion")
	}

	if len(resp.Choices) == 0 {
		return &taskory.Response{}, nil
	}

	response := &taskory.Response{
		Texts:       make([]string, 0),
		InputToken:  resp.Usage.PromptTokens,
		OutputToken: resp.Usage.CompletionTokens,
	}

	message := resp.Choices[0].Message
	if message.Content != "" {
		response.Texts = append(response.Texts, message.Content)
		s.messages = append(s.messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleAssistant,
			Content: message.Content,
		})
	}

	return response, nil
}
