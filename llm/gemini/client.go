package gemini

import (
	"context"

	"cloud.google.com/go/vertexai/genai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
	"google.golang.org/api/option"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// Client is a client for the Gemini API on Vertex AI.
type Client struct {
	projectID string
	location  string

	// client is the underlying Gemini client.
	client *genai.Client

	// defaultModel is the model to use for completions.
	// It can be overridden using WithModel option.
	defaultModel string

	// gcpOptions are additional options for Google Cloud Platform.
	gcpOptions []option.ClientOption
}

// Option is a configuration option for the Gemini client.
type Option func(*Client)

// WithModel sets the model to use for text generation.
// Default: "gemini-1.5-flash"
func WithModel(model string) Option {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// WithGoogleCloudOptions sets additional Google Cloud options.
// These can include authentication credentials, endpoint overrides, etc.
func WithGoogleCloudOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.gcpOptions = append(c.gcpOptions, opts...)
	}
}

// New creates a new client for the Gemini API on Vertex AI.
func New(ctx context.Context, projectID, location string, options ...Option) (*Client, error) {
	client := &Client{
		projectID:    projectID,
		location:     location,
		defaultModel: DefaultModel,
	}

	for _, option := range options {
		option(client)
	}

	newClient, err := genai.NewClient(ctx, projectID, location, client.gcpOptions...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}
	client.client = newClient

	return client, nil
}

// NewSession creates a new session for the Gemini API.
func (c *Client) NewSession(ctx context.Context, options ...taskory.SessionOption) (taskory.CompletionSession, error) {
	cfg := taskory.NewSessionConfig(options...)

	model := c.client.GenerativeModel(c.defaultModel)
	if cfg.ContentType() == taskory.ContentTypeJSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if t := cfg.Temperature(); t != nil {
		model.SetTemperature(float32(*t))
	}
	if prompt := cfg.SystemPrompt(); prompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(prompt)},
		}
	}

	chat := model.StartChat()
	chat.History = convertHistory(cfg.Messages())

	return &Session{chat: chat}, nil
}

// Session is a session for the Gemini chat.
type Session struct {
	chat *genai.ChatSession
}

// GenerateContent processes the input and generates a response.
func (s *Session) GenerateContent(ctx context.Context, input ...taskory.Input) (*taskory.Response, error) {
	parts := make([]genai.Part, 0, len(input))
	for _, in := range input {
		switch v := in.(type) {
		case taskory.Text:
			parts = append(parts, genai.Text(string(v)))
		default:
			return nil, goerr.Wrap(taskory.ErrInvalidParameter, "invalid input")
		}
	}

	resp, err := s.chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send message")
	}

	response := &taskory.Response{
		Texts: make([]string, 0),
	}
	if resp.UsageMetadata != nil {
		response.InputToken = int(resp.UsageMetadata.PromptTokenCount)
		response.OutputToken = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				response.Texts = append(response.Texts, string(text))
			}
		}
		break
	}

	return response, nil
}

func convertHistory(messages []taskory.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == taskory.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return history
}
