package capability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
	"github.com/m-mizutani/taskory/capability"
)

type mockLLMClient struct {
	response string
	prompts  []string
	config   *taskory.SessionConfig
}

func (m *mockLLMClient) NewSession(ctx context.Context, options ...taskory.SessionOption) (taskory.CompletionSession, error) {
	m.config = taskory.NewSessionConfig(options...)
	return &mockSession{client: m}, nil
}

type mockSession struct {
	client *mockLLMClient
}

func (m *mockSession) GenerateContent(ctx context.Context, input ...taskory.Input) (*taskory.Response, error) {
	for _, in := range input {
		m.client.prompts = append(m.client.prompts, in.String())
	}
	return &taskory.Response{Texts: []string{m.client.response}}, nil
}

func TestConversationInvoke(t *testing.T) {
	llm := &mockLLMClient{response: "Hello! How can I help?"}
	c := capability.NewConversation(llm)

	out, err := c.Invoke(t.Context(), "converse", map[string]any{
		"description": "Good morning!",
	})
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("Hello! How can I help?"))

	gt.A(t, llm.prompts).Length(1)
	gt.Equal(t, llm.prompts[0], "Good morning!")
	gt.NotEqual(t, llm.config.SystemPrompt(), "")
}

func TestConversationForwardedInputs(t *testing.T) {
	llm := &mockLLMClient{response: "Summary: done."}
	c := capability.NewConversation(llm)

	_, err := c.Invoke(t.Context(), "converse", map[string]any{
		"description": "Summarize the results for the user",
		"inputs": map[string]any{
			"t2": "second output",
			"t1": "first output",
		},
	})
	gt.NoError(t, err)

	gt.A(t, llm.prompts).Length(1)
	prompt := llm.prompts[0]
	gt.S(t, prompt).Contains("Context from earlier steps")
	gt.S(t, prompt).Contains("- t1: first output")
	gt.S(t, prompt).Contains("- t2: second output")
}

func TestConversationSystemPromptOption(t *testing.T) {
	llm := &mockLLMClient{response: "aye"}
	c := capability.NewConversation(llm,
		capability.WithConversationSystemPrompt("You are a pirate."))

	_, err := c.Invoke(t.Context(), "converse", map[string]any{"description": "hi"})
	gt.NoError(t, err)
	gt.Equal(t, llm.config.SystemPrompt(), "You are a pirate.")
}

func TestConversationMissingDescription(t *testing.T) {
	llm := &mockLLMClient{response: "unused"}
	c := capability.NewConversation(llm)

	_, err := c.Invoke(t.Context(), "converse", map[string]any{})
	gt.True(t, errors.Is(err, taskory.ErrInvalidParameter))
}
