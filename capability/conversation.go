// Package capability provides the built-in capability sets workers
// draw from: conversation, file, shell, web, code and an MCP bridge.
package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
)

const defaultConversationPrompt = "You are a concise, helpful assistant. " +
	"Answer the user's message directly in natural language."

// Conversation is the LLM-backed conversational capability. Every
// engine needs one registered; it serves plain replies, clarification
// steps and speculative execution.
type Conversation struct {
	llm          taskory.LLMClient
	systemPrompt string
}

// ConversationOption is the type for Conversation options.
type ConversationOption func(*Conversation)

// WithConversationSystemPrompt replaces the default system prompt.
func WithConversationSystemPrompt(prompt string) ConversationOption {
	return func(c *Conversation) {
		c.systemPrompt = prompt
	}
}

// NewConversation creates the conversational capability set.
func NewConversation(llm taskory.LLMClient, options ...ConversationOption) *Conversation {
	c := &Conversation{
		llm:          llm,
		systemPrompt: defaultConversationPrompt,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Conversation) Specs(ctx context.Context) ([]taskory.CapabilitySpec, error) {
	return []taskory.CapabilitySpec{
		{
			Name:        "converse",
			Kind:        taskory.CapabilityConversation,
			Description: "Reply to the user in natural language",
			Parameters: map[string]*taskory.Parameter{
				"description": {
					Type:        taskory.TypeString,
					Description: "The message or instruction to respond to",
					Required:    true,
				},
			},
		},
	}, nil
}

func (c *Conversation) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	description, err := descriptionArg(args)
	if err != nil {
		return nil, err
	}

	ssn, err := c.llm.NewSession(ctx,
		taskory.WithSessionSystemPrompt(c.systemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation session")
	}

	resp, err := ssn.GenerateContent(ctx, taskory.Text(renderPrompt(description, args)))
	if err != nil {
		return nil, goerr.Wrap(err, "conversation completion failed")
	}
	if !resp.HasData() {
		return nil, goerr.New("conversation completion returned no text")
	}

	return map[string]any{"content": strings.Join(resp.Texts, "\n")}, nil
}

// renderPrompt appends forwarded dependency outputs as context below
// the instruction, in stable order.
func renderPrompt(description string, args map[string]any) string {
	inputs, ok := args["inputs"].(map[string]any)
	if !ok || len(inputs) == 0 {
		return description
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(description)
	sb.WriteString("\n\nContext from earlier steps:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %v\n", k, inputs[k])
	}
	return sb.String()
}

// descriptionArg extracts the mandatory description argument shared by
// every built-in capability.
func descriptionArg(args map[string]any) (string, error) {
	description, ok := args["description"].(string)
	if !ok || strings.TrimSpace(description) == "" {
		return "", goerr.Wrap(taskory.ErrInvalidParameter, "description is required",
			goerr.T(taskory.TagValidation))
	}
	return description, nil
}
