package taskory_test

import (
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
)

func history(messages ...string) []taskory.Message {
	var out []taskory.Message
	for i, m := range messages {
		role := taskory.RoleUser
		if i%2 == 1 {
			role = taskory.RoleAssistant
		}
		out = append(out, taskory.Message{Role: role, Content: m})
	}
	return out
}

func TestSynthesizeConversation(t *testing.T) {
	llm := &mockLLMClient{}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{taskory.CapabilityConversation})

	result, err := synth.TestSynthesize(t.Context(), history("hello there"))
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisConversation)

	// Chat turns never cost a completion.
	gt.Equal(t, llm.callCount, 0)
}

func TestSynthesizeCommand(t *testing.T) {
	llm := &mockLLMClient{}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{taskory.CapabilityConversation})

	result, err := synth.TestSynthesize(t.Context(), history("/status"))
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisCommand)
	gt.Equal(t, result.TestCommand(), "status")
	gt.Equal(t, llm.callCount, 0)
}

func TestSynthesizeTask(t *testing.T) {
	llm := &mockLLMClient{responses: []string{renamePlanJSON}}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{
		taskory.CapabilityConversation, taskory.CapabilityFile,
	})

	result, err := synth.TestSynthesize(t.Context(), history("rename notes.txt to draft.txt"))
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisTask)
	gt.Equal(t, llm.callCount, 1)

	draft := result.TestDraft()
	gt.NotNil(t, draft)
	gt.A(t, draft.Steps).Length(1)
	gt.Equal(t, draft.Steps[0].ID, "t1")
	gt.Equal(t, draft.Steps[0].Type, "file")
}

func TestSynthesizeRecoversFencedOutput(t *testing.T) {
	fenced := "Here you go:\n```json\n" + renamePlanJSON + "\n```"
	llm := &mockLLMClient{responses: []string{fenced}}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{taskory.CapabilityFile})

	result, err := synth.TestSynthesize(t.Context(), history("rename notes.txt to draft.txt"))
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisTask)
}

func TestSynthesizeShapeFailureDegrades(t *testing.T) {
	llm := &mockLLMClient{responses: []string{"no json here", "still nothing"}}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{taskory.CapabilityFile})

	result, err := synth.TestSynthesize(t.Context(), history("rename notes.txt to draft.txt"))
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisConversation)
	gt.NotEqual(t, result.TestFallback(), "")

	// One retry, then degrade.
	gt.Equal(t, llm.callCount, 2)
}

func TestSynthesizeSchemaViolationDegrades(t *testing.T) {
	// Valid JSON that does not match the plan schema.
	llm := &mockLLMClient{responses: []string{`{"answer": 42}`, `{"answer": 42}`}}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{taskory.CapabilityFile})

	result, err := synth.TestSynthesize(t.Context(), history("rename notes.txt to draft.txt"))
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisConversation)
	gt.NotEqual(t, result.TestFallback(), "")
}

func TestSynthesizeTransportError(t *testing.T) {
	llm := &mockLLMClient{err: fmt.Errorf("connection reset")}
	synth := taskory.NewSynthesizer(llm, []taskory.Capability{taskory.CapabilityFile})

	_, err := synth.TestSynthesize(t.Context(), history("rename notes.txt to draft.txt"))
	gt.Error(t, err)
}

func TestSynthesizeEmptyHistory(t *testing.T) {
	llm := &mockLLMClient{}
	synth := taskory.NewSynthesizer(llm, nil)

	result, err := synth.TestSynthesize(t.Context(), nil)
	gt.NoError(t, err)
	gt.Equal(t, result.TestKind(), taskory.TestSynthesisConversation)
}
