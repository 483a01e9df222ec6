package taskory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
)

func speculationTarget(reply string, delay time.Duration) taskory.CapabilitySet {
	return &mockCapability{
		spec: taskory.CapabilitySpec{Name: "converse", Kind: taskory.CapabilityConversation},
		invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return map[string]any{"content": reply}, nil
		},
	}
}

func TestSpeculationAwait(t *testing.T) {
	set := speculationTarget("hi there", 0)
	bound := taskory.BindCapability(taskory.CapabilitySpec{
		Name: "converse", Kind: taskory.CapabilityConversation,
	}, set)

	sp := taskory.StartSpeculation(t.Context(), bound, "say hi", nil, time.Second)
	content, ok := sp.TestAwait(t.Context())
	gt.True(t, ok)
	gt.Equal(t, content, "hi there")
}

func TestSpeculationPollBeforeCompletion(t *testing.T) {
	set := speculationTarget("slow reply", 5*time.Second)
	bound := taskory.BindCapability(taskory.CapabilitySpec{
		Name: "converse", Kind: taskory.CapabilityConversation,
	}, set)

	sp := taskory.StartSpeculation(t.Context(), bound, "say hi", nil, 10*time.Second)

	// Still running: the non-blocking poll must come back empty.
	_, ok := sp.TestPoll()
	gt.B(t, ok).False()

	// Discard cancels the worker; the buffered channel lets it exit.
	sp.TestDiscard()
}

func TestSpeculationPollAfterCompletion(t *testing.T) {
	set := speculationTarget("fast reply", 0)
	bound := taskory.BindCapability(taskory.CapabilitySpec{
		Name: "converse", Kind: taskory.CapabilityConversation,
	}, set)

	sp := taskory.StartSpeculation(t.Context(), bound, "say hi", nil, time.Second)

	deadline := time.Now().Add(time.Second)
	for {
		if content, ok := sp.TestPoll(); ok {
			gt.Equal(t, content, "fast reply")
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("speculative result never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpeculationDiscardAfterAdoption(t *testing.T) {
	set := speculationTarget("fast reply", 0)
	bound := taskory.BindCapability(taskory.CapabilitySpec{
		Name: "converse", Kind: taskory.CapabilityConversation,
	}, set)

	sp := taskory.StartSpeculation(t.Context(), bound, "say hi", nil, time.Second)

	var content string
	deadline := time.Now().Add(time.Second)
	for {
		if c, ok := sp.TestPoll(); ok {
			content = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("speculative result never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Releasing the speculation after adopting its result must not
	// invalidate the result; the channel is drained and stays empty.
	sp.TestDiscard()
	gt.Equal(t, content, "fast reply")
	_, ok := sp.TestPoll()
	gt.B(t, ok).False()
}

func TestSpeculationAwaitCancelled(t *testing.T) {
	set := speculationTarget("slow reply", 5*time.Second)
	bound := taskory.BindCapability(taskory.CapabilitySpec{
		Name: "converse", Kind: taskory.CapabilityConversation,
	}, set)

	sp := taskory.StartSpeculation(t.Context(), bound, "say hi", nil, 10*time.Second)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, ok := sp.TestAwait(ctx)
	gt.B(t, ok).False()
}
