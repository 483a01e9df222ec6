package taskory

import (
	"context"
	"slices"
)

// Synthesizer internals for testing
type (
	TestPlanDraft  = planDraft
	TestDraftStep  = draftStep
	TestIntentKind = intentKind
)

const (
	TestIntentChat    = intentChat
	TestIntentTask    = intentTask
	TestIntentCommand = intentCommand
)

var (
	ExtractJSON    = extractJSON
	ParseDraft     = parseDraft
	ClassifyIntent = classifyIntent
	LikelyToolUse  = likelyToolUse
	ValidateDraft  = validateDraft
	NormalizeDraft = normalizeDraft
	ValidateGraph  = validateGraph
	NewPlan        = newPlan
	PlanFromDraft  = planFromDraft
	CtxWithLogger  = ctxWithLogger

	NewSynthesizer = newSynthesizer
	NewSessionFor  = newSession

	SnapshotSession = snapshotSession
	RestoreSession  = restoreSession
)

func (s *synthesizer) TestSynthesize(ctx context.Context, history []Message) (*synthesisResult, error) {
	return s.synthesize(ctx, history)
}

type TestSynthesisResult = synthesisResult

func (r *synthesisResult) TestKind() synthesisKind { return r.kind }
func (r *synthesisResult) TestDraft() *planDraft   { return r.draft }
func (r *synthesisResult) TestCommand() string     { return r.command }
func (r *synthesisResult) TestFallback() string    { return r.fallback }

type TestSynthesisKind = synthesisKind

const (
	TestSynthesisConversation = synthesisConversation
	TestSynthesisTask         = synthesisTask
	TestSynthesisCommand      = synthesisCommand
)

// Session internals for testing
func (s *Session) TestHistory() []Message {
	return s.historyCopy()
}

func (s *Session) TestActivePlan() *Plan {
	return s.activePlan
}

func (s *Session) TestAppendMessage(msg Message) {
	s.appendMessage(msg)
}

func (s *Session) TestExecuted() []string {
	ids := make([]string, 0, len(s.executed))
	for id := range s.executed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Speculation internals for testing
var StartSpeculation = startSpeculation

func BindCapability(spec CapabilitySpec, set CapabilitySet) boundCapability {
	return boundCapability{spec: spec, set: set}
}

func (sp *speculation) TestAwait(ctx context.Context) (string, bool) {
	res, ok := sp.await(ctx)
	return res.content, ok && res.success
}

func (sp *speculation) TestPoll() (string, bool) {
	res, ok := sp.poll()
	return res.content, ok && res.success
}

func (sp *speculation) TestDiscard() {
	sp.discard()
}
