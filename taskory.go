package taskory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Engine is the facade of the planning pipeline. One engine serves many
// sessions; all state lives in the session store, never on the engine.
type Engine struct {
	llm            LLMClient
	synth          *synthesizer
	sched          *scheduler
	caps           map[Capability]boundCapability
	capabilitySets []CapabilitySet

	store     SessionStore
	snapshots SnapshotRepository

	mode          ExecutionMode
	historyLimit  int
	taskTimeout   time.Duration
	failureBudget int
	speculative   bool
	logger        *slog.Logger

	planCreatedHook       PlanCreatedHook
	taskStartHook         TaskStartHook
	taskCompletedHook     TaskCompletedHook
	permissionRequestHook PermissionRequestHook
	planFinishedHook      PlanFinishedHook
}

// Option is the type for Engine configuration options.
type Option func(*Engine)

// WithCapabilitySets registers the capability sets workers draw from. A
// conversation capability must be among them.
func WithCapabilitySets(sets ...CapabilitySet) Option {
	return func(e *Engine) {
		e.capabilitySets = append(e.capabilitySets, sets...)
	}
}

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store SessionStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithSnapshotRepository enables snapshot persistence after plan
// mutations. Snapshots are written, never read, by the engine.
func WithSnapshotRepository(repo SnapshotRepository) Option {
	return func(e *Engine) {
		e.snapshots = repo
	}
}

// WithExecutionMode sets confirmation gating for new sessions.
func WithExecutionMode(mode ExecutionMode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithHistoryLimit overrides the bounded history size for new sessions.
func WithHistoryLimit(limit int) Option {
	return func(e *Engine) {
		e.historyLimit = limit
	}
}

// WithTaskTimeout bounds each worker invocation.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.taskTimeout = d
	}
}

// WithFailureBudget caps permanently failed tasks per run before the
// dispatch loop aborts.
func WithFailureBudget(n int) Option {
	return func(e *Engine) {
		e.failureBudget = n
	}
}

// WithSpeculation toggles the speculative conversation path. Disabling
// it changes latency only, never the reply.
func WithSpeculation(enabled bool) Option {
	return func(e *Engine) {
		e.speculative = enabled
	}
}

// WithLogger sets the logger propagated to every operation's context.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithPlanCreatedHook sets a hook for plan proposals.
func WithPlanCreatedHook(hook PlanCreatedHook) Option {
	return func(e *Engine) {
		e.planCreatedHook = hook
	}
}

// WithTaskStartHook sets a hook for task dispatch.
func WithTaskStartHook(hook TaskStartHook) Option {
	return func(e *Engine) {
		e.taskStartHook = hook
	}
}

// WithTaskCompletedHook sets a hook for task completion and failure.
func WithTaskCompletedHook(hook TaskCompletedHook) Option {
	return func(e *Engine) {
		e.taskCompletedHook = hook
	}
}

// WithPermissionRequestHook sets a hook for confirmation pauses.
func WithPermissionRequestHook(hook PermissionRequestHook) Option {
	return func(e *Engine) {
		e.permissionRequestHook = hook
	}
}

// WithPlanFinishedHook sets a hook for terminal plans.
func WithPlanFinishedHook(hook PlanFinishedHook) Option {
	return func(e *Engine) {
		e.planFinishedHook = hook
	}
}

// New creates an Engine bound to a completion client and the registered
// capability sets.
func New(ctx context.Context, llmClient LLMClient, options ...Option) (*Engine, error) {
	e := &Engine{
		llm:                   llmClient,
		store:                 NewMemorySessionStore(),
		mode:                  ExecutionModeManual,
		historyLimit:          DefaultHistoryLimit,
		taskTimeout:           DefaultTaskTimeout,
		failureBudget:         DefaultFailureBudget,
		speculative:           true,
		logger:                defaultLogger,
		planCreatedHook:       noopPlanCreatedHook,
		taskStartHook:         noopTaskStartHook,
		taskCompletedHook:     noopTaskCompletedHook,
		permissionRequestHook: noopPermissionRequestHook,
		planFinishedHook:      noopPlanFinishedHook,
	}
	for _, opt := range options {
		opt(e)
	}

	ctx = ctxWithLogger(ctx, e.logger)

	caps, err := buildCapabilityMap(ctx, e.capabilitySets)
	if err != nil {
		return nil, err
	}
	if _, ok := caps[CapabilityConversation]; !ok {
		return nil, goerr.Wrap(ErrCapabilityNotFound, "a conversation capability is required")
	}
	e.caps = caps

	kinds := make([]Capability, 0, len(caps))
	for kind := range caps {
		kinds = append(kinds, kind)
	}
	e.synth = newSynthesizer(llmClient, kinds)

	e.sched = &scheduler{
		caps:                  caps,
		taskTimeout:           e.taskTimeout,
		failureBudget:         e.failureBudget,
		taskStartHook:         e.taskStartHook,
		taskCompletedHook:     e.taskCompletedHook,
		permissionRequestHook: e.permissionRequestHook,
		planFinishedHook:      e.planFinishedHook,
	}

	return e, nil
}

// TurnKind classifies what a turn delivered to the user.
type TurnKind string

const (
	TurnReply         TurnKind = "reply"
	TurnClarification TurnKind = "clarification"
	TurnProposal      TurnKind = "proposal"
	TurnReport        TurnKind = "report"
)

// Turn is the user-visible outcome of one engine operation.
type Turn struct {
	Kind      TurnKind           `json:"kind"`
	SessionID string             `json:"session_id"`
	Reply     string             `json:"reply,omitempty"`
	Question  string             `json:"question,omitempty"`
	Options   []string           `json:"options,omitempty"`
	Plan      *PlanView          `json:"plan,omitempty"`
	Pending   *PermissionRequest `json:"pending,omitempty"`
}

// Inspection is the read-only state exposed by Inspect.
type Inspection struct {
	SessionID string                `json:"session_id"`
	Plan      PlanView              `json:"plan"`
	Statuses  map[string]TaskStatus `json:"statuses"`
	Pending   *PermissionRequest    `json:"pending,omitempty"`
}

// Chat runs one conversational turn: classify, possibly speculate,
// synthesize, gate and either reply, ask for clarification, or propose
// a plan.
func (e *Engine) Chat(ctx context.Context, sessionID, message string) (*Turn, error) {
	ctx = ctxWithLogger(ctx, e.logger.With("taskory.turn_id", uuid.New().String()))

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	// A finished plan lingers for inspection until the conversation
	// moves on.
	if ssn.activePlan != nil && ssn.activePlan.Status().terminal() {
		ssn.clearPlan()
	}

	if ssn.activePlan != nil && ssn.activePlan.Status() == PlanStatusAccepted {
		view := ssn.activePlan.View(ssn.skipped)
		return &Turn{
			Kind:      TurnReply,
			SessionID: ssn.id,
			Reply:     "A plan is still in progress. Confirm the pending step, or cancel the plan to start over.",
			Plan:      &view,
			Pending:   ssn.pending,
		}, nil
	}

	ssn.appendMessage(Message{Role: RoleUser, Content: message})

	var sp *speculation
	if e.speculative && ssn.activePlan == nil &&
		!strings.HasPrefix(strings.TrimSpace(message), "/") && !likelyToolUse(message) {
		sp = startSpeculation(ctx, e.caps[CapabilityConversation], message, nil, e.taskTimeout)
	}

	result, err := e.synth.synthesize(ctx, ssn.historyCopy())
	if err != nil {
		if sp != nil {
			sp.discard()
		}
		return nil, err
	}

	switch result.kind {
	case synthesisCommand:
		if sp != nil {
			sp.discard()
		}
		return e.runCommand(ctx, ssn, result.command)

	case synthesisTask:
		if sp != nil {
			sp.discard()
		}
		return e.proposePlan(ctx, ssn, result.draft, message)

	default:
		return e.converse(ctx, ssn, message, sp)
	}
}

// converse produces the conversational reply, adopting a speculative
// result when one already resolved successfully.
func (e *Engine) converse(ctx context.Context, ssn *Session, message string, sp *speculation) (*Turn, error) {
	logger := LoggerFromContext(ctx)

	var res workerResult
	adopted := false
	if sp != nil {
		if early, ok := sp.poll(); ok && early.success {
			res = early
			adopted = true
			logger.Debug("speculative reply adopted")
		}
		// Adopted or not, the speculation's derived context is done with.
		sp.discard()
	}

	if !adopted {
		w := spawnWorker(e.caps[CapabilityConversation], message, nil, e.taskTimeout)
		res = w.run(ctx)
	}
	if res.err != nil {
		return nil, goerr.Wrap(res.err, "conversation worker failed")
	}

	ssn.appendMessage(Message{Role: RoleAssistant, Content: res.content})
	return &Turn{Kind: TurnReply, SessionID: ssn.id, Reply: res.content}, nil
}

// proposePlan runs the quality gate and graph validation over a
// synthesized draft. A draft that cannot be repaired becomes a
// clarification; nothing of it is stored.
func (e *Engine) proposePlan(ctx context.Context, ssn *Session, draft *planDraft, request string) (*Turn, error) {
	logger := LoggerFromContext(ctx)

	if reasons := validateDraft(draft, request); len(reasons) > 0 {
		logger.Debug("draft rejected by quality gate", "reasons", reasons)
		draft = normalizeDraft(draft, request)
		if draft == nil {
			return e.clarify(ctx, ssn, request)
		}
	}

	plan, err := planFromDraft(draft)
	if err != nil {
		logger.Warn("synthesized plan has an invalid graph", "error", err)
		return e.clarify(ctx, ssn, request)
	}

	ssn.setPlan(plan)
	view := plan.View(nil)
	if err := e.planCreatedHook(ctx, view); err != nil {
		ssn.clearPlan()
		return nil, goerr.Wrap(err, "plan created hook failed")
	}
	e.saveSnapshot(ctx, ssn)

	reply := proposalSummary(view)
	ssn.appendMessage(Message{Role: RoleAssistant, Content: reply})
	return &Turn{
		Kind:      TurnProposal,
		SessionID: ssn.id,
		Reply:     reply,
		Plan:      &view,
	}, nil
}

func (e *Engine) clarify(ctx context.Context, ssn *Session, request string) (*Turn, error) {
	question := "I couldn't turn that into a concrete plan. What outcome do you expect, and on which files or resources?"
	ssn.appendMessage(Message{Role: RoleAssistant, Content: question})
	return &Turn{
		Kind:      TurnClarification,
		SessionID: ssn.id,
		Question:  question,
		Options: []string{
			"Describe the end result you want",
			"Name the files or data involved",
			"Ask me to just answer in chat instead",
		},
	}, nil
}

// planFromDraft coerces draft step types into the Capability enum and
// constructs the validated plan. Step ids are resequenced to t1..tN
// first: the schema requires only descriptions, so the synthesizer may
// omit or collide ids, and every task needs a unique id before graph
// validation.
func planFromDraft(draft *planDraft) (*Plan, error) {
	draft = draft.clone()
	resequenceSteps(draft.Steps)

	tasks := make([]Task, len(draft.Steps))
	for i, step := range draft.Steps {
		capability := ParseCapability(step.Type)
		if step.Type == "" {
			capability = CapabilityConversation
		}
		tasks[i] = Task{
			ID:          step.ID,
			Description: step.Description,
			Capability:  capability,
			Status:      TaskStatusPending,
			DependsOn:   append([]string(nil), step.DependsOn...),
		}
	}

	dispatch := DispatchSequential
	if strings.EqualFold(draft.Mode, string(DispatchParallel)) {
		dispatch = DispatchParallel
	}
	return newPlan(draft.Goal, draft.Title, dispatch, tasks)
}

// Approve accepts the proposed plan and drives it until it finishes or
// pauses on a confirmation.
func (e *Engine) Approve(ctx context.Context, sessionID string) (*Turn, error) {
	ctx = ctxWithLogger(ctx, e.logger)

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	if ssn.activePlan == nil {
		return nil, goerr.Wrap(ErrNoActivePlan, "nothing to approve")
	}
	if err := ssn.activePlan.Accept(); err != nil {
		return nil, err
	}
	e.saveSnapshot(ctx, ssn)

	return e.run(ctx, ssn)
}

// Confirm resolves the pending permission. Allowing dispatches the
// task; denying fails it permanently without retry. Execution resumes
// either way.
func (e *Engine) Confirm(ctx context.Context, sessionID, taskID string, allow bool) (*Turn, error) {
	ctx = ctxWithLogger(ctx, e.logger)

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	if ssn.pending == nil {
		return nil, goerr.Wrap(ErrNoPendingPermission, "no confirmation is pending")
	}
	if ssn.pending.TaskID != taskID {
		return nil, goerr.Wrap(ErrNoPendingPermission, "confirmation is pending for a different task",
			goerr.V("pending_task_id", ssn.pending.TaskID), goerr.V("task_id", taskID))
	}

	task := ssn.activePlan.task(taskID)
	if task == nil {
		return nil, goerr.Wrap(ErrUnknownTask, "pending task disappeared", goerr.V("task_id", taskID))
	}

	ssn.pending = nil
	if allow {
		ssn.allowed[taskID] = struct{}{}
		task.Status = TaskStatusPending
	} else {
		task.Status = TaskStatusFailed
		task.Result = &TaskResult{Success: false, Error: "confirmation denied", FinishedAt: time.Now()}
		ssn.activePlan.touch()
		if ssn.lastRun != nil {
			ssn.lastRun.recordResult(taskID, workerResult{err: goerr.New("confirmation denied")})
		}
	}
	e.saveSnapshot(ctx, ssn)

	return e.run(ctx, ssn)
}

// run drives the scheduler and renders the outcome turn.
func (e *Engine) run(ctx context.Context, ssn *Session) (*Turn, error) {
	run, err := e.sched.execute(ctx, ssn)
	e.saveSnapshot(ctx, ssn)
	if err != nil {
		return nil, err
	}

	view := ssn.activePlan.View(ssn.skipped)
	reply := runReport(view, run)
	ssn.appendMessage(Message{Role: RoleAssistant, Content: reply})

	return &Turn{
		Kind:      TurnReport,
		SessionID: ssn.id,
		Reply:     reply,
		Plan:      &view,
		Pending:   ssn.pending,
	}, nil
}

// Cancel aborts the active plan. Reachable from any non-terminal state.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	ctx = ctxWithLogger(ctx, e.logger)

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	if ssn.activePlan == nil {
		return goerr.Wrap(ErrNoActivePlan, "nothing to cancel")
	}
	if err := ssn.activePlan.Cancel(); err != nil {
		return err
	}
	ssn.pending = nil
	e.saveSnapshot(ctx, ssn)
	return nil
}

// Lock forbids structural edits to the active plan.
func (e *Engine) Lock(ctx context.Context, sessionID string) error {
	ctx = ctxWithLogger(ctx, e.logger)

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	if ssn.activePlan == nil {
		return goerr.Wrap(ErrNoActivePlan, "nothing to lock")
	}
	if err := ssn.activePlan.Lock(); err != nil {
		return err
	}
	e.saveSnapshot(ctx, ssn)
	return nil
}

// Skip marks a task as skipped; its dependents treat it as satisfied.
// Skipping the pending confirmation resumes execution.
func (e *Engine) Skip(ctx context.Context, sessionID, taskID string) error {
	ctx = ctxWithLogger(ctx, e.logger)

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	if ssn.activePlan == nil {
		return goerr.Wrap(ErrNoActivePlan, "nothing to skip")
	}
	task := ssn.activePlan.task(taskID)
	if task == nil {
		return goerr.Wrap(ErrUnknownTask, "cannot skip task", goerr.V("task_id", taskID))
	}
	if task.Status.terminal() {
		return goerr.Wrap(ErrPlanTerminal, "task already finished",
			goerr.V("task_id", taskID), goerr.V("status", task.Status))
	}

	ssn.skipped[taskID] = struct{}{}
	if task.Status == TaskStatusBlocked {
		task.Status = TaskStatusPending
	}

	resume := ssn.pending != nil && ssn.pending.TaskID == taskID
	if resume {
		ssn.pending = nil
	}
	e.saveSnapshot(ctx, ssn)

	if resume && ssn.activePlan.Status() == PlanStatusAccepted {
		if _, err := e.run(ctx, ssn); err != nil {
			return err
		}
	}
	return nil
}

// Inspect returns a read-only view of the session's plan state.
func (e *Engine) Inspect(ctx context.Context, sessionID string) (*Inspection, error) {
	ctx = ctxWithLogger(ctx, e.logger)

	ssn, err := e.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ssn.mu.Lock()
	defer ssn.mu.Unlock()

	if ssn.activePlan == nil {
		return nil, goerr.Wrap(ErrNoActivePlan, "nothing to inspect")
	}

	view := ssn.activePlan.View(ssn.skipped)
	statuses := make(map[string]TaskStatus, len(view.Tasks))
	for _, t := range view.Tasks {
		statuses[t.ID] = t.Status
	}

	return &Inspection{
		SessionID: ssn.id,
		Plan:      view,
		Statuses:  statuses,
		Pending:   ssn.pending,
	}, nil
}

// runCommand serves slash and bare control commands conversationally.
func (e *Engine) runCommand(ctx context.Context, ssn *Session, command string) (*Turn, error) {
	reply := func(text string) (*Turn, error) {
		ssn.appendMessage(Message{Role: RoleAssistant, Content: text})
		return &Turn{Kind: TurnReply, SessionID: ssn.id, Reply: text}, nil
	}

	fields := strings.Fields(strings.ToLower(command))
	if len(fields) == 0 {
		return reply("Empty command. Try /help.")
	}

	switch fields[0] {
	case "help":
		return reply("Commands: help, status, approve, confirm, cancel, lock, reset. " +
			"Anything else is treated as conversation or a task request.")

	case "status":
		if ssn.activePlan == nil {
			return reply("No active plan.")
		}
		return reply(runReport(ssn.activePlan.View(ssn.skipped), ssn.lastRun))

	case "approve":
		if ssn.activePlan == nil {
			return reply("No plan to approve.")
		}
		if err := ssn.activePlan.Accept(); err != nil {
			return reply("The plan cannot be approved in its current state.")
		}
		e.saveSnapshot(ctx, ssn)
		return e.run(ctx, ssn)

	case "cancel":
		if ssn.activePlan == nil {
			return reply("No plan to cancel.")
		}
		if err := ssn.activePlan.Cancel(); err != nil {
			return reply("The plan already finished.")
		}
		ssn.pending = nil
		e.saveSnapshot(ctx, ssn)
		return reply("Plan cancelled.")

	case "lock":
		if ssn.activePlan == nil {
			return reply("No plan to lock.")
		}
		if err := ssn.activePlan.Lock(); err != nil {
			return reply("The plan already finished.")
		}
		e.saveSnapshot(ctx, ssn)
		return reply("Plan locked; its structure can no longer change.")

	case "reset":
		ssn.history = nil
		ssn.clearPlan()
		e.saveSnapshot(ctx, ssn)
		return reply("Session reset.")

	default:
		return reply("Unknown command. Try /help.")
	}
}

// session loads or lazily creates the session for an ID. An empty ID
// allocates a new session.
func (e *Engine) session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	ssn, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load session", goerr.V("session_id", id))
	}
	if ssn == nil {
		ssn = newSession(id, e.historyLimit, e.mode)
		if err := e.store.Save(ctx, ssn); err != nil {
			return nil, goerr.Wrap(err, "failed to save session", goerr.V("session_id", id))
		}
		LoggerFromContext(ctx).Debug("session created", "session_id", id)
	}
	return ssn, nil
}

func (e *Engine) saveSnapshot(ctx context.Context, ssn *Session) {
	if e.snapshots == nil {
		return
	}
	if err := e.snapshots.Save(ctx, snapshotSession(ssn)); err != nil {
		LoggerFromContext(ctx).Warn("snapshot save failed",
			"session_id", ssn.id, "error", err)
	}
}

// proposalSummary renders a proposed plan for the user.
func proposalSummary(view PlanView) string {
	var sb strings.Builder
	title := view.Title
	if title == "" {
		title = view.Goal
	}
	fmt.Fprintf(&sb, "Proposed plan: %s\n", title)
	for _, t := range view.Tasks {
		fmt.Fprintf(&sb, "  %s [%s] %s", t.ID, t.Capability, t.Description)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&sb, " (after %s)", strings.Join(t.DependsOn, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Approve to run it, or tell me what to change.")
	return sb.String()
}

// runReport aggregates per-task results into the reply text.
func runReport(view PlanView, run *PlanRun) string {
	var sb strings.Builder
	switch {
	case run != nil && run.Outcome == RunOutcomePaused:
		sb.WriteString("Plan paused, waiting for confirmation.\n")
	case view.Status == PlanStatusCompleted:
		sb.WriteString("Plan completed.\n")
	case view.Status == PlanStatusFailed:
		sb.WriteString("Plan failed.\n")
	case view.Status == PlanStatusCancelled:
		sb.WriteString("Plan cancelled.\n")
	default:
		fmt.Fprintf(&sb, "Plan is %s.\n", view.Status)
	}

	for _, t := range view.Tasks {
		marker := "[" + string(t.Status) + "]"
		if t.Skipped {
			marker = "[skipped]"
		}
		fmt.Fprintf(&sb, "  %s %s %s", marker, t.ID, t.Description)
		if t.Result != nil {
			if t.Result.Success && t.Result.Content != "" {
				fmt.Fprintf(&sb, ": %s", firstLine(t.Result.Content))
			} else if !t.Result.Success && t.Result.Error != "" {
				fmt.Fprintf(&sb, ": %s", firstLine(t.Result.Error))
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
