package taskory

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Capability is the closed set of worker domains a task can be bound
// to. Unknown synthesizer output is coerced to CapabilityUnknown rather
// than rejected.
type Capability string

const (
	CapabilityConversation Capability = "conversation"
	CapabilityFile         Capability = "file"
	CapabilityShell        Capability = "shell"
	CapabilityWeb          Capability = "web"
	CapabilityCode         Capability = "code"
	CapabilityUnknown      Capability = "unknown"
)

// ParseCapability coerces a synthesizer step type into the closed
// Capability enum.
func ParseCapability(s string) Capability {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conversation", "chat", "respond", "clarification", "answer":
		return CapabilityConversation
	case "file", "filesystem", "notes", "document":
		return CapabilityFile
	case "shell", "command", "terminal", "exec":
		return CapabilityShell
	case "web", "research", "search", "fetch", "browse":
		return CapabilityWeb
	case "code", "script", "program":
		return CapabilityCode
	default:
		return CapabilityUnknown
	}
}

// TaskStatus represents the status of a single task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusWaiting   TaskStatus = "waiting"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusBlocked   TaskStatus = "blocked"
	TaskStatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskResult is the outcome of one worker invocation.
type TaskResult struct {
	Success    bool      `json:"success"`
	Content    string    `json:"content,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Task is a single unit of work bound to one capability, with explicit
// dependencies on other tasks in the same plan.
type Task struct {
	ID           string      `json:"id"`
	Description  string      `json:"description"`
	Capability   Capability  `json:"capability"`
	Status       TaskStatus  `json:"status"`
	DependsOn    []string    `json:"depends_on,omitempty"`
	Result       *TaskResult `json:"result,omitempty"`
	FailureCount int         `json:"failure_count,omitempty"`
}

// PlanStatus represents the lifecycle state of a plan. The locked flag
// is an orthogonal modifier and not part of this enum.
type PlanStatus string

const (
	PlanStatusProposed  PlanStatus = "proposed"
	PlanStatusAccepted  PlanStatus = "accepted"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

func (s PlanStatus) terminal() bool {
	switch s {
	case PlanStatusCompleted, PlanStatusFailed, PlanStatusCancelled:
		return true
	}
	return false
}

// ExecutionMode governs whether confirmation-requiring steps pause for
// explicit approval.
type ExecutionMode string

const (
	ExecutionModeManual   ExecutionMode = "manual"
	ExecutionModeDisabled ExecutionMode = "disabled"
)

// DispatchMode governs whether ready tasks are dispatched one at a time
// or as a parallel batch.
type DispatchMode string

const (
	DispatchSequential DispatchMode = "sequential"
	DispatchParallel   DispatchMode = "parallel"
)

// Plan is a structured decomposition of one user request into dependent
// tasks. A plan is owned exclusively by one session for its lifetime.
type Plan struct {
	id           string
	goal         string
	title        string
	tasks        []Task
	dependencies map[string][]string
	status       PlanStatus
	locked       bool
	dispatch     DispatchMode
	createdAt    time.Time
	updatedAt    time.Time
}

// newPlan constructs a plan and validates its dependency graph. Any
// graph violation aborts construction; no partial plan is returned.
func newPlan(goal, title string, dispatch DispatchMode, tasks []Task) (*Plan, error) {
	if dispatch != DispatchParallel {
		dispatch = DispatchSequential
	}

	for i := range tasks {
		if tasks[i].Status == "" {
			tasks[i].Status = TaskStatusPending
		}
	}

	if err := validateGraph(tasks); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Plan{
		id:           uuid.New().String(),
		goal:         goal,
		title:        title,
		tasks:        tasks,
		dependencies: buildGraph(tasks),
		status:       PlanStatusProposed,
		dispatch:     dispatch,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

func (p *Plan) ID() string             { return p.id }
func (p *Plan) Goal() string           { return p.goal }
func (p *Plan) Title() string          { return p.title }
func (p *Plan) Status() PlanStatus     { return p.status }
func (p *Plan) Locked() bool           { return p.locked }
func (p *Plan) Dispatch() DispatchMode { return p.dispatch }

func (p *Plan) touch() {
	p.updatedAt = time.Now()
}

// Accept moves a proposed plan to accepted so the scheduler may run it.
func (p *Plan) Accept() error {
	if p.status != PlanStatusProposed {
		return goerr.Wrap(ErrPlanNotApprovable, "cannot accept plan",
			goerr.V("status", p.status))
	}
	p.status = PlanStatusAccepted
	p.touch()
	return nil
}

// Lock forbids structural edits. Status transitions remain allowed.
func (p *Plan) Lock() error {
	if p.status.terminal() {
		return goerr.Wrap(ErrPlanTerminal, "cannot lock plan", goerr.V("status", p.status))
	}
	p.locked = true
	p.touch()
	return nil
}

// Cancel is reachable from any non-terminal state.
func (p *Plan) Cancel() error {
	if p.status.terminal() {
		return goerr.Wrap(ErrPlanTerminal, "cannot cancel plan", goerr.V("status", p.status))
	}
	p.status = PlanStatusCancelled
	p.touch()
	return nil
}

func (p *Plan) markCompleted() {
	p.status = PlanStatusCompleted
	p.touch()
}

func (p *Plan) markFailed() {
	p.status = PlanStatusFailed
	p.touch()
}

func (p *Plan) task(id string) *Task {
	for i := range p.tasks {
		if p.tasks[i].ID == id {
			return &p.tasks[i]
		}
	}
	return nil
}

// AddTask appends a task and revalidates the graph. Structural edits
// are rejected on locked or terminal plans.
func (p *Plan) AddTask(task Task) error {
	if p.locked {
		return goerr.Wrap(ErrPlanLocked, "cannot add task")
	}
	if p.status.terminal() {
		return goerr.Wrap(ErrPlanTerminal, "cannot add task", goerr.V("status", p.status))
	}
	if task.Status == "" {
		task.Status = TaskStatusPending
	}

	next := append(slices.Clone(p.tasks), task)
	if err := validateGraph(next); err != nil {
		return err
	}
	p.tasks = next
	p.dependencies = buildGraph(next)
	p.touch()
	return nil
}

// RemoveTask deletes a task. Tasks that other tasks depend on cannot be
// removed.
func (p *Plan) RemoveTask(id string) error {
	if p.locked {
		return goerr.Wrap(ErrPlanLocked, "cannot remove task")
	}
	if p.status.terminal() {
		return goerr.Wrap(ErrPlanTerminal, "cannot remove task", goerr.V("status", p.status))
	}
	idx := slices.IndexFunc(p.tasks, func(t Task) bool { return t.ID == id })
	if idx < 0 {
		return goerr.Wrap(ErrUnknownTask, "cannot remove task", goerr.V("task_id", id))
	}

	next := slices.Delete(slices.Clone(p.tasks), idx, idx+1)
	if err := validateGraph(next); err != nil {
		return err
	}
	p.tasks = next
	p.dependencies = buildGraph(next)
	p.touch()
	return nil
}

// depSatisfied reports whether a dependency counts as fulfilled:
// completed normally, or explicitly skipped by the user.
func (p *Plan) depSatisfied(id string, skipped map[string]struct{}) bool {
	if _, ok := skipped[id]; ok {
		return true
	}
	t := p.task(id)
	return t != nil && t.Status == TaskStatusCompleted
}

// refreshReadiness flips pending tasks with unmet dependencies to
// waiting and waiting tasks with met dependencies back to pending.
// Terminal statuses are never revisited.
func (p *Plan) refreshReadiness(skipped map[string]struct{}) {
	for i := range p.tasks {
		t := &p.tasks[i]
		if t.Status != TaskStatusPending && t.Status != TaskStatusWaiting {
			continue
		}

		met := true
		for _, dep := range t.DependsOn {
			if !p.depSatisfied(dep, skipped) {
				met = false
				break
			}
		}
		if met {
			t.Status = TaskStatusPending
		} else {
			t.Status = TaskStatusWaiting
		}
	}
}

// readyTasks returns tasks that are pending with every dependency
// satisfied, excluding skipped ones, in plan order.
func (p *Plan) readyTasks(skipped map[string]struct{}) []*Task {
	var ready []*Task
	for i := range p.tasks {
		t := &p.tasks[i]
		if _, ok := skipped[t.ID]; ok {
			continue
		}
		if t.Status != TaskStatusPending {
			continue
		}
		ok := true
		for _, dep := range t.DependsOn {
			if !p.depSatisfied(dep, skipped) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// unreachableTasks returns non-terminal tasks that can never become
// ready because a transitive dependency failed permanently.
func (p *Plan) unreachableTasks(skipped map[string]struct{}) []string {
	failed := map[string]bool{}
	for _, t := range p.tasks {
		if t.Status == TaskStatusFailed {
			failed[t.ID] = true
		}
	}

	var memo func(id string, seen map[string]bool) bool
	memo = func(id string, seen map[string]bool) bool {
		if failed[id] {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		t := p.task(id)
		if t == nil {
			return false
		}
		for _, dep := range t.DependsOn {
			if _, ok := skipped[dep]; ok {
				continue
			}
			if memo(dep, seen) {
				return true
			}
		}
		return false
	}

	var unreachable []string
	for _, t := range p.tasks {
		if t.Status.terminal() {
			continue
		}
		if _, ok := skipped[t.ID]; ok {
			continue
		}
		for _, dep := range t.DependsOn {
			if _, ok := skipped[dep]; ok {
				continue
			}
			if memo(dep, map[string]bool{}) {
				unreachable = append(unreachable, t.ID)
				break
			}
		}
	}
	return unreachable
}

// settled reports whether no task is pending, waiting or running.
func (p *Plan) settled(skipped map[string]struct{}) bool {
	for _, t := range p.tasks {
		if _, ok := skipped[t.ID]; ok {
			continue
		}
		switch t.Status {
		case TaskStatusPending, TaskStatusWaiting, TaskStatusRunning:
			return false
		}
	}
	return true
}

// TaskView is a public snapshot of a task.
type TaskView struct {
	ID           string      `json:"id"`
	Description  string      `json:"description"`
	Capability   Capability  `json:"capability"`
	Status       TaskStatus  `json:"status"`
	DependsOn    []string    `json:"depends_on,omitempty"`
	Result       *TaskResult `json:"result,omitempty"`
	FailureCount int         `json:"failure_count,omitempty"`
	Skipped      bool        `json:"skipped,omitempty"`
}

// PlanView is a public snapshot of a plan for presentation by an
// external UI. It never aliases the plan's internal state.
type PlanView struct {
	ID           string              `json:"id"`
	Goal         string              `json:"goal"`
	Title        string              `json:"title"`
	Status       PlanStatus          `json:"status"`
	Locked       bool                `json:"locked"`
	Dispatch     DispatchMode        `json:"dispatch"`
	Tasks        []TaskView          `json:"tasks"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// View returns a deep copy of the plan's observable state.
func (p *Plan) View(skipped map[string]struct{}) PlanView {
	tasks := make([]TaskView, len(p.tasks))
	for i, t := range p.tasks {
		_, isSkipped := skipped[t.ID]
		var result *TaskResult
		if t.Result != nil {
			r := *t.Result
			result = &r
		}
		tasks[i] = TaskView{
			ID:           t.ID,
			Description:  t.Description,
			Capability:   t.Capability,
			Status:       t.Status,
			DependsOn:    slices.Clone(t.DependsOn),
			Result:       result,
			FailureCount: t.FailureCount,
			Skipped:      isSkipped,
		}
	}

	deps := make(map[string][]string, len(p.dependencies))
	for id, on := range p.dependencies {
		deps[id] = slices.Clone(on)
	}

	return PlanView{
		ID:           p.id,
		Goal:         p.goal,
		Title:        p.title,
		Status:       p.status,
		Locked:       p.locked,
		Dispatch:     p.dispatch,
		Tasks:        tasks,
		Dependencies: deps,
		CreatedAt:    p.createdAt,
		UpdatedAt:    p.updatedAt,
	}
}

const PlanVersion = 1

// planData is the serializable shape of a plan.
type planData struct {
	Version   int          `json:"version"`
	ID        string       `json:"id"`
	Goal      string       `json:"goal"`
	Title     string       `json:"title"`
	Status    PlanStatus   `json:"status"`
	Locked    bool         `json:"locked"`
	Dispatch  DispatchMode `json:"dispatch"`
	Tasks     []Task       `json:"tasks"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler for Plan.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planData{
		Version:   PlanVersion,
		ID:        p.id,
		Goal:      p.goal,
		Title:     p.title,
		Status:    p.status,
		Locked:    p.locked,
		Dispatch:  p.dispatch,
		Tasks:     p.tasks,
		CreatedAt: p.createdAt,
		UpdatedAt: p.updatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Plan. The dependency
// map is recomputed and the graph revalidated; a snapshot that fails
// validation is rejected as a whole.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var pd planData
	if err := json.Unmarshal(data, &pd); err != nil {
		return goerr.Wrap(err, "failed to unmarshal plan data")
	}
	if pd.Version != PlanVersion {
		return goerr.New("plan version mismatch",
			goerr.V("expected", PlanVersion), goerr.V("actual", pd.Version))
	}
	if err := validateGraph(pd.Tasks); err != nil {
		return err
	}

	p.id = pd.ID
	p.goal = pd.Goal
	p.title = pd.Title
	p.status = pd.Status
	p.locked = pd.Locked
	p.dispatch = pd.Dispatch
	p.tasks = pd.Tasks
	p.dependencies = buildGraph(pd.Tasks)
	p.createdAt = pd.CreatedAt
	p.updatedAt = pd.UpdatedAt
	return nil
}
