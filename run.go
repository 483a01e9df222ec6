package taskory

import "time"

// PlanRun is an ephemeral per-execution-attempt record kept for
// observability. It is not authoritative state; the Plan and its tasks
// remain the source of truth.
type PlanRun struct {
	PlanID    string              `json:"plan_id"`
	StartedAt time.Time           `json:"started_at"`
	Steps     map[string]*StepRun `json:"steps"`
	Outcome   string              `json:"outcome,omitempty"`
}

// StepRun records one task's progress within a run.
type StepRun struct {
	Status     TaskStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func newPlanRun(planID string) *PlanRun {
	return &PlanRun{
		PlanID:    planID,
		StartedAt: time.Now(),
		Steps:     map[string]*StepRun{},
	}
}

func (r *PlanRun) step(taskID string) *StepRun {
	if s, ok := r.Steps[taskID]; ok {
		return s
	}
	s := &StepRun{}
	r.Steps[taskID] = s
	return s
}

func (r *PlanRun) recordStart(taskID string) {
	s := r.step(taskID)
	s.Status = TaskStatusRunning
	s.StartedAt = time.Now()
}

func (r *PlanRun) recordResult(taskID string, res workerResult) {
	s := r.step(taskID)
	s.FinishedAt = time.Now()
	if res.success {
		s.Status = TaskStatusCompleted
		s.Output = res.content
	} else {
		s.Status = TaskStatusFailed
		if res.err != nil {
			s.Error = res.err.Error()
		}
	}
}
