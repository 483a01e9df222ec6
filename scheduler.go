package taskory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

const (
	// maxTaskRetries caps total attempts for a transiently failing
	// task; the attempt that reaches it is permanent.
	maxTaskRetries = 2

	// DefaultFailureBudget is how many permanently failed tasks a plan
	// tolerates before execution aborts.
	DefaultFailureBudget = 3

	// DefaultTaskTimeout bounds one worker invocation.
	DefaultTaskTimeout = 30 * time.Second
)

// Run outcomes reported on a PlanRun.
const (
	RunOutcomeCompleted = "completed"
	RunOutcomeFailed    = "failed"
	RunOutcomePaused    = "paused"
	RunOutcomeCancelled = "cancelled"
)

// scheduler drives an accepted plan to a terminal status. It recomputes
// readiness after every batch, dispatches ready tasks to workers, and
// applies results strictly after the whole batch has returned. The
// caller holds the session lock for the duration of execute; workers
// themselves never touch session state.
type scheduler struct {
	caps          map[Capability]boundCapability
	taskTimeout   time.Duration
	failureBudget int

	taskStartHook         TaskStartHook
	taskCompletedHook     TaskCompletedHook
	permissionRequestHook PermissionRequestHook
	planFinishedHook      PlanFinishedHook
}

type dispatchOutcome struct {
	taskID string
	result workerResult
}

// execute runs the session's active plan until it settles, pauses on a
// confirmation, or is cancelled. The returned run is also stored on the
// session.
func (s *scheduler) execute(ctx context.Context, ssn *Session) (*PlanRun, error) {
	plan := ssn.activePlan
	if plan == nil {
		return nil, goerr.Wrap(ErrNoActivePlan, "nothing to execute")
	}
	if plan.Status() != PlanStatusAccepted {
		return nil, goerr.Wrap(ErrPlanNotApprovable, "plan is not accepted",
			goerr.V("status", plan.Status()))
	}

	logger := LoggerFromContext(ctx)

	run := ssn.lastRun
	if run == nil {
		run = newPlanRun(plan.ID())
		ssn.lastRun = run
	}

	for {
		if err := ctx.Err(); err != nil {
			run.Outcome = RunOutcomeCancelled
			return run, goerr.Wrap(err, "execution cancelled")
		}
		if plan.Status().terminal() {
			break
		}

		plan.refreshReadiness(ssn.skipped)

		dispatchable, gated := s.partition(ssn, plan.readyTasks(ssn.skipped))

		if len(dispatchable) == 0 {
			if len(gated) > 0 {
				return s.pause(ctx, ssn, run, gated[0])
			}
			break
		}

		batch := dispatchable
		if plan.Dispatch() == DispatchSequential {
			batch = batch[:1]
		}

		outcomes, err := s.dispatch(ctx, ssn, plan, run, batch)
		if err != nil {
			run.Outcome = RunOutcomeCancelled
			return run, err
		}

		for _, out := range outcomes {
			if err := s.apply(ctx, ssn, plan, run, out); err != nil {
				return run, err
			}
		}

		if s.failedCount(plan) > s.failureBudget {
			logger.Warn("failure budget exceeded",
				"plan_id", plan.ID(), "budget", s.failureBudget)
			break
		}
	}

	return s.finish(ctx, ssn, run)
}

// partition splits ready tasks into ones that may dispatch now and ones
// waiting on a confirmation. Gating applies only in manual mode and
// only until the task has been explicitly allowed.
func (s *scheduler) partition(ssn *Session, ready []*Task) (dispatchable, gated []*Task) {
	for _, t := range ready {
		bound, ok := s.caps[t.Capability]
		needsConfirm := ok && bound.spec.RequiresConfirmation && ssn.mode == ExecutionModeManual
		if needsConfirm {
			if _, allowed := ssn.allowed[t.ID]; !allowed {
				gated = append(gated, t)
				continue
			}
		}
		dispatchable = append(dispatchable, t)
	}
	return dispatchable, gated
}

// pause marks the gated task blocked, records the pending permission and
// returns a paused run. Execution resumes through Confirm.
func (s *scheduler) pause(ctx context.Context, ssn *Session, run *PlanRun, t *Task) (*PlanRun, error) {
	t.Status = TaskStatusBlocked
	req := &PermissionRequest{TaskID: t.ID, Capability: t.Capability}
	ssn.pending = req

	LoggerFromContext(ctx).Info("execution paused for confirmation",
		"task_id", t.ID, "capability", t.Capability)

	if err := s.permissionRequestHook(ctx, *req); err != nil {
		return run, goerr.Wrap(err, "permission request hook failed")
	}

	run.Outcome = RunOutcomePaused
	return run, nil
}

// dispatch runs one batch of tasks concurrently and returns every
// outcome. Worker failures are data, not errors; only cancellation of
// the surrounding context aborts the batch.
func (s *scheduler) dispatch(ctx context.Context, ssn *Session, plan *Plan, run *PlanRun, batch []*Task) ([]dispatchOutcome, error) {
	outcomes := make([]dispatchOutcome, len(batch))

	for _, t := range batch {
		t.Status = TaskStatusRunning
		run.recordStart(t.ID)
		if err := s.taskStartHook(ctx, taskView(t, ssn.skipped)); err != nil {
			return nil, goerr.Wrap(err, "task start hook failed")
		}
	}

	eg, gctx := errgroup.WithContext(ctx)
	for i, t := range batch {
		bound, ok := s.caps[t.Capability]
		if !ok {
			outcomes[i] = dispatchOutcome{
				taskID: t.ID,
				result: workerResult{err: goerr.Wrap(ErrCapabilityNotFound,
					"no worker for capability",
					goerr.V("capability", t.Capability), goerr.T(TagValidation))},
			}
			continue
		}

		w := spawnWorker(bound, t.Description, dependencyInputs(plan, t), s.taskTimeout)
		eg.Go(func() error {
			outcomes[i] = dispatchOutcome{taskID: t.ID, result: w.run(gctx)}
			return nil
		})
	}

	_ = eg.Wait()

	// Late results from a cancelled batch are discarded; the plan is
	// left for the caller to cancel.
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "batch cancelled")
	}
	return outcomes, nil
}

// apply folds one worker outcome back into the plan. Transient failures
// under the retry ceiling return the task to pending; everything else
// is terminal for the task. Completed task ids are recorded on the
// session alongside the skip set.
func (s *scheduler) apply(ctx context.Context, ssn *Session, plan *Plan, run *PlanRun, out dispatchOutcome) error {
	t := plan.task(out.taskID)
	if t == nil {
		return goerr.Wrap(ErrUnknownTask, "result for unknown task", goerr.V("task_id", out.taskID))
	}

	logger := LoggerFromContext(ctx)
	res := out.result
	run.recordResult(t.ID, res)

	if res.success {
		t.Status = TaskStatusCompleted
		t.Result = &TaskResult{Success: true, Content: res.content, FinishedAt: time.Now()}
		ssn.executed[t.ID] = struct{}{}
		plan.touch()
		return s.taskCompletedHook(ctx, taskView(t, nil))
	}

	t.FailureCount++
	if res.transient() && t.FailureCount < maxTaskRetries {
		logger.Warn("task failed, retrying",
			"task_id", t.ID, "attempt", t.FailureCount, "error", res.err)
		t.Status = TaskStatusPending
		return nil
	}

	logger.Warn("task failed permanently",
		"task_id", t.ID, "attempts", t.FailureCount, "error", res.err)
	t.Status = TaskStatusFailed
	t.Result = &TaskResult{Success: false, Error: errString(res.err), FinishedAt: time.Now()}
	plan.touch()
	return s.taskCompletedHook(ctx, taskView(t, nil))
}

// finish decides the plan's terminal status. A plan completes only when
// every task completed (or was explicitly skipped); any permanent task
// failure, or a task stranded behind one, fails the plan.
func (s *scheduler) finish(ctx context.Context, ssn *Session, run *PlanRun) (*PlanRun, error) {
	plan := ssn.activePlan

	unreachable := plan.unreachableTasks(ssn.skipped)
	failed := s.failedCount(plan)

	switch {
	case len(unreachable) > 0 || failed > 0:
		plan.markFailed()
		run.Outcome = RunOutcomeFailed
		LoggerFromContext(ctx).Info("plan failed",
			"plan_id", plan.ID(), "unreachable", unreachable, "failed_tasks", failed)
	default:
		plan.markCompleted()
		run.Outcome = RunOutcomeCompleted
		LoggerFromContext(ctx).Info("plan completed", "plan_id", plan.ID())
	}

	if err := s.planFinishedHook(ctx, plan.View(ssn.skipped)); err != nil {
		return run, goerr.Wrap(err, "plan finished hook failed")
	}
	return run, nil
}

func (s *scheduler) failedCount(plan *Plan) int {
	n := 0
	for i := range plan.tasks {
		if plan.tasks[i].Status == TaskStatusFailed {
			n++
		}
	}
	return n
}

// dependencyInputs collects the outputs of a task's satisfied
// dependencies for explicit forwarding to its worker.
func dependencyInputs(plan *Plan, t *Task) map[string]string {
	var inputs map[string]string
	for _, dep := range t.DependsOn {
		d := plan.task(dep)
		if d == nil || d.Result == nil || !d.Result.Success {
			continue
		}
		if inputs == nil {
			inputs = map[string]string{}
		}
		inputs[dep] = d.Result.Content
	}
	return inputs
}

func taskView(t *Task, skipped map[string]struct{}) TaskView {
	_, isSkipped := skipped[t.ID]
	var result *TaskResult
	if t.Result != nil {
		r := *t.Result
		result = &r
	}
	return TaskView{
		ID:           t.ID,
		Description:  t.Description,
		Capability:   t.Capability,
		Status:       t.Status,
		DependsOn:    append([]string(nil), t.DependsOn...),
		Result:       result,
		FailureCount: t.FailureCount,
		Skipped:      isSkipped,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
