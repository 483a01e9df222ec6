package taskory

import "context"

// Hooks let the embedding application observe the plan lifecycle. Every
// hook defaults to a no-op; a hook error aborts the operation that
// triggered it.

// PlanCreatedHook is called when a synthesized plan has passed the
// quality gate and been attached to the session as proposed.
type PlanCreatedHook func(ctx context.Context, plan PlanView) error

// TaskStartHook is called just before a task is dispatched to its
// worker.
type TaskStartHook func(ctx context.Context, task TaskView) error

// TaskCompletedHook is called after a task reaches a terminal status.
type TaskCompletedHook func(ctx context.Context, task TaskView) error

// PermissionRequestHook is called when execution pauses on a
// confirmation-gated task.
type PermissionRequestHook func(ctx context.Context, req PermissionRequest) error

// PlanFinishedHook is called when a plan reaches a terminal status.
type PlanFinishedHook func(ctx context.Context, plan PlanView) error

func noopPlanCreatedHook(context.Context, PlanView) error   { return nil }
func noopTaskStartHook(context.Context, TaskView) error     { return nil }
func noopTaskCompletedHook(context.Context, TaskView) error { return nil }
func noopPermissionRequestHook(context.Context, PermissionRequest) error {
	return nil
}
func noopPlanFinishedHook(context.Context, PlanView) error { return nil }
