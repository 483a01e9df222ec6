package taskory_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
)

func newTestPlan(t *testing.T) *taskory.Plan {
	t.Helper()
	plan, err := taskory.NewPlan(
		"Rename notes.txt and report the outcome",
		"Rename and report",
		taskory.DispatchSequential,
		[]taskory.Task{
			{ID: "t1", Description: "Rename notes.txt to draft.txt", Capability: taskory.CapabilityFile},
			{ID: "t2", Description: "Report the outcome", Capability: taskory.CapabilityConversation, DependsOn: []string{"t1"}},
		},
	)
	gt.NoError(t, err)
	return plan
}

func TestPlanLifecycle(t *testing.T) {
	t.Run("accept from proposed", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.Equal(t, plan.Status(), taskory.PlanStatusProposed)
		gt.NoError(t, plan.Accept())
		gt.Equal(t, plan.Status(), taskory.PlanStatusAccepted)
	})

	t.Run("accept is not repeatable", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.NoError(t, plan.Accept())
		err := plan.Accept()
		gt.True(t, errors.Is(err, taskory.ErrPlanNotApprovable))
	})

	t.Run("cancel from any non-terminal state", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.NoError(t, plan.Cancel())
		gt.Equal(t, plan.Status(), taskory.PlanStatusCancelled)

		err := plan.Cancel()
		gt.True(t, errors.Is(err, taskory.ErrPlanTerminal))
	})
}

func TestPlanStructuralEdits(t *testing.T) {
	t.Run("add task revalidates the graph", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.NoError(t, plan.AddTask(taskory.Task{
			ID: "t3", Description: "Verify the result", DependsOn: []string{"t1"},
		}))

		err := plan.AddTask(taskory.Task{
			ID: "t4", Description: "Depends on nothing known", DependsOn: []string{"t9"},
		})
		gt.True(t, errors.Is(err, taskory.ErrUnknownDependency))
	})

	t.Run("remove of a depended-on task fails", func(t *testing.T) {
		plan := newTestPlan(t)
		err := plan.RemoveTask("t1")
		gt.True(t, errors.Is(err, taskory.ErrUnknownDependency))
	})

	t.Run("remove leaf task", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.NoError(t, plan.RemoveTask("t2"))
	})

	t.Run("remove unknown task", func(t *testing.T) {
		plan := newTestPlan(t)
		err := plan.RemoveTask("t9")
		gt.True(t, errors.Is(err, taskory.ErrUnknownTask))
	})

	t.Run("locked plan rejects edits", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.NoError(t, plan.Lock())

		err := plan.AddTask(taskory.Task{ID: "t3", Description: "late addition"})
		gt.True(t, errors.Is(err, taskory.ErrPlanLocked))

		err = plan.RemoveTask("t2")
		gt.True(t, errors.Is(err, taskory.ErrPlanLocked))
	})
}

func TestPlanViewIsDetached(t *testing.T) {
	plan := newTestPlan(t)
	view := plan.View(nil)

	gt.A(t, view.Tasks).Length(2)
	gt.Equal(t, view.Status, taskory.PlanStatusProposed)

	// Mutating the view must not leak back into the plan.
	view.Tasks[0].Status = taskory.TaskStatusFailed
	view.Dependencies["t2"][0] = "bogus"

	fresh := plan.View(nil)
	gt.Equal(t, fresh.Tasks[0].Status, taskory.TaskStatusPending)
	gt.Equal(t, fresh.Dependencies["t2"], []string{"t1"})
}

func TestPlanViewMarksSkipped(t *testing.T) {
	plan := newTestPlan(t)
	view := plan.View(map[string]struct{}{"t1": {}})
	gt.True(t, view.Tasks[0].Skipped)
	gt.B(t, view.Tasks[1].Skipped).False()
}

func TestPlanSerialization(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		plan := newTestPlan(t)
		gt.NoError(t, plan.Accept())

		data, err := json.Marshal(plan)
		gt.NoError(t, err)

		var restored taskory.Plan
		gt.NoError(t, json.Unmarshal(data, &restored))

		gt.Equal(t, restored.ID(), plan.ID())
		gt.Equal(t, restored.Goal(), plan.Goal())
		gt.Equal(t, restored.Status(), taskory.PlanStatusAccepted)
		gt.Equal(t, restored.View(nil).Tasks, plan.View(nil).Tasks)
	})

	t.Run("version mismatch is rejected", func(t *testing.T) {
		var restored taskory.Plan
		err := json.Unmarshal([]byte(`{"version": 99, "id": "x", "tasks": []}`), &restored)
		gt.Error(t, err)
	})

	t.Run("corrupt graph is rejected", func(t *testing.T) {
		raw := `{"version": 1, "id": "x", "status": "proposed",
			"tasks": [{"id": "t1", "description": "d", "depends_on": ["t9"]}]}`
		var restored taskory.Plan
		err := json.Unmarshal([]byte(raw), &restored)
		gt.True(t, errors.Is(err, taskory.ErrUnknownDependency))
	})
}
