package taskory_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
)

func TestSnapshotRoundtrip(t *testing.T) {
	plan := newTestPlan(t)
	snap := &taskory.Snapshot{
		Version:   taskory.SnapshotVersion,
		SessionID: "s1",
		Mode:      taskory.ExecutionModeManual,
		History: []taskory.Message{
			{Role: taskory.RoleUser, Content: "rename notes.txt to draft.txt"},
		},
		Plan:     plan,
		Executed: []string{"t1"},
		Skipped:  []string{"t2"},
		SavedAt:  time.Now(),
	}

	ssn, err := taskory.RestoreSession(snap, taskory.DefaultHistoryLimit)
	gt.NoError(t, err)
	gt.Equal(t, ssn.ID(), "s1")
	gt.A(t, ssn.TestHistory()).Length(1)
	gt.NotNil(t, ssn.TestActivePlan())
	gt.Equal(t, ssn.TestActivePlan().ID(), plan.ID())
	gt.Equal(t, ssn.TestExecuted(), []string{"t1"})

	// The restored session's snapshot carries the same state forward.
	again := taskory.SnapshotSession(ssn)
	gt.Equal(t, again.SessionID, "s1")
	gt.Equal(t, again.Executed, []string{"t1"})
	gt.Equal(t, again.Skipped, []string{"t2"})
	gt.Equal(t, again.History, snap.History)
}

func TestRestoreSessionVersionMismatch(t *testing.T) {
	snap := &taskory.Snapshot{Version: 99, SessionID: "s1"}
	_, err := taskory.RestoreSession(snap, taskory.DefaultHistoryLimit)
	gt.Error(t, err)
}

func TestFileSnapshotRepository(t *testing.T) {
	repo, err := taskory.NewFileSnapshotRepository(t.TempDir())
	gt.NoError(t, err)

	loaded, err := repo.Load(t.Context(), "absent")
	gt.NoError(t, err)
	gt.Nil(t, loaded)

	plan := newTestPlan(t)
	snap := &taskory.Snapshot{
		Version:   taskory.SnapshotVersion,
		SessionID: "s1",
		Mode:      taskory.ExecutionModeManual,
		History: []taskory.Message{
			{Role: taskory.RoleUser, Content: "rename notes.txt to draft.txt"},
		},
		Plan:    plan,
		SavedAt: time.Now(),
	}
	gt.NoError(t, repo.Save(t.Context(), snap))

	loaded, err = repo.Load(t.Context(), "s1")
	gt.NoError(t, err)
	gt.NotNil(t, loaded)
	gt.Equal(t, loaded.Version, taskory.SnapshotVersion)
	gt.Equal(t, loaded.SessionID, "s1")
	gt.NotNil(t, loaded.Plan)
	gt.Equal(t, loaded.Plan.ID(), plan.ID())
	gt.Equal(t, loaded.Plan.Status(), taskory.PlanStatusProposed)

	// A second save replaces the previous snapshot.
	snap.History = append(snap.History, taskory.Message{Role: taskory.RoleAssistant, Content: "done"})
	gt.NoError(t, repo.Save(t.Context(), snap))

	loaded, err = repo.Load(t.Context(), "s1")
	gt.NoError(t, err)
	gt.A(t, loaded.History).Length(2)
}

func TestEngineWritesSnapshots(t *testing.T) {
	repo, err := taskory.NewFileSnapshotRepository(t.TempDir())
	gt.NoError(t, err)

	llm := &mockLLMClient{responses: []string{renamePlanJSON}}
	conv := mockConversation("ok")
	file := mockKind(taskory.CapabilityFile, false, okInvoke("renamed"))
	engine := newTestEngine(t, llm, []taskory.CapabilitySet{conv, file},
		taskory.WithSnapshotRepository(repo))

	_, err = engine.Chat(t.Context(), "s1", "rename notes.txt to draft.txt")
	gt.NoError(t, err)

	snap, err := repo.Load(t.Context(), "s1")
	gt.NoError(t, err)
	gt.NotNil(t, snap)
	gt.NotNil(t, snap.Plan)
	gt.Equal(t, snap.Plan.Status(), taskory.PlanStatusProposed)

	_, err = engine.Approve(t.Context(), "s1")
	gt.NoError(t, err)

	snap, err = repo.Load(t.Context(), "s1")
	gt.NoError(t, err)
	gt.Equal(t, snap.Plan.Status(), taskory.PlanStatusCompleted)

	// Completed task ids travel with the snapshot.
	gt.Equal(t, snap.Executed, []string{"t1"})
}
