package taskory

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// buildGraph derives the dependency map from the tasks' DependsOn
// declarations. It is a direct echo used for lookup; validation is
// separate and runs once at plan creation.
func buildGraph(tasks []Task) map[string][]string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = append([]string(nil), t.DependsOn...)
	}
	return deps
}

// validateGraph checks that every task has a unique non-empty id, that
// every dependency references a task in the same plan, and that the
// dependency relation is acyclic. A self-dependency counts as a cycle.
// Id uniqueness is load-bearing: task lookup and result application
// resolve by id, so a duplicate would silently merge two tasks.
func validateGraph(tasks []Task) error {
	ids := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if strings.TrimSpace(t.ID) == "" {
			return goerr.Wrap(ErrInvalidTaskID, "graph validation failed",
				goerr.V("reason", "empty task id"))
		}
		if _, ok := ids[t.ID]; ok {
			return goerr.Wrap(ErrInvalidTaskID, "graph validation failed",
				goerr.V("task_id", t.ID), goerr.V("reason", "duplicate task id"))
		}
		ids[t.ID] = struct{}{}
	}

	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := ids[dep]; !ok {
				return goerr.Wrap(ErrUnknownDependency, "graph validation failed",
					goerr.V("task_id", t.ID), goerr.V("depends_on", dep))
			}
		}
		deps[t.ID] = t.DependsOn
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return goerr.Wrap(ErrCircularDependency, "graph validation failed",
				goerr.V("task_id", id))
		case visited:
			return nil
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		return nil
	}

	for _, t := range tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}
