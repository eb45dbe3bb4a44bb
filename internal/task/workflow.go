package task

import "github.com/graniet/kheish/internal/config"

// RoleCompleted is the special workflow target that terminates a task
// successfully instead of naming a next role.
const RoleCompleted = "completed"

// Workflow is the per-task lookup table mapping (current role, outcome
// condition) to the next role. It is configured once and never mutated.
type Workflow struct {
	steps []config.WorkflowStep
}

// NewWorkflow creates a workflow from the configured step list.
func NewWorkflow(steps []config.WorkflowStep) Workflow {
	return Workflow{steps: steps}
}

// NextRole returns the `to` of the first step matching (from,
// condition). Absence of a match is a terminal orchestration error for
// the caller, not a panic.
func (w Workflow) NextRole(from, condition string) (string, bool) {
	for _, step := range w.steps {
		if step.From == from && step.Condition == condition {
			return step.To, true
		}
	}
	return "", false
}
