package agents

import (
	"context"

	"github.com/graniet/kheish/internal/task"
)

// Role names used by the workflow and the agent mailboxes.
const (
	RoleProposer  = "proposer"
	RoleReviewer  = "reviewer"
	RoleValidator = "validator"
	RoleFormatter = "formatter"
)

// Request hands the task to an agent. The worker gives up its reference
// when it sends one; the task comes back in the Response.
type Request struct {
	Role string
	Task task.Task
}

// Response returns the task to the worker together with the step
// outcome.
type Response struct {
	Role    string
	Outcome Outcome
	Task    task.Task
}

// Agent is one workflow role. ExecuteStep runs a single turn against
// the LLM and returns the mutated task with its outcome.
type Agent interface {
	Role() string
	ExecuteStep(ctx context.Context, t task.Task) (Outcome, task.Task)
}

// Run drives an agent's mailbox until the context is cancelled or the
// inbox closes. Requests for other roles are dropped.
func Run(ctx context.Context, a Agent, inbox <-chan Request, out chan<- Response) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-inbox:
			if !ok {
				return
			}
			if req.Role != a.Role() {
				continue
			}
			outcome, t := a.ExecuteStep(ctx, req.Task)
			select {
			case out <- Response{Role: req.Role, Outcome: outcome, Task: t}:
			case <-ctx.Done():
				return
			}
		}
	}
}
