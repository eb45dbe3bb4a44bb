// Package task defines the unit of work driven through the role
// workflow, its lifecycle states and the workflow lookup table.
package task

import (
	"time"

	"github.com/graniet/kheish/internal/llm"
)

// MaxFeedbackHistory bounds the feedback ring; the oldest entry is
// dropped first.
const MaxFeedbackHistory = 50

// Task is the unit of work. It travels by value through the worker and
// agent mailboxes: a request carries the task, the response carries the
// possibly mutated task back, so no two goroutines ever share one.
type Task struct {
	ID          string `json:"task_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       State  `json:"-"`

	Context Context `json:"context"`

	// Conversation is the append-only LLM transcript shared by every role.
	Conversation []llm.ChatMessage `json:"conversation"`

	// ProposalHistory holds every proposal ever produced;
	// CurrentProposal is always its last element, or empty.
	ProposalHistory []string `json:"proposal_history"`
	CurrentProposal string   `json:"current_proposal,omitempty"`

	FeedbackHistory        []string `json:"feedback_history"`
	ModuleExecutionHistory []string `json:"module_execution_history"`

	FinalOutput string `json:"final_output,omitempty"`

	// Interval makes the task recurring; empty means one-shot.
	Interval  string     `json:"interval,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// New creates a task in the New state.
func New(id, name, description string, ctx Context, interval string) Task {
	return Task{
		ID:          id,
		Name:        name,
		Description: description,
		State:       NewState(StateNew),
		Context:     ctx,
		Interval:    interval,
	}
}

// AddMessage appends a message to the conversation.
func (t *Task) AddMessage(role, content string) {
	t.Conversation = append(t.Conversation, llm.NewChatMessage(role, content))
}

// AddProposal records a proposal and makes it current.
func (t *Task) AddProposal(proposal string) {
	t.ProposalHistory = append(t.ProposalHistory, proposal)
	t.CurrentProposal = proposal
}

// SetFeedback pushes feedback onto the bounded history. Approvals push
// an empty entry, clearing the pending feedback for the next prompt.
func (t *Task) SetFeedback(feedback string) {
	t.FeedbackHistory = append(t.FeedbackHistory, feedback)
	for len(t.FeedbackHistory) > MaxFeedbackHistory {
		t.FeedbackHistory = t.FeedbackHistory[1:]
	}
}

// FeedbackForPrompt joins the feedback history for prompt injection.
func (t *Task) FeedbackForPrompt() string {
	return joinNonEmpty(t.FeedbackHistory)
}

// AddModuleExecution records one capability invocation summary.
func (t *Task) AddModuleExecution(execution string) {
	t.ModuleExecutionHistory = append(t.ModuleExecutionHistory, execution)
}

// HasSystemMessage reports whether the conversation already carries the
// system instructions.
func (t *Task) HasSystemMessage() bool {
	for _, m := range t.Conversation {
		if m.Role == llm.RoleSystem {
			return true
		}
	}
	return false
}

func joinNonEmpty(entries []string) string {
	out := ""
	for _, e := range entries {
		if e == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += e
	}
	return out
}
