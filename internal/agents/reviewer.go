package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/task"
)

// Reviewer approves proposals or sends them back with revision
// feedback.
type Reviewer struct {
	client     *llm.Client
	userPrompt string
}

func NewReviewer(cfg config.AgentConfig, client *llm.Client) *Reviewer {
	return &Reviewer{
		client:     client,
		userPrompt: orDefault(cfg.UserPrompt, reviewerUserPrompt),
	}
}

func (a *Reviewer) Role() string { return RoleReviewer }

func validReviewerResponse(resp string) bool {
	lower := strings.ToLower(resp)
	return lower == "approved" || strings.HasPrefix(lower, "revise:") ||
		strings.Contains(resp, modulePrefix)
}

func (a *Reviewer) ExecuteStep(ctx context.Context, t task.Task) (Outcome, task.Task) {
	slog.Debug("reviewer: reviewing proposal", "task", t.ID)

	if t.CurrentProposal == "" {
		return failedOutcome("No proposal found in task for reviewing"), t
	}
	combined := t.Context.Combined()
	if strings.TrimSpace(combined) == "" {
		return failedOutcome("No context available for reviewing"), t
	}

	var sb strings.Builder
	sb.WriteString("Current role: reviewer\n")
	sb.WriteString("Specific instructions: ")
	sb.WriteString(a.userPrompt)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(combined)
	sb.WriteString("\n\nProposal to review:\n")
	sb.WriteString(t.CurrentProposal)
	for _, execution := range t.ModuleExecutionHistory {
		sb.WriteString("\n\nModule execution context:\n")
		sb.WriteString(execution)
	}
	sb.WriteString("\n\nPlease respond with 'approved' or 'revise: ...' or optionally 'MODULE_REQUEST:'.")

	t.AddMessage(llm.RoleUser, sb.String())

	resp, err := a.client.CallWithFormatCheck(ctx, &t.Conversation,
		validReviewerResponse, reviewerFormatReminder, formatCheckAttempts)
	if err != nil {
		return failedOutcome(fmt.Sprintf("LLM error in Reviewer: %v", err)), t
	}

	resp = strings.TrimSpace(resp)
	t.AddMessage(llm.RoleAssistant, resp)
	if mr, ok := ParseModuleRequest(resp); ok {
		return mr, t
	}

	lower := strings.ToLower(resp)
	switch {
	case strings.Contains(lower, "approved"):
		t.SetFeedback("")
		return Outcome{Kind: Approved}, t
	case strings.HasPrefix(lower, "revise:"):
		feedback := strings.TrimSpace(resp[len("revise:"):])
		t.SetFeedback(feedback)
		return Outcome{Kind: RevisionRequested}, t
	default:
		return failedOutcome("Unexpected LLM response in Reviewer"), t
	}
}
