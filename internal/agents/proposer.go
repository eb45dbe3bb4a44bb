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

// Proposer generates and revises proposals from the task context.
type Proposer struct {
	client     *llm.Client
	userPrompt string
}

func NewProposer(cfg config.AgentConfig, client *llm.Client) *Proposer {
	return &Proposer{
		client:     client,
		userPrompt: orDefault(cfg.UserPrompt, proposerUserPrompt),
	}
}

func (a *Proposer) Role() string { return RoleProposer }

func validProposerResponse(resp string) bool {
	return strings.HasPrefix(resp, "Proposal:") || strings.Contains(resp, modulePrefix)
}

func (a *Proposer) ExecuteStep(ctx context.Context, t task.Task) (Outcome, task.Task) {
	slog.Debug("proposer: generating proposal", "task", t.ID)

	source := t.Context.Combined()
	if strings.TrimSpace(source) == "" {
		return failedOutcome("No source text available for proposing content"), t
	}

	feedback := t.FeedbackForPrompt()

	var sb strings.Builder
	sb.WriteString("Current role: proposer\n")
	sb.WriteString("Specific instructions: ")
	sb.WriteString(a.userPrompt)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(source)
	if feedback != "" {
		sb.WriteString("\n\nPrevious feedback:\n")
		sb.WriteString(feedback)
		if t.CurrentProposal != "" {
			sb.WriteString("\nPrevious proposal:\n")
			sb.WriteString(t.CurrentProposal)
		}
		sb.WriteString("\nPlease improve the proposal taking into account the feedback.")
	}
	sb.WriteString("\n\nPlease now provide a 'Proposal:' or a 'MODULE_REQUEST:'.")

	t.AddMessage(llm.RoleUser, sb.String())

	resp, err := a.client.CallWithFormatCheck(ctx, &t.Conversation,
		validProposerResponse, proposerFormatReminder, formatCheckAttempts)
	if err != nil {
		return failedOutcome(fmt.Sprintf("LLM error in Proposer: %v", err)), t
	}

	t.AddMessage(llm.RoleAssistant, resp)
	if mr, ok := ParseModuleRequest(resp); ok {
		return mr, t
	}

	t.AddProposal(resp)
	return Outcome{Kind: ProposalGenerated}, t
}
