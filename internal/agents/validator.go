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

// Validator performs the final acceptance check on an approved
// proposal.
type Validator struct {
	client     *llm.Client
	userPrompt string
}

func NewValidator(cfg config.AgentConfig, client *llm.Client) *Validator {
	return &Validator{
		client:     client,
		userPrompt: orDefault(cfg.UserPrompt, validatorUserPrompt),
	}
}

func (a *Validator) Role() string { return RoleValidator }

func validValidatorResponse(resp string) bool {
	lower := strings.ToLower(resp)
	return lower == "validated" || strings.HasPrefix(lower, "not valid:") ||
		strings.Contains(resp, modulePrefix)
}

func (a *Validator) ExecuteStep(ctx context.Context, t task.Task) (Outcome, task.Task) {
	slog.Debug("validator: validating proposal", "task", t.ID)

	if t.CurrentProposal == "" {
		return failedOutcome("No proposal found in task for validation"), t
	}
	combined := t.Context.Combined()
	if strings.TrimSpace(combined) == "" {
		return failedOutcome("No context available for validation"), t
	}

	var sb strings.Builder
	sb.WriteString("Current role: validator\n")
	sb.WriteString("Specific instructions: ")
	sb.WriteString(a.userPrompt)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(combined)
	sb.WriteString("\n\nFinal proposal:\n")
	sb.WriteString(t.CurrentProposal)
	sb.WriteString("\n\nPlease respond with 'validated', 'not valid: ...' or 'MODULE_REQUEST:'.")

	t.AddMessage(llm.RoleUser, sb.String())

	resp, err := a.client.CallWithFormatCheck(ctx, &t.Conversation,
		validValidatorResponse, validatorFormatReminder, formatCheckAttempts)
	if err != nil {
		return failedOutcome(fmt.Sprintf("LLM error in Validator: %v", err)), t
	}

	resp = strings.TrimSpace(resp)
	t.AddMessage(llm.RoleAssistant, resp)
	if mr, ok := ParseModuleRequest(resp); ok {
		return mr, t
	}

	lower := strings.ToLower(resp)
	switch {
	case lower == "validated":
		t.SetFeedback("")
		return Outcome{Kind: Validated}, t
	case strings.HasPrefix(lower, "not valid:"):
		reason := strings.TrimSpace(resp[len("not valid:"):])
		t.SetFeedback(reason)
		return Outcome{Kind: RevisionRequested}, t
	default:
		return failedOutcome("Unexpected LLM response in Validator"), t
	}
}
