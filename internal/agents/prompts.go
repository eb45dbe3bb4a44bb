package agents

import (
	"fmt"
	"strings"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/modules"
)

// Default prompts for each role. Task configs may override any of them
// per role.
const (
	proposerSystemPrompt = "You are an extremely creative and meticulous assistant, specialized in generating drafts, ideas or initial solutions from given source material. You focus on clarity, coherence, usefulness and strict adherence to formats and instructions. Your role is to produce a relevant and actionable first proposal."

	reviewerSystemPrompt = "You are a critical and objective reviewer. Your role is to evaluate a proposal by checking its accuracy, relevance, completeness and compliance with instructions or imposed format. You must be strict but constructive, approving the proposal if it is correct or requesting clear revision if it is not."

	validatorSystemPrompt = "You are a final validator, responsible for confirming that the final solution exactly meets all specified criteria, requirements and constraints. You are the ultimate judge of correctness, rule compliance and format. If the solution is correct, you validate it. Otherwise, you indicate precisely and briefly what is wrong."

	formatterSystemPrompt = "You are a formatting assistant. You have access to the final validated solution and the original content. Your role is to convert the solution into the requested output format."

	proposerUserPrompt = "You have context and instructions describing a problem, task or content request. Based on this information, provide an initial proposal that is concise, coherent and useful. If a specific format is required, follow it scrupulously. If previous feedback is available, incorporate it. Start your response with 'Proposal:' followed directly by the requested solution or content, without additional comments."

	reviewerUserPrompt = "Examine the provided proposal. If it correctly and fully meets the requirements, simply respond 'Approved'. If it needs improvement, respond with 'Revise:' followed by precise instructions on what needs to be modified. No other explanations or greetings, just this format."

	validatorUserPrompt = "Examine the final solution. If it perfectly complies with all criteria, respond exactly with 'Validated'. If it does not, respond with 'Not valid:' followed by a concise explanation of the issue. No other form of comment."

	formatterUserPrompt = "You have access to the final solution and the original content. Your role is to convert the solution into the specified output format. Start your response with 'Output:' followed directly by the requested solution or content, without additional comments."

	proposerFormatReminder = "Your answer must start with 'Proposal:' followed by the improved summary. No extra greetings, no explanations outside this format."

	reviewerFormatReminder = "The response must be either exactly 'Approved' or 'Revise:' followed by instructions. No extra text, no greetings, no explanations beyond this format."

	validatorFormatReminder = "You are a final validator, ensuring the final content meets all specified requirements. Respond only 'Validated' if it fully meets the criteria, otherwise indicate 'Not valid'."

	memorySystemPrompt = "You have access to a long-term memory through the memories module. Any information you wish to preserve without repeating it in the prompt can be stored there.\nFor example, if you create an intermediate summary of a concept, insert it by using MODULE_REQUEST: memories insert <summary>.\nLater, if you need to retrieve that information, use MODULE_REQUEST: memories recall <keywords or question>"
)

// formatCheckAttempts bounds how many times an agent re-prompts the LLM
// when the response breaks the role's expected format.
const formatCheckAttempts = 2

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// SystemInstructions assembles the single system message injected at
// the start of every task conversation: the four role prompts plus the
// catalog of available modules and the request syntax.
func SystemInstructions(cfg config.AgentsConfig, mgr *modules.Manager) string {
	var sb strings.Builder
	sb.WriteString("Global rules:\n")
	sb.WriteString("- Follow all instructions.\n")
	sb.WriteString("- When you play the 'proposer' role, follow these instructions:\n")
	sb.WriteString(orDefault(cfg.Proposer.SystemPrompt, proposerSystemPrompt))
	sb.WriteString("\n\nWhen you play the 'reviewer' role, follow these instructions:\n")
	sb.WriteString(orDefault(cfg.Reviewer.SystemPrompt, reviewerSystemPrompt))
	sb.WriteString("\n\nWhen you play the 'validator' role, follow these instructions:\n")
	sb.WriteString(orDefault(cfg.Validator.SystemPrompt, validatorSystemPrompt))
	sb.WriteString("\n\nWhen you play the 'formatter' role, follow these instructions:\n")
	sb.WriteString(orDefault(cfg.Formatter.SystemPrompt, formatterSystemPrompt))
	sb.WriteString("\n\nYou only have one system message (this one). Roles are activated by the user messages that follow.")

	mods := mgr.Modules()
	if len(mods) > 0 {
		sb.WriteString("\n\nYou have access to the following modules and their actions:\n")
		for _, m := range mods {
			fmt.Fprintf(&sb, "Module '%s':\n", m.Name())
			for _, act := range m.Actions() {
				fmt.Fprintf(&sb, "- %s (%d args): %s\n", act.Name, act.ArgCount, act.Description)
			}
		}
		sb.WriteString("\nTo use a module, respond with:\nMODULE_REQUEST: <module_name> <action> <params...>\n")
		sb.WriteString("Use only the listed actions and the correct number of arguments.\n")
		sb.WriteString("Only one module request per response, if needed.\n")

		if _, ok := mgr.Get("memories"); ok {
			sb.WriteString("\n")
			sb.WriteString(memorySystemPrompt)
		}
	}

	return sb.String()
}
