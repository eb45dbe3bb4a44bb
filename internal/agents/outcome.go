// Package agents implements the four workflow roles. Each agent owns a
// mailbox and hands the task back to the worker with an outcome.
package agents

import "strings"

// modulePrefix marks a capability invocation inside an LLM response.
const modulePrefix = "MODULE_REQUEST:"

// OutcomeKind enumerates the possible results of one agent step.
type OutcomeKind int

const (
	ProposalGenerated OutcomeKind = iota
	RevisionRequested
	Approved
	Validated
	Exported
	ModuleRequest
	Failed
)

// Outcome is the result of a single agent execution step. Module and
// friends are set only for ModuleRequest, Reason only for Failed.
type Outcome struct {
	Kind   OutcomeKind
	Module string
	Action string
	Params []string
	Reason string
}

// Condition maps the outcome onto the workflow transition vocabulary.
func (o Outcome) Condition() string {
	switch o.Kind {
	case ProposalGenerated:
		return "proposal_generated"
	case RevisionRequested:
		return "revision_requested"
	case Approved:
		return "approved"
	case Validated:
		return "validated"
	case Exported:
		return "exported"
	case ModuleRequest:
		return "module_request"
	default:
		return "failed"
	}
}

func failedOutcome(reason string) Outcome {
	return Outcome{Kind: Failed, Reason: reason}
}

// ParseModuleRequest scans a response for a MODULE_REQUEST line. The
// line must name at least a module and an action; anything after them
// becomes whitespace-split params. Lines with fewer tokens are ignored.
func ParseModuleRequest(resp string) (Outcome, bool) {
	for _, line := range strings.Split(resp, "\n") {
		idx := strings.Index(line, modulePrefix)
		if idx < 0 {
			continue
		}
		parts := strings.Fields(line[idx+len(modulePrefix):])
		if len(parts) < 2 {
			continue
		}
		return Outcome{
			Kind:   ModuleRequest,
			Module: parts[0],
			Action: parts[1],
			Params: parts[2:],
		}, true
	}
	return Outcome{}, false
}
