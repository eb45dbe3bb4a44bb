package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/llm"
)

// taskConfigSystemPrompt instructs the model to turn a free-form task
// description into a runnable task config.
const taskConfigSystemPrompt = `You generate task configurations for an autonomous task orchestrator.
The user describes what they want; you answer with a complete YAML configuration based on the provided template.
Rules:
- Answer with exactly one YAML document inside a ` + "```yaml" + ` code block.
- Keep the four roles (proposer, reviewer, validator, formatter) and a workflow that ends with a step whose 'to' is 'completed'.
- Only reference modules from: fs, sh, http, ssh, rag, memories.
- If the request is missing information you absolutely need, answer with a single line starting with 'NEED_INFO:' followed by your question.`

// baseTaskTemplate is the skeleton handed to the model when
// generating a configuration.
const baseTaskTemplate = `name: example-task
description: One sentence describing the goal.
version: "1.0"
context:
  - kind: text
    content: Source material the agents work from.
    alias: source
modules:
  - name: rag
  - name: memories
workflow:
  steps:
    - from: proposer
      to: reviewer
      condition: proposal_generated
    - from: reviewer
      to: proposer
      condition: revision_requested
    - from: reviewer
      to: validator
      condition: approved
    - from: validator
      to: proposer
      condition: revision_requested
    - from: validator
      to: formatter
      condition: validated
    - from: formatter
      to: completed
      condition: exported
parameters:
  llm_provider: openai
  llm_model: gpt-4o
output:
  format: markdown
  file: output.md
`

// maxGenerationAttempts bounds the repair loop when the model keeps
// producing invalid YAML.
const maxGenerationAttempts = 5

// AskFunc answers a NEED_INFO question from the model. A nil AskFunc
// makes generation non-interactive: the model is told to assume.
type AskFunc func(question string) (string, error)

// GenerateTaskConfig asks the LLM to turn a task description into a
// validated TaskConfig. The raw YAML is returned alongside so callers
// can save it.
func GenerateTaskConfig(ctx context.Context, client *llm.Client, request string, ask AskFunc) (*config.TaskConfig, string, error) {
	messages := []llm.ChatMessage{
		llm.NewChatMessage(llm.RoleSystem, taskConfigSystemPrompt),
		llm.NewChatMessage(llm.RoleUser, fmt.Sprintf("Here is the base template:\n```\n%s\n```", baseTaskTemplate)),
		llm.NewChatMessage(llm.RoleUser, fmt.Sprintf("Your request:\n%s", request)),
	}

	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		resp, err := client.Call(ctx, messages)
		if err != nil {
			return nil, "", fmt.Errorf("generate task config: %w", err)
		}
		messages = append(messages, llm.NewChatMessage(llm.RoleAssistant, resp))

		if question, ok := cutNeedInfo(resp); ok {
			answer := "No additional information is available. Make reasonable assumptions."
			if ask != nil {
				answer, err = ask(question)
				if err != nil {
					return nil, "", fmt.Errorf("read answer: %w", err)
				}
			}
			messages = append(messages, llm.NewChatMessage(llm.RoleUser, answer))
			continue
		}

		yamlText, ok := extractYAML(resp)
		if !ok {
			messages = append(messages, llm.NewChatMessage(llm.RoleUser,
				"Please provide the YAML in a proper ```yaml ... ``` code block."))
			continue
		}

		cfg, err := config.ParseTaskConfig([]byte(yamlText))
		if err != nil {
			messages = append(messages, llm.NewChatMessage(llm.RoleUser,
				fmt.Sprintf("The YAML is invalid: %v. Please provide a valid configuration.", err)))
			continue
		}
		return cfg, yamlText, nil
	}
	return nil, "", fmt.Errorf("no valid task config after %d attempts", maxGenerationAttempts)
}

func cutNeedInfo(resp string) (string, bool) {
	trimmed := strings.TrimSpace(resp)
	if !strings.HasPrefix(strings.ToLower(trimmed), "need_info:") {
		return "", false
	}
	return strings.TrimSpace(trimmed[len("need_info:"):]), true
}

// extractYAML pulls the first fenced code block out of a response.
func extractYAML(resp string) (string, bool) {
	start := strings.Index(resp, "```")
	if start < 0 {
		return "", false
	}
	rest := resp[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	block := strings.TrimSpace(rest[:end])
	block = strings.TrimPrefix(block, "yaml")
	return strings.TrimSpace(block), true
}
