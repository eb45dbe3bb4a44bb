package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/task"
)

// Formatter converts the validated proposal into the configured output
// format, optionally checks it against a JSON Schema and writes it to
// the output file.
type Formatter struct {
	client       *llm.Client
	userPrompt   string
	outputFormat string
	outputFile   string
	schemaText   string
	schema       *jsonschema.Schema
}

func NewFormatter(cfg config.AgentConfig, client *llm.Client, output config.OutputConfig) (*Formatter, error) {
	f := &Formatter{
		client:       client,
		userPrompt:   orDefault(cfg.UserPrompt, formatterUserPrompt),
		outputFormat: orDefault(output.Format, "text"),
		outputFile:   output.File,
	}
	if output.Schema != "" {
		f.schemaText = output.Schema
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(output.Schema))
		if err != nil {
			return nil, fmt.Errorf("parse output schema: %w", err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("output-schema.json", doc); err != nil {
			return nil, fmt.Errorf("load output schema: %w", err)
		}
		f.schema, err = compiler.Compile("output-schema.json")
		if err != nil {
			return nil, fmt.Errorf("compile output schema: %w", err)
		}
	}
	return f, nil
}

func (a *Formatter) Role() string { return RoleFormatter }

func nonEmptyResponse(resp string) bool {
	return strings.TrimSpace(resp) != ""
}

// stripFences removes markdown code fences around a JSON payload.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func (a *Formatter) ExecuteStep(ctx context.Context, t task.Task) (Outcome, task.Task) {
	slog.Debug("formatter: formatting final proposal", "task", t.ID)

	if t.CurrentProposal == "" {
		return failedOutcome("No final solution found in task for formatting"), t
	}

	var sb strings.Builder
	sb.WriteString("Current role: formatter\n")
	sb.WriteString("Specific instructions: ")
	sb.WriteString(a.userPrompt)
	sb.WriteString("\n\nValidated solution:\n")
	sb.WriteString(t.CurrentProposal)
	if a.schema != nil {
		sb.WriteString("\n\nThe output must be valid JSON conforming to this JSON Schema:\n")
		sb.WriteString(a.schemaText)
	}
	sb.WriteString("\n\nConvert this solution to ")
	sb.WriteString(a.outputFormat)
	sb.WriteString(" and only output the final formatted result, without comments.")

	t.AddMessage(llm.RoleUser, sb.String())

	resp, err := a.client.CallWithFormatCheck(ctx, &t.Conversation,
		nonEmptyResponse, "", formatCheckAttempts)
	if err != nil {
		return failedOutcome(fmt.Sprintf("LLM error in Formatter: %v", err)), t
	}
	if !nonEmptyResponse(resp) {
		return failedOutcome("Formatted output is invalid or empty."), t
	}

	t.AddMessage(llm.RoleAssistant, resp)

	output := stripFences(resp)
	if a.schema != nil {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(output))
		if err != nil {
			return failedOutcome(fmt.Sprintf("Output is not valid JSON: %v", err)), t
		}
		if err := a.schema.Validate(doc); err != nil {
			return failedOutcome(fmt.Sprintf("Output does not match the required schema: %v", err)), t
		}
	}

	if a.outputFile != "" {
		if dir := filepath.Dir(a.outputFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return failedOutcome(fmt.Sprintf("Failed to write output file: %v", err)), t
			}
		}
		if err := os.WriteFile(a.outputFile, []byte(resp), 0o644); err != nil {
			return failedOutcome(fmt.Sprintf("Failed to write output file: %v", err)), t
		}
		slog.Info("formatter: result written", "file", a.outputFile)
	}

	t.FinalOutput = output
	return Outcome{Kind: Exported}, t
}
