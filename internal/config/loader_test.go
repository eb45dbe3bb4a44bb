package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
name: audit
description: Produce a security audit
context:
  - kind: text
    content: Review this repository
    alias: instructions
agents:
  proposer:
    user_prompt: Draft the audit.
modules:
  - name: fs
  - name: sh
    config:
      allowed_commands: [ls, cat]
workflow:
  steps:
    - from: proposer
      condition: proposal_generated
      to: reviewer
    - from: reviewer
      condition: approved
      to: completed
parameters:
  llm_provider: openai
  llm_model: gpt-4o
  max_retries: 2
  export_conversation: true
output:
  format: markdown
  file: audit.md
interval: 1h
`

func TestParseTaskConfig(t *testing.T) {
	cfg, err := ParseTaskConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "audit", cfg.Name)
	assert.Equal(t, "1h", cfg.Interval)
	require.Len(t, cfg.Modules, 2)
	assert.Equal(t, []string{"ls", "cat"}, cfg.Modules[1].Config.AllowedCommands)
	require.Len(t, cfg.Workflow.Steps, 2)
	assert.Equal(t, "completed", cfg.Workflow.Steps[1].To)
	require.NotNil(t, cfg.Parameters.MaxRetries)
	assert.Equal(t, 2, *cfg.Parameters.MaxRetries)
	assert.True(t, cfg.Parameters.ExportConversation)
	assert.Equal(t, "Draft the audit.", cfg.Agents.Proposer.UserPrompt)
}

func TestParseTaskConfigRequiresName(t *testing.T) {
	_, err := ParseTaskConfig([]byte("description: no name\nworkflow:\n  steps:\n    - {from: a, to: completed, condition: done}\n"))
	assert.Error(t, err)
}

func TestParseTaskConfigRejectsUnknownContextKind(t *testing.T) {
	_, err := ParseTaskConfig([]byte(`
name: bad
context:
  - kind: database
workflow:
  steps:
    - {from: a, to: completed, condition: done}
`))
	assert.Error(t, err)
}

func TestParseTaskConfigRequiresCompletedStep(t *testing.T) {
	_, err := ParseTaskConfig([]byte(`
name: loop
workflow:
  steps:
    - {from: proposer, to: reviewer, condition: proposal_generated}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completed")
}

func TestParseTaskConfigRejectsUnknownWorkflowRole(t *testing.T) {
	_, err := ParseTaskConfig([]byte(`
name: typo
workflow:
  steps:
    - {from: proposer, to: reviewr, condition: proposal_generated}
    - {from: reviewer, to: completed, condition: approved}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow role")

	_, err = ParseTaskConfig([]byte(`
name: typo
workflow:
  steps:
    - {from: propsr, to: reviewer, condition: proposal_generated}
    - {from: reviewer, to: completed, condition: approved}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow role")
}

func TestParseTaskConfigExpandsEnv(t *testing.T) {
	t.Setenv("KHEISH_TEST_DIR", "/tmp/kheish")
	cfg, err := ParseTaskConfig([]byte(`
name: env
context:
  - kind: file
    path: ${KHEISH_TEST_DIR}/input.txt
workflow:
  steps:
    - {from: proposer, to: completed, condition: proposal_generated}
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kheish/input.txt", cfg.Context[0].Path)
}
