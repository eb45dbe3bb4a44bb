package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// LoadTaskConfig reads, expands and validates a task specification from
// a YAML file. `${VAR}` references in context contents and paths are
// expanded from the environment.
func LoadTaskConfig(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task config: %w", err)
	}
	return ParseTaskConfig(data)
}

// ParseTaskConfig parses and validates a task specification from YAML
// bytes.
func ParseTaskConfig(data []byte) (*TaskConfig, error) {
	var cfg TaskConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse task config: %w", err)
	}
	for i := range cfg.Context {
		cfg.Context[i].Path = os.ExpandEnv(cfg.Context[i].Path)
		cfg.Context[i].Content = os.ExpandEnv(cfg.Context[i].Content)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid task config: %w", err)
	}
	if err := checkWorkflow(&cfg); err != nil {
		return nil, err
	}
	if cfg.Output.Schema == "" && cfg.Output.SchemaFile != "" {
		schema, err := os.ReadFile(cfg.Output.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("read output schema: %w", err)
		}
		cfg.Output.Schema = string(schema)
	}
	return &cfg, nil
}

// workflowRoles are the only legal step endpoints; "completed" is valid
// for `to` only.
var workflowRoles = map[string]bool{
	"proposer":  true,
	"reviewer":  true,
	"validator": true,
	"formatter": true,
}

// checkWorkflow rejects configurations that could never start, never
// terminate or route to a role that does not exist. Missing
// intermediate transitions are a runtime error per task, not a load
// error, since conditions depend on agent outcomes.
func checkWorkflow(cfg *TaskConfig) error {
	if len(cfg.Workflow.Steps) == 0 {
		return fmt.Errorf("invalid task config: workflow has no steps")
	}
	completed := false
	for _, step := range cfg.Workflow.Steps {
		if !workflowRoles[step.From] {
			return fmt.Errorf("invalid task config: unknown workflow role %q in `from`", step.From)
		}
		if step.To == "completed" {
			completed = true
		} else if !workflowRoles[step.To] {
			return fmt.Errorf("invalid task config: unknown workflow role %q in `to`", step.To)
		}
	}
	if !completed {
		return fmt.Errorf("invalid task config: workflow has no step leading to completed")
	}
	return nil
}
