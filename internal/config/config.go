// Package config defines the task specification consumed by the
// orchestration core and its YAML loader.
package config

// TaskConfig is the full runnable specification of one task.
type TaskConfig struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	Version     string         `yaml:"version"`
	Context     []ContextItem  `yaml:"context" validate:"dive"`
	Agents      AgentsConfig   `yaml:"agents"`
	Modules     []ModuleConfig `yaml:"modules" validate:"dive"`
	Workflow    WorkflowConfig `yaml:"workflow"`
	Parameters  Parameters     `yaml:"parameters"`
	Output      OutputConfig   `yaml:"output"`
	// Interval makes the task recurring ("1h", "30m"); empty means one-shot.
	Interval string `yaml:"interval"`
}

// ContextItem is one input to the task context.
type ContextItem struct {
	// Kind is one of "file", "text" or "user_input".
	Kind    string `yaml:"kind" validate:"required,oneof=file text user_input"`
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
	Alias   string `yaml:"alias"`
}

// AgentsConfig holds per-role prompt overrides.
type AgentsConfig struct {
	Proposer  AgentConfig `yaml:"proposer"`
	Reviewer  AgentConfig `yaml:"reviewer"`
	Validator AgentConfig `yaml:"validator"`
	Formatter AgentConfig `yaml:"formatter"`
}

// AgentConfig overrides the built-in prompts of one role.
type AgentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
}

// ModuleConfig names a capability module to load, with optional
// module-specific settings.
type ModuleConfig struct {
	Name    string       `yaml:"name" validate:"required"`
	Version string       `yaml:"version"`
	Config  ModuleParams `yaml:"config"`
}

// ModuleParams carries module-specific settings. Only the shell module
// reads from it today.
type ModuleParams struct {
	AllowedCommands []string `yaml:"allowed_commands"`
}

// WorkflowConfig is the ordered list of role transitions.
type WorkflowConfig struct {
	Steps []WorkflowStep `yaml:"steps" validate:"dive"`
}

// WorkflowStep is an immutable (from, condition) -> to transition. The
// special To value "completed" terminates the task.
type WorkflowStep struct {
	From      string `yaml:"from" validate:"required"`
	To        string `yaml:"to" validate:"required"`
	Condition string `yaml:"condition" validate:"required"`
}

// Parameters are the global execution knobs for a task.
type Parameters struct {
	LLMProvider        string          `yaml:"llm_provider"`
	LLMModel           string          `yaml:"llm_model"`
	Embedder           *EmbedderConfig `yaml:"embedder"`
	ExportConversation bool            `yaml:"export_conversation"`
	// PostCompletionFeedback solicits one round of free-form feedback
	// when the workflow completes; non-empty feedback re-enters the
	// proposer instead of finishing.
	PostCompletionFeedback bool `yaml:"post_completion_feedback"`
	MaxRetries             *int `yaml:"max_retries"`
	// HaltOnModuleFailure stops the task when a module invocation fails
	// instead of flagging it and re-driving the same role.
	HaltOnModuleFailure bool `yaml:"halt_on_module_failure"`
}

// EmbedderConfig selects the embedding model for the vector store.
type EmbedderConfig struct {
	Model string `yaml:"model"`
}

// OutputConfig describes the produced artifact.
type OutputConfig struct {
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	// Schema is an optional inline JSON Schema the formatted output must
	// satisfy.
	Schema string `yaml:"schema"`
	// SchemaFile is an optional path to a JSON Schema file; ignored when
	// Schema is set.
	SchemaFile string `yaml:"schema_file"`
}
