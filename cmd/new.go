package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/graniet/kheish/internal/memory"
	"github.com/graniet/kheish/internal/scheduler"
	"github.com/graniet/kheish/internal/task"
)

var (
	newProvider string
	newModel    string
)

// newCmd generates a full task config from a one-line description and
// registers it for the scheduler.
var newCmd = &cobra.Command{
	Use:   "new [description]",
	Short: "Generate a task config from a description",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		description := ""
		if len(args) == 1 {
			description = args[0]
		} else {
			if !isInteractive() {
				return fmt.Errorf("a task description is required")
			}
			answer, err := promptLine("Describe the task")
			if err != nil {
				return err
			}
			description = answer
		}
		if description == "" {
			return fmt.Errorf("a task description is required")
		}

		client, err := appClient(ctx, newProvider, newModel)
		if err != nil {
			return err
		}

		var ask scheduler.AskFunc
		if isInteractive() {
			ask = func(question string) (string, error) {
				return promptLine(question)
			}
		}

		cfg, rawYAML, err := scheduler.GenerateTaskConfig(ctx, client, description, ask)
		if err != nil {
			return err
		}

		tasksDir := viper.GetString("tasks.dir")
		if err := os.MkdirAll(tasksDir, 0o755); err != nil {
			return fmt.Errorf("create tasks dir: %w", err)
		}
		path := filepath.Join(tasksDir, fmt.Sprintf("generated_task_%d.yaml", time.Now().Unix()))
		if err := os.WriteFile(path, []byte(rawYAML), 0o644); err != nil {
			return fmt.Errorf("write task config: %w", err)
		}

		store, err := memory.NewTaskStore(viper.GetString("database.path"))
		if err != nil {
			return err
		}
		defer store.Close()

		var askUser task.UserInputFunc
		if isInteractive() {
			askUser = func(prompt string) string {
				answer, err := promptLine(prompt)
				if err != nil {
					return ""
				}
				return answer
			}
		}
		m := scheduler.NewManager(store, scheduler.Options{})
		id, err := m.Submit(cfg, askUser)
		if err != nil {
			return err
		}

		fmt.Printf("Task '%s' registered (%s)\nConfig saved to %s\n", cfg.Name, id, path)
		return nil
	},
}

func init() {
	newCmd.Flags().StringVar(&newProvider, "provider", "", "LLM provider for task generation")
	newCmd.Flags().StringVar(&newModel, "model", "", "LLM model for task generation")
	rootCmd.AddCommand(newCmd)
}
