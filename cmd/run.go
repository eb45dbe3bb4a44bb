package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/event"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/rag"
	"github.com/graniet/kheish/internal/scheduler"
	"github.com/graniet/kheish/internal/task"
	"github.com/graniet/kheish/internal/ui"
	"github.com/graniet/kheish/internal/worker"
)

// runCmd executes a single task config to completion.
var runCmd = &cobra.Command{
	Use:   "run <task.yaml>",
	Short: "Run a task config once and print its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.LoadTaskConfig(args[0])
		if err != nil {
			return err
		}

		provider := cfg.Parameters.LLMProvider
		client, err := llm.NewClient(ctx, llm.Config{
			Provider: provider,
			Model:    cfg.Parameters.LLMModel,
			APIKey:   llm.APIKeyFromEnv(provider),
		})
		if err != nil {
			return err
		}

		store, err := buildVectorStore(cmd, cfg)
		if err != nil {
			return err
		}

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

		tctx, err := task.BuildContext(cfg, askUser)
		if err != nil {
			return err
		}
		t := task.New(uuid.New().String(), cfg.Name, cfg.Description, tctx, cfg.Interval)

		var feedback worker.FeedbackFunc
		if isInteractive() && cfg.Parameters.PostCompletionFeedback {
			feedback = func() string {
				answer, err := promptLine("Feedback (empty line to finish)")
				if err != nil {
					return ""
				}
				return answer
			}
		}

		renderer := ui.NewRenderer(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
		renderer.Banner(version)

		events := make(chan event.Event, 16)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for ev := range events {
				switch ev.Kind {
				case event.NewMessage:
					renderer.Message(ev.TaskID, ev.Message)
				case event.TaskStateUpdated:
					renderer.StateChange(ev.TaskID, ev.State)
				case event.NewOutput:
					renderer.Output(ev.TaskID, ev.Output)
				}
			}
		}()

		w, err := worker.New(*cfg, t, store, client, events, feedback)
		if err != nil {
			return err
		}
		final := w.Run(ctx)
		close(events)
		<-drained

		if final.State.Kind == task.StateFailed {
			return fmt.Errorf("task failed: %s", final.State.Reason)
		}
		return nil
	},
}

// buildVectorStore creates the per-task vector store when the config
// uses retrieval modules. Tasks without rag or memories get none.
func buildVectorStore(cmd *cobra.Command, cfg *config.TaskConfig) (rag.VectorStore, error) {
	if !scheduler.NeedsVectorStore(cfg) {
		return nil, nil
	}
	provider := cfg.Parameters.LLMProvider
	model := ""
	if cfg.Parameters.Embedder != nil {
		model = cfg.Parameters.Embedder.Model
	}
	embedder, err := llm.NewEmbedder(cmd.Context(), llm.Config{
		Provider:       provider,
		EmbeddingModel: model,
		APIKey:         llm.APIKeyFromEnv(provider),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return rag.NewInMemoryStore(embedder), nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
