package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/memory"
	"github.com/graniet/kheish/internal/scheduler"
	"github.com/graniet/kheish/internal/ui"
)

// serveCmd runs the long-lived scheduler: it configures new tasks,
// wakes up recurring ones and watches the tasks directory for dropped
// configs.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task scheduler daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := memory.NewTaskStore(viper.GetString("database.path"))
		if err != nil {
			return err
		}
		defer store.Close()

		renderer := ui.NewRenderer(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
		renderer.Banner(version)

		opts := scheduler.Options{
			WatchDir:  viper.GetString("tasks.dir"),
			OnMessage: renderer.Message,
		}
		// Task generation needs a model; without a key the scheduler
		// still runs configured tasks.
		provider := viper.GetString("llm.provider")
		if provider == llm.ProviderOllama || llm.APIKeyFromEnv(provider) != "" {
			client, err := appClient(ctx, "", "")
			if err != nil {
				return err
			}
			opts.TaskGenClient = client
		}

		m := scheduler.NewManager(store, opts)
		return m.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
