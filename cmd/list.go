package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/graniet/kheish/internal/memory"
	"github.com/graniet/kheish/internal/task"
	"github.com/graniet/kheish/internal/ui"
)

// listCmd prints the tasks known to the scheduler store.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tasks and their states",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := memory.NewTaskStore(viper.GetString("database.path"))
		if err != nil {
			return err
		}
		defer store.Close()

		tasks, err := store.TasksByStates(
			task.StateNew,
			task.StateConfiguring,
			task.StateReady,
			task.StateInProgress,
			task.StateWaitingWakeUp,
			task.StateCompleted,
			task.StateFailed,
		)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		styled := term.IsTerminal(int(os.Stdout.Fd()))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tINTERVAL\tLAST RUN")
		for _, t := range tasks {
			id := t.ID
			if len(id) > 8 {
				id = id[:8]
			}
			state := t.State.String()
			if styled {
				switch t.State.Kind {
				case task.StateCompleted:
					state = ui.StyleSuccess.Render(state)
				case task.StateFailed:
					state = ui.StyleError.Render(state)
				case task.StateInProgress:
					state = ui.StyleWarning.Render(state)
				}
			}
			interval := t.Interval
			if interval == "" {
				interval = "-"
			}
			lastRun := "-"
			if t.LastRunAt != nil {
				lastRun = t.LastRunAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, t.Name, state, interval, lastRun)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
