package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/graniet/kheish/internal/agents"
	"github.com/graniet/kheish/internal/event"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/task"
)

// exportDir receives exported conversation transcripts.
const exportDir = "logs"

// handleCompletion finishes the run: export the transcript when
// configured, optionally loop back through the proposer on user
// feedback, then settle the terminal state. Recurring tasks go back to
// sleep instead of completing.
func (w *Worker) handleCompletion(ctx context.Context, t task.Task) bool {
	w.emit(event.Message(w.taskID, fmt.Sprintf(
		"The task '%s' has been successfully completed!", t.Name)))

	if w.cfg.Parameters.ExportConversation {
		path, err := exportConversation(t)
		if err != nil {
			w.emit(event.Message(w.taskID, fmt.Sprintf("Failed to export conversation: %v", err)))
		} else {
			w.emit(event.Message(w.taskID, fmt.Sprintf("Conversation exported to %s", path)))
		}
	}

	if w.cfg.Parameters.PostCompletionFeedback && w.feedback != nil {
		if fb := w.feedback(); fb != "" {
			t.AddMessage(llm.RoleUser, fb)
			w.revisionCount++
			w.emit(event.Message(w.taskID, "Feedback received. The proposer will prepare a new revision..."))
			w.task = t
			w.executeRole(ctx, agents.RoleProposer, t)
			return false
		}
	}

	if t.Interval != "" {
		now := time.Now()
		t.LastRunAt = &now
		t.State = task.NewState(task.StateWaitingWakeUp)
	} else {
		t.State = task.NewState(task.StateCompleted)
	}

	w.emit(event.StateUpdated(w.taskID, t.State))
	w.emit(event.Message(w.taskID, "Task completed"))
	w.emit(event.Completed(w.taskID))
	w.task = t
	return true
}

// exportConversation writes the transcript to
// logs/<name>-<date>-data.json and returns the path.
func exportConversation(t task.Task) (string, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(exportDir, fmt.Sprintf(
		"%s-%s-data.json", t.Name, time.Now().Format("2006-01-02")))
	data, err := json.MarshalIndent(t.Conversation, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
