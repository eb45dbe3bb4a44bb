// Package worker drives one task through the role workflow. Each
// worker owns its task, its module result cache and its vector store;
// agents receive the task through their mailboxes and hand it back
// with an outcome.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graniet/kheish/internal/agents"
	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/event"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/modules"
	"github.com/graniet/kheish/internal/rag"
	"github.com/graniet/kheish/internal/task"
)

const defaultMaxRetries = 3

// FeedbackFunc solicits free-form feedback after completion. Empty
// feedback finishes the task; anything else re-enters the proposer.
type FeedbackFunc func() string

// Worker executes a single task run.
type Worker struct {
	taskID   string
	task     task.Task
	cfg      config.TaskConfig
	workflow task.Workflow
	modules  *modules.Manager
	store    rag.VectorStore

	// moduleCache memoizes module results per (module, action, params)
	// for the lifetime of the task. Entries are never evicted.
	moduleCache map[string]string

	retryCount    int
	maxRetries    int
	revisionCount int
	currentRole   string

	inboxes   map[string]chan agents.Request
	responses chan agents.Response
	roleAgent map[string]agents.Agent

	events   chan<- event.Event
	feedback FeedbackFunc
}

// New builds a worker and its four role agents. The system
// instructions are injected into the conversation unless a resumed
// task already carries them.
func New(
	cfg config.TaskConfig,
	t task.Task,
	store rag.VectorStore,
	client *llm.Client,
	events chan<- event.Event,
	feedback FeedbackFunc,
) (*Worker, error) {
	mgr := modules.NewManager(cfg.Modules)

	maxRetries := defaultMaxRetries
	if cfg.Parameters.MaxRetries != nil {
		maxRetries = *cfg.Parameters.MaxRetries
	}

	if !t.HasSystemMessage() {
		slog.Debug("injecting system instructions", "task", t.ID)
		t.AddMessage(llm.RoleSystem, agents.SystemInstructions(cfg.Agents, mgr))
	}

	formatter, err := agents.NewFormatter(cfg.Agents.Formatter, client, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("create formatter: %w", err)
	}

	roleAgent := map[string]agents.Agent{
		agents.RoleProposer:  agents.NewProposer(cfg.Agents.Proposer, client),
		agents.RoleReviewer:  agents.NewReviewer(cfg.Agents.Reviewer, client),
		agents.RoleValidator: agents.NewValidator(cfg.Agents.Validator, client),
		agents.RoleFormatter: formatter,
	}
	inboxes := make(map[string]chan agents.Request, len(roleAgent))
	for role := range roleAgent {
		inboxes[role] = make(chan agents.Request, 1)
	}

	return &Worker{
		taskID:      t.ID,
		task:        t,
		cfg:         cfg,
		workflow:    task.NewWorkflow(cfg.Workflow.Steps),
		modules:     mgr,
		store:       store,
		moduleCache: make(map[string]string),
		maxRetries:  maxRetries,
		inboxes:     inboxes,
		responses:   make(chan agents.Response, 1),
		roleAgent:   roleAgent,
		events:      events,
		feedback:    feedback,
	}, nil
}

// Task returns the worker's current view of the task.
func (w *Worker) Task() task.Task { return w.task }

func (w *Worker) emit(ev event.Event) {
	if w.events != nil {
		w.events <- ev
	}
}

// Run drives the task until it completes, fails permanently or the
// context is cancelled. The final task (with its terminal state) is
// returned.
func (w *Worker) Run(ctx context.Context) task.Task {
	slog.Info("starting task", "id", w.taskID, "name", w.task.Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for role, a := range w.roleAgent {
		go agents.Run(ctx, a, w.inboxes[role], w.responses)
	}

	w.task.State = task.NewState(task.StateInProgress)
	w.emit(event.Created(&w.task))
	w.executeRole(ctx, agents.RoleProposer, w.task)

	for {
		select {
		case <-ctx.Done():
			w.task.State = task.FailedState("cancelled")
			return w.task
		case resp := <-w.responses:
			if done := w.handleResponse(ctx, resp); done {
				return w.task
			}
		}
	}
}

// executeRole hands the task to the named role's mailbox.
func (w *Worker) executeRole(ctx context.Context, role string, t task.Task) {
	slog.Debug("executing role", "task", w.taskID, "role", role)

	var human string
	switch role {
	case agents.RoleProposer:
		human = "The proposer is preparing a new proposal..."
	case agents.RoleReviewer:
		human = "The reviewer is examining the proposal..."
	case agents.RoleValidator:
		human = "The validator is checking correctness..."
	case agents.RoleFormatter:
		human = "The formatter is refining the final output..."
	default:
		human = "An unknown agent is acting..."
	}
	w.emit(event.Message(w.taskID, human))

	w.currentRole = role
	inbox, ok := w.inboxes[role]
	if !ok {
		slog.Error("no mailbox for role", "role", role)
		return
	}
	select {
	case inbox <- agents.Request{Role: role, Task: t}:
	case <-ctx.Done():
	}
}

func (w *Worker) handleResponse(ctx context.Context, resp agents.Response) bool {
	switch resp.Outcome.Kind {
	case agents.ModuleRequest:
		return w.handleModuleRequest(ctx, resp.Outcome, resp.Role, resp.Task)
	case agents.Failed:
		return w.handleFailure(ctx, resp.Outcome.Reason, resp.Role, resp.Task)
	default:
		return w.handleStandardOutcome(ctx, resp.Outcome, resp.Role, resp.Task)
	}
}

func cacheKey(module, action string, params []string) string {
	return module + "\x00" + action + "\x00" + strings.Join(params, "\x00")
}

// resultInlineLimit is the largest module result injected verbatim
// into the conversation; anything larger gets a short preview and a
// hint to index it.
const resultInlineLimit = 35000

func (w *Worker) handleModuleRequest(ctx context.Context, o agents.Outcome, role string, t task.Task) bool {
	w.emit(event.Message(w.taskID, fmt.Sprintf("The agent requests the '%s' module to assist...", o.Module)))
	w.retryCount = 0

	key := cacheKey(o.Module, o.Action, o.Params)
	if _, ok := w.moduleCache[key]; ok {
		w.emit(event.Message(w.taskID, "Module result already known, proceeding..."))
		w.executeRole(ctx, role, t)
		return false
	}

	mod, ok := w.modules.Get(o.Module)
	if !ok {
		w.emit(event.Message(w.taskID, fmt.Sprintf("The agent tried to use a non-existent module '%s'.", o.Module)))
		t.State = task.FailedState(fmt.Sprintf("Module %s not found", o.Module))
		t.AddMessage(llm.RoleAssistant, fmt.Sprintf(
			"Module %s not found. Available modules and their actions: %s",
			o.Module, w.modules.DescribeAll()))
		w.task = t
		w.executeRole(ctx, role, t)
		return false
	}

	w.emit(event.Message(w.taskID, fmt.Sprintf(
		"Executing module '%s' with action '%s' and params: %s",
		o.Module, o.Action, strings.Join(o.Params, " "))))

	result, err := mod.HandleAction(ctx, w.store, o.Action, o.Params)
	var executionMessage string
	if err != nil {
		slog.Error("module action failed", "module", o.Module, "action", o.Action, "err", err)
		errMsg := fmt.Sprintf("Module %s action '%s' failed: %v Available actions: %s",
			o.Module, o.Action, err, modules.DescribeActions(mod))
		t.State = task.FailedState(errMsg)
		if w.cfg.Parameters.HaltOnModuleFailure {
			w.emit(event.Message(w.taskID, fmt.Sprintf(
				"Module '%s' action '%s' failed. Stopping task.", o.Module, o.Action)))
			w.emit(event.StateUpdated(w.taskID, t.State))
			w.task = t
			return true
		}
		executionMessage = errMsg
	} else {
		w.moduleCache[key] = result
		if len([]rune(result)) > resultInlineLimit {
			executionMessage = fmt.Sprintf(
				"The result from module %s action '%s' is too large. Consider using the RAG module to index the content.\nFirst part: %s...",
				o.Module, o.Action, firstRunes(result, 200))
		} else {
			executionMessage = fmt.Sprintf("Module '%s' provided a result:\n%s", o.Module, result)
		}
		t.AddModuleExecution(fmt.Sprintf("%s %s: %s", o.Module, o.Action, firstRunes(result, 500)))
	}

	t.AddMessage(llm.RoleUser, executionMessage)
	w.task = t
	w.emit(event.Message(w.taskID, "Module execution finished. Returning to the agent..."))
	w.executeRole(ctx, role, t)
	return false
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// handleFailure retries the failing role with a truncated conversation
// until the retry budget is exhausted.
func (w *Worker) handleFailure(ctx context.Context, reason, role string, t task.Task) bool {
	next := w.retryCount + 1
	if next <= w.maxRetries {
		w.emit(event.Message(w.taskID, fmt.Sprintf(
			"The agent encountered an error. Retrying... Attempt %d/%d", next, w.maxRetries)))
		w.retryCount = next

		// roll the conversation back to the last assistant message that
		// is not itself an error report
		for i := len(t.Conversation) - 1; i >= 0; i-- {
			m := t.Conversation[i]
			if m.Role == llm.RoleAssistant && !strings.Contains(m.Content, "error") {
				t.Conversation = t.Conversation[:i+1]
				break
			}
		}

		w.task = t
		w.executeRole(ctx, role, t)
		return false
	}

	w.emit(event.Message(w.taskID, fmt.Sprintf("The task failed permanently: %s", reason)))
	t.State = task.FailedState(fmt.Sprintf(
		"Task failed after %d retries. Last error: %s", w.maxRetries, reason))
	w.emit(event.StateUpdated(w.taskID, t.State))
	w.task = t
	return true
}

func (w *Worker) handleStandardOutcome(ctx context.Context, o agents.Outcome, role string, t task.Task) bool {
	w.retryCount = 0
	condition := o.Condition()

	next, ok := w.workflow.NextRole(role, condition)
	if !ok {
		msg := fmt.Sprintf("Workflow error: No matching next step found, step: %s, condition: %s",
			role, condition)
		slog.Error(msg)
		w.emit(event.Message(w.taskID, msg))
		t.State = task.FailedState("No matching workflow step")
		w.emit(event.StateUpdated(w.taskID, t.State))
		w.task = t
		return true
	}

	if condition == "revision_requested" {
		w.emit(event.Message(w.taskID, fmt.Sprintf(
			"The agent requests a revision. Moving from '%s' to '%s'.", role, next)))
		w.revisionCount++
	}
	if o.Kind == agents.Exported {
		w.emit(event.Message(w.taskID, fmt.Sprintf(
			"The agent has exported the task. Moving from '%s' to '%s'.", role, next)))
		w.emit(event.Output(w.taskID, t.FinalOutput))
	}

	if next == task.RoleCompleted {
		return w.handleCompletion(ctx, t)
	}

	w.task = t
	w.executeRole(ctx, next, t)
	return false
}
