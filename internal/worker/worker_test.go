package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/event"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/rag"
	"github.com/graniet/kheish/internal/task"
)

// scriptedModel replays canned responses in order; the last one
// repeats.
type scriptedModel struct {
	responses []string
	calls     int
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	resp := m.responses[m.calls]
	if m.calls < len(m.responses)-1 {
		m.calls++
	}
	return &schema.Message{Role: schema.Assistant, Content: resp}, nil
}

type recordingStore struct {
	docs        []string
	results     []rag.DocumentEmbedding
	searchErr   error
	searchCalls int
}

func (s *recordingStore) AddDocument(_ context.Context, content string) (string, error) {
	s.docs = append(s.docs, content)
	return fmt.Sprintf("doc-%d", len(s.docs)), nil
}

func (s *recordingStore) AddDocumentWithID(ctx context.Context, _, content string) (string, error) {
	return s.AddDocument(ctx, content)
}

func (s *recordingStore) UpsertDocument(context.Context, string, string, string) error { return nil }

func (s *recordingStore) SearchDocuments(context.Context, string, int) ([]rag.DocumentEmbedding, error) {
	s.searchCalls++
	return s.results, s.searchErr
}

func fullWorkflow() config.WorkflowConfig {
	return config.WorkflowConfig{Steps: []config.WorkflowStep{
		{From: "proposer", Condition: "proposal_generated", To: "reviewer"},
		{From: "reviewer", Condition: "approved", To: "validator"},
		{From: "reviewer", Condition: "revision_requested", To: "proposer"},
		{From: "validator", Condition: "validated", To: "formatter"},
		{From: "validator", Condition: "revision_requested", To: "proposer"},
		{From: "formatter", Condition: "exported", To: "completed"},
	}}
}

func testConfig(t *testing.T) config.TaskConfig {
	t.Helper()
	return config.TaskConfig{
		Name:     "unit",
		Workflow: fullWorkflow(),
		Output:   config.OutputConfig{Format: "markdown"},
	}
}

func testTask() task.Task {
	var ctx task.Context
	ctx.Add("source", "the source material")
	return task.New("task-1", "unit", "unit test task", ctx, "")
}

func drainEvents() (chan event.Event, *[]event.Event) {
	events := make(chan event.Event, 256)
	collected := &[]event.Event{}
	go func() {
		for ev := range events {
			*collected = append(*collected, ev)
		}
	}()
	return events, collected
}

func newTestWorker(t *testing.T, cfg config.TaskConfig, tk task.Task, store rag.VectorStore, responses ...string) (*Worker, chan event.Event) {
	t.Helper()
	client := llm.NewClientWithModel(&scriptedModel{responses: responses})
	events, _ := drainEvents()
	w, err := New(cfg, tk, store, client, events, nil)
	require.NoError(t, err)
	return w, events
}

func TestWorkerRunsFullWorkflow(t *testing.T) {
	w, _ := newTestWorker(t, testConfig(t), testTask(), &recordingStore{},
		"Proposal: the answer",
		"Approved",
		"Validated",
		"# Final output")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)
	assert.Equal(t, "# Final output", final.FinalOutput)
	assert.True(t, final.HasSystemMessage())
}

func TestWorkerRevisionLoop(t *testing.T) {
	w, _ := newTestWorker(t, testConfig(t), testTask(), &recordingStore{},
		"Proposal: first try",
		"Revise: tighten the summary",
		"Proposal: second try",
		"Approved",
		"Validated",
		"done")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)
	assert.Equal(t, "Proposal: second try", final.CurrentProposal)
	assert.Contains(t, final.FeedbackHistory, "tighten the summary")
}

func TestWorkerRecurringTaskGoesBackToSleep(t *testing.T) {
	tk := testTask()
	tk.Interval = "1h"
	w, _ := newTestWorker(t, testConfig(t), tk, &recordingStore{},
		"Proposal: x", "Approved", "Validated", "out")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateWaitingWakeUp, final.State.Kind)
	require.NotNil(t, final.LastRunAt)
	assert.WithinDuration(t, time.Now(), *final.LastRunAt, time.Minute)
}

func TestWorkerModuleRequestAndMemoization(t *testing.T) {
	docFile := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(docFile, []byte("chunk-one content"), 0o644))

	cfg := testConfig(t)
	cfg.Modules = []config.ModuleConfig{{Name: "rag"}}
	store := &recordingStore{}
	w, _ := newTestWorker(t, cfg, testTask(), store,
		"MODULE_REQUEST: rag index "+docFile,
		"Proposal: built from the index",
		"Approved",
		"Validated",
		"out")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)
	assert.Equal(t, []string{"chunk-one content"}, store.docs)

	// result injected back into the conversation as a user message
	found := false
	for _, m := range final.Conversation {
		if m.Role == llm.RoleUser && strings.Contains(m.Content, "indexed successfully") {
			found = true
		}
	}
	assert.True(t, found)

	_, cached := w.moduleCache[cacheKey("rag", "index", []string{docFile})]
	assert.True(t, cached)
}

func TestWorkerRepeatedModuleRequestExecutesOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = []config.ModuleConfig{{Name: "rag"}}
	store := &recordingStore{results: []rag.DocumentEmbedding{{ID: "doc-1", Content: "cached fact"}}}
	w, _ := newTestWorker(t, cfg, testTask(), store,
		"MODULE_REQUEST: rag search topic",
		"MODULE_REQUEST: rag search topic",
		"Proposal: built from one lookup",
		"Approved",
		"Validated",
		"out")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)
	assert.Equal(t, 1, store.searchCalls)

	// the result is injected exactly once
	injected := 0
	for _, m := range final.Conversation {
		if strings.Contains(m.Content, "Module 'rag' provided a result") {
			injected++
		}
	}
	assert.Equal(t, 1, injected)
}

func TestWorkerOversizeModuleResultIsPreviewed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = []config.ModuleConfig{{Name: "rag"}}
	big := strings.Repeat("a", 36000)
	store := &recordingStore{results: []rag.DocumentEmbedding{{ID: "doc-1", Content: big}}}
	w, _ := newTestWorker(t, cfg, testTask(), store,
		"MODULE_REQUEST: rag search everything",
		"Proposal: summarized",
		"Approved",
		"Validated",
		"out")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)

	found := false
	for _, m := range final.Conversation {
		if strings.Contains(m.Content, "too large") {
			found = true
			assert.Contains(t, m.Content, "Consider using the RAG module to index the content")
		}
		// the raw result must never be inlined, only previews of it
		assert.NotContains(t, m.Content, strings.Repeat("a", 600))
	}
	assert.True(t, found)
}

func TestWorkerRetryTruncatesToLastCleanAssistantMessage(t *testing.T) {
	// two off-format reviewer replies exhaust the format check, the
	// worker rolls back past the reminders and retries the role
	w, _ := newTestWorker(t, testConfig(t), testTask(), &recordingStore{},
		"Proposal: v1",
		"maybe?",
		"maybe?",
		"Approved",
		"Validated",
		"out")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)

	for _, m := range final.Conversation {
		assert.NotContains(t, m.Content, "did not follow the required format")
	}
	// the proposal survived the rollback
	assert.Equal(t, "Proposal: v1", final.CurrentProposal)
}

func TestWorkerUnknownModuleEnumeratesCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = []config.ModuleConfig{{Name: "rag"}}
	w, _ := newTestWorker(t, cfg, testTask(), &recordingStore{},
		"MODULE_REQUEST: nosuch do thing",
		"Proposal: recovered",
		"Approved",
		"Validated",
		"out")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)

	found := false
	for _, m := range final.Conversation {
		if strings.Contains(m.Content, "Module nosuch not found") &&
			strings.Contains(m.Content, "rag (actions:") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWorkerModuleFailureContinuesByDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = []config.ModuleConfig{{Name: "rag"}}
	store := &recordingStore{searchErr: errors.New("index offline")}
	w, _ := newTestWorker(t, cfg, testTask(), store,
		"MODULE_REQUEST: rag search anything",
		"Proposal: recovered without the module",
		"Approved",
		"Validated",
		"out")

	final := w.Run(context.Background())
	// role is re-driven and the workflow still finishes
	assert.Equal(t, task.StateCompleted, final.State.Kind)
}

func TestWorkerModuleFailureHaltsWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = []config.ModuleConfig{{Name: "rag"}}
	cfg.Parameters.HaltOnModuleFailure = true
	store := &recordingStore{searchErr: errors.New("index offline")}
	w, _ := newTestWorker(t, cfg, testTask(), store,
		"MODULE_REQUEST: rag search anything")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateFailed, final.State.Kind)
	assert.Contains(t, final.State.Reason, "index offline")
}

func TestWorkerRetriesExhaustMarksFailed(t *testing.T) {
	cfg := testConfig(t)
	zero := 0
	cfg.Parameters.MaxRetries = &zero

	// empty context makes the proposer fail immediately
	tk := task.New("task-1", "unit", "", task.Context{}, "")
	w, _ := newTestWorker(t, cfg, tk, &recordingStore{}, "Proposal: never used")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateFailed, final.State.Kind)
	assert.Contains(t, final.State.Reason, "Task failed after 0 retries")
}

func TestWorkerWorkflowDeadEndFails(t *testing.T) {
	cfg := testConfig(t)
	// no step for (reviewer, approved)
	cfg.Workflow = config.WorkflowConfig{Steps: []config.WorkflowStep{
		{From: "proposer", Condition: "proposal_generated", To: "reviewer"},
		{From: "formatter", Condition: "exported", To: "completed"},
	}}
	w, _ := newTestWorker(t, cfg, testTask(), &recordingStore{},
		"Proposal: x", "Approved")

	final := w.Run(context.Background())
	assert.Equal(t, task.StateFailed, final.State.Kind)
	assert.Equal(t, "No matching workflow step", final.State.Reason)
}

func TestWorkerPostCompletionFeedbackRestartsProposer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Parameters.PostCompletionFeedback = true

	client := llm.NewClientWithModel(&scriptedModel{responses: []string{
		"Proposal: v1", "Approved", "Validated", "v1 out",
		"Proposal: v2", "Approved", "Validated", "v2 out",
	}})
	events, _ := drainEvents()

	gaveFeedback := false
	feedback := func() string {
		if gaveFeedback {
			return ""
		}
		gaveFeedback = true
		return "please mention the caveats"
	}

	w, err := New(cfg, testTask(), &recordingStore{}, client, events, feedback)
	require.NoError(t, err)

	final := w.Run(context.Background())
	assert.Equal(t, task.StateCompleted, final.State.Kind)
	assert.Equal(t, "v2 out", final.FinalOutput)
	assert.Equal(t, "Proposal: v2", final.CurrentProposal)
}
