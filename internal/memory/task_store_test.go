package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/task"
)

func openStore(t *testing.T) *TaskStore {
	t.Helper()
	store, err := NewTaskStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTask(id string) task.Task {
	var ctx task.Context
	ctx.Add("source", "material")
	tk := task.New(id, "sample", "a sample task", ctx, "1h")
	tk.AddMessage("user", "hello")
	tk.AddProposal("Proposal: v1")
	return tk
}

func TestInsertAndLoadTask(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	_, err := store.InsertTask(&tk, &config.TaskConfig{Name: "sample"})
	require.NoError(t, err)

	loaded, err := store.TasksByStates(task.StateNew)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, "t-1", got.ID)
	assert.Equal(t, "sample", got.Name)
	assert.Equal(t, task.StateNew, got.State.Kind)
	assert.Equal(t, "Proposal: v1", got.CurrentProposal)
	assert.Equal(t, "1h", got.Interval)
	require.Len(t, got.Conversation, 1)
	assert.Equal(t, "hello", got.Conversation[0].Content)
	assert.Equal(t, "material", got.Context.Entries[0].Content)
}

func TestInsertTaskIsIdempotent(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	first, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)
	second, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	loaded, err := store.TasksByStates(task.StateNew)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestUpdateStateRoundTrip(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	_, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)

	require.NoError(t, store.UpdateState("t-1", task.FailedState("boom")))

	loaded, err := store.TasksByStates(task.StateFailed)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "boom", loaded[0].State.Reason)

	none, err := store.TasksByStates(task.StateNew)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTasksByMultipleStates(t *testing.T) {
	store := openStore(t)

	ready := sampleTask("t-ready")
	_, err := store.InsertTask(&ready, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateState("t-ready", task.NewState(task.StateReady)))

	sleeping := sampleTask("t-sleeping")
	_, err = store.InsertTask(&sleeping, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateState("t-sleeping", task.NewState(task.StateWaitingWakeUp)))

	loaded, err := store.TasksByStates(task.StateReady, task.StateWaitingWakeUp)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestUpdateLastRun(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	_, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateLastRun("t-1"))

	loaded, err := store.TasksByStates(task.StateNew)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.NotNil(t, loaded[0].LastRunAt)
	assert.WithinDuration(t, time.Now(), *loaded[0].LastRunAt, time.Minute)
}

func TestConfigRoundTrip(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	cfg := &config.TaskConfig{
		Name: "sample",
		Parameters: config.Parameters{
			LLMProvider: "openai",
			LLMModel:    "gpt-4o",
		},
	}
	_, err := store.InsertTask(&tk, cfg)
	require.NoError(t, err)

	got, err := store.TaskConfig("t-1")
	require.NoError(t, err)
	assert.Equal(t, "sample", got.Name)
	assert.Equal(t, "openai", got.Parameters.LLMProvider)

	cfg.Parameters.LLMModel = "gpt-4o-mini"
	require.NoError(t, store.UpdateConfig("t-1", cfg))
	got, err = store.TaskConfig("t-1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Parameters.LLMModel)
}

func TestTaskConfigMissing(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	_, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)

	_, err = store.TaskConfig("t-1")
	assert.Error(t, err)
}

func TestOutputs(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	_, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)

	_, found, err := store.LatestOutput("t-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.AddOutput("t-1", "first"))
	require.NoError(t, store.AddOutput("t-1", "second"))

	out, found, err := store.LatestOutput("t-1")
	require.NoError(t, err)
	assert.True(t, found)
	// both rows share a second-resolution timestamp; either is the latest
	assert.Contains(t, []string{"first", "second"}, out)
}

func TestUpdateSnapshotPersistsConversation(t *testing.T) {
	store := openStore(t)

	tk := sampleTask("t-1")
	_, err := store.InsertTask(&tk, nil)
	require.NoError(t, err)

	tk.AddMessage("assistant", "Proposal: v2")
	tk.AddProposal("Proposal: v2")
	tk.State = task.NewState(task.StateWaitingWakeUp)
	now := time.Now()
	tk.LastRunAt = &now
	require.NoError(t, store.UpdateSnapshot(&tk))

	loaded, err := store.TasksByStates(task.StateWaitingWakeUp)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Proposal: v2", loaded[0].CurrentProposal)
	assert.Len(t, loaded[0].Conversation, 2)
	require.NotNil(t, loaded[0].LastRunAt)
}
