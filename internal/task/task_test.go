package task

import (
	"fmt"
	"testing"

	"github.com/graniet/kheish/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddProposalKeepsCurrentInSync(t *testing.T) {
	tk := New("t1", "demo", "", Context{}, "")

	tk.AddProposal("first draft")
	tk.AddProposal("second draft")

	require.Len(t, tk.ProposalHistory, 2)
	assert.Equal(t, "second draft", tk.CurrentProposal)
	assert.Equal(t, tk.ProposalHistory[len(tk.ProposalHistory)-1], tk.CurrentProposal)
}

func TestSetFeedbackBoundedRing(t *testing.T) {
	tk := New("t1", "demo", "", Context{}, "")

	for i := 0; i < MaxFeedbackHistory+20; i++ {
		tk.SetFeedback(fmt.Sprintf("feedback %d", i))
	}

	assert.Len(t, tk.FeedbackHistory, MaxFeedbackHistory)
	// Oldest entries are evicted first.
	assert.Equal(t, "feedback 20", tk.FeedbackHistory[0])
}

func TestStateRoundTrip(t *testing.T) {
	cases := []State{
		NewState(StateNew),
		NewState(StateReady),
		NewState(StateWaitingWakeUp),
		NewState(StateCompleted),
		FailedState("no matching workflow step"),
	}
	for _, s := range cases {
		assert.Equal(t, s, ParseState(s.String()))
	}
}

func TestWorkflowFirstMatchWins(t *testing.T) {
	w := NewWorkflow([]config.WorkflowStep{
		{From: "proposer", Condition: "proposal_generated", To: "reviewer"},
		{From: "proposer", Condition: "proposal_generated", To: "validator"},
		{From: "reviewer", Condition: "approved", To: "completed"},
	})

	next, ok := w.NextRole("proposer", "proposal_generated")
	require.True(t, ok)
	assert.Equal(t, "reviewer", next)

	next, ok = w.NextRole("reviewer", "approved")
	require.True(t, ok)
	assert.Equal(t, RoleCompleted, next)

	_, ok = w.NextRole("reviewer", "revision_requested")
	assert.False(t, ok)
}

func TestContextCombined(t *testing.T) {
	var c Context
	c.Add("readme", "hello")
	c.Add("", "raw text")

	combined := c.Combined()
	assert.Contains(t, combined, "## readme\nhello")
	assert.Contains(t, combined, "raw text")
}

func TestBuildContextFromConfig(t *testing.T) {
	cfg := &config.TaskConfig{
		Name: "demo",
		Context: []config.ContextItem{
			{Kind: "text", Content: "inline", Alias: "notes"},
			{Kind: "user_input", Content: "Anything else?", Alias: "extra"},
		},
	}

	ctx, err := BuildContext(cfg, func(prompt string) string {
		assert.Equal(t, "Anything else?", prompt)
		return "user says hi"
	})
	require.NoError(t, err)
	require.Len(t, ctx.Entries, 2)
	assert.Equal(t, "user says hi", ctx.Entries[1].Content)
}

func TestBuildContextMissingFileFails(t *testing.T) {
	cfg := &config.TaskConfig{
		Name:    "demo",
		Context: []config.ContextItem{{Kind: "file", Path: "/definitely/not/here.txt"}},
	}
	_, err := BuildContext(cfg, nil)
	assert.Error(t, err)
}
