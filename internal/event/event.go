// Package event carries notifications from workers to the scheduler:
// progress messages, state transitions and produced outputs.
package event

import "github.com/graniet/kheish/internal/task"

// Kind enumerates the event types workers emit.
type Kind int

const (
	// NewMessage is a human-facing progress line for a task.
	NewMessage Kind = iota
	// TaskStateUpdated signals a lifecycle transition to persist.
	TaskStateUpdated
	// NewOutput carries the formatted final output of a task.
	NewOutput
	// CreateTask asks the scheduler to persist a freshly started task.
	CreateTask
	// TaskCompleted signals that a worker run has finished.
	TaskCompleted
)

// Event is one notification. TaskID is always set; the other fields
// depend on Kind.
type Event struct {
	Kind    Kind
	TaskID  string
	Message string
	State   task.State
	Output  string
	Task    *task.Task
}

// Message builds a NewMessage event.
func Message(taskID, message string) Event {
	return Event{Kind: NewMessage, TaskID: taskID, Message: message}
}

// StateUpdated builds a TaskStateUpdated event.
func StateUpdated(taskID string, state task.State) Event {
	return Event{Kind: TaskStateUpdated, TaskID: taskID, State: state}
}

// Output builds a NewOutput event.
func Output(taskID, output string) Event {
	return Event{Kind: NewOutput, TaskID: taskID, Output: output}
}

// Created builds a CreateTask event carrying the task to persist.
func Created(t *task.Task) Event {
	return Event{Kind: CreateTask, TaskID: t.ID, Task: t}
}

// Completed builds a TaskCompleted event.
func Completed(taskID string) Event {
	return Event{Kind: TaskCompleted, TaskID: taskID}
}
