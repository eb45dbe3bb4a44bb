package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/graniet/kheish/internal/task"
)

// Renderer prints task progress lines to a writer, styled when the
// writer is a terminal.
type Renderer struct {
	out     io.Writer
	styled  bool
	appName string
}

// NewRenderer creates a renderer. styled should be false when output
// is redirected.
func NewRenderer(out io.Writer, styled bool) *Renderer {
	return &Renderer{out: out, styled: styled, appName: "kheish"}
}

func (r *Renderer) render(style func(string) string, line string) {
	if r.styled {
		line = style(line)
	}
	fmt.Fprintln(r.out, line)
}

// Banner prints the application header.
func (r *Renderer) Banner(version string) {
	r.render(func(s string) string { return StyleHeader.Render(s) },
		fmt.Sprintf("%s %s", r.appName, version))
}

// Message prints a progress line for a task.
func (r *Renderer) Message(taskID, message string) {
	prefix := taskID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	r.render(func(s string) string { return StyleSubtle.Render(s) },
		fmt.Sprintf("[%s] %s", prefix, message))
}

// StateChange prints a lifecycle transition, colored by severity.
func (r *Renderer) StateChange(taskID string, st task.State) {
	line := fmt.Sprintf("[%s] state: %s", shortID(taskID), st)
	switch st.Kind {
	case task.StateCompleted:
		r.render(func(s string) string { return StyleSuccess.Render(s) }, line)
	case task.StateFailed:
		r.render(func(s string) string { return StyleError.Render(s) }, line)
	default:
		r.render(func(s string) string { return StyleSubtle.Render(s) }, line)
	}
}

// Output prints the final output of a task inside a box.
func (r *Renderer) Output(taskID, output string) {
	if strings.TrimSpace(output) == "" {
		return
	}
	if r.styled {
		fmt.Fprintln(r.out, StyleOutputBox.Render(output))
		return
	}
	fmt.Fprintln(r.out, output)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
