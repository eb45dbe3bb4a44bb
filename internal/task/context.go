package task

import (
	"fmt"
	"os"
	"strings"

	"github.com/graniet/kheish/internal/config"
)

// ContextEntry is one named input blob in a task context.
type ContextEntry struct {
	Alias   string `json:"alias"`
	Content string `json:"content"`
}

// Context carries the input data a task works from: free text plus
// named file blobs.
type Context struct {
	Entries []ContextEntry `json:"entries"`
}

// Add appends an entry to the context.
func (c *Context) Add(alias, content string) {
	c.Entries = append(c.Entries, ContextEntry{Alias: alias, Content: content})
}

// Combined renders every entry into one prompt-ready block.
func (c *Context) Combined() string {
	var b strings.Builder
	for _, e := range c.Entries {
		if e.Alias != "" {
			fmt.Fprintf(&b, "## %s\n", e.Alias)
		}
		b.WriteString(e.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// UserInputFunc supplies the content of "user_input" context items.
// A nil func leaves those entries empty.
type UserInputFunc func(prompt string) string

// BuildContext resolves the configured context items into a Context.
// File items are read from disk; unreadable files surface as an error
// rather than a silently empty context.
func BuildContext(cfg *config.TaskConfig, askUser UserInputFunc) (Context, error) {
	var ctx Context
	for _, item := range cfg.Context {
		alias := item.Alias
		switch item.Kind {
		case "file":
			data, err := os.ReadFile(item.Path)
			if err != nil {
				return Context{}, fmt.Errorf("read context file %q: %w", item.Path, err)
			}
			if alias == "" {
				alias = item.Path
			}
			ctx.Add(alias, string(data))
		case "text":
			ctx.Add(alias, item.Content)
		case "user_input":
			if askUser != nil {
				prompt := item.Content
				if prompt == "" {
					prompt = "Additional input"
				}
				ctx.Add(alias, askUser(prompt))
			}
		}
	}
	return ctx, nil
}
