// Package modules provides the capability plugins a role can invoke
// mid-execution through the MODULE_REQUEST protocol, and the registry
// that dispatches to them.
package modules

import (
	"context"
	"fmt"

	"github.com/graniet/kheish/internal/rag"
)

// Action describes one discrete operation a module exposes.
type Action struct {
	Name        string
	ArgCount    int
	Description string
}

// String renders the action for capability listings surfaced back into
// the conversation.
func (a Action) String() string {
	return fmt.Sprintf("%s (%d args) - %s", a.Name, a.ArgCount, a.Description)
}

// Module is a named capability plugin. Params are always flat strings,
// parsed from the textual "MODULE_REQUEST: name action arg1 arg2"
// protocol. Error messages must be actionable: they are surfaced into
// the conversation so the calling role can self-correct.
type Module interface {
	Name() string
	Actions() []Action
	HandleAction(ctx context.Context, store rag.VectorStore, action string, params []string) (string, error)
}
