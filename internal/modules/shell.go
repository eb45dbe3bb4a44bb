package modules

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/graniet/kheish/internal/rag"
)

// ShellModule runs subprocesses on behalf of a role, restricted to a
// configurable allow-list. An empty list means unrestricted.
type ShellModule struct {
	allowedCommands []string
}

// NewShellModule creates the module with the given allow-list.
func NewShellModule(allowedCommands []string) *ShellModule {
	return &ShellModule{allowedCommands: allowedCommands}
}

func (m *ShellModule) Name() string { return "sh" }

func (m *ShellModule) isAllowed(cmd string) bool {
	if len(m.allowedCommands) == 0 {
		return true
	}
	for _, allowed := range m.allowedCommands {
		if allowed == cmd {
			return true
		}
	}
	return false
}

func (m *ShellModule) HandleAction(ctx context.Context, _ rag.VectorStore, action string, params []string) (string, error) {
	switch action {
	case "run":
		if len(params) == 0 {
			return "", errors.New("missing command to run")
		}
		command, args := params[0], params[1:]
		if !m.isAllowed(command) {
			return "", fmt.Errorf("command %q not allowed", command)
		}

		cmd := exec.CommandContext(ctx, command, args...)
		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if stderr.Len() == 0 && stdout.Len() == 0 {
				return "", err
			}
		}
		if strings.TrimSpace(stderr.String()) != "" {
			return fmt.Sprintf("STDOUT:\n%s\n\nSTDERR:\n%s", stdout.String(), stderr.String()), nil
		}
		return stdout.String(), nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (m *ShellModule) Actions() []Action {
	allowed := "all"
	if len(m.allowedCommands) > 0 {
		allowed = strings.Join(m.allowedCommands, ", ")
	}
	return []Action{{
		Name:        "run",
		ArgCount:    1,
		Description: fmt.Sprintf("Run a shell command. Allowed commands: %s. Usage: run <command> [args...]", allowed),
	}}
}
