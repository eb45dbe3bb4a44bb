package modules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graniet/kheish/internal/rag"
	"github.com/spf13/afero"
)

// FileSystemModule exposes file reads and writes to the roles.
type FileSystemModule struct {
	fs afero.Fs
}

// NewFileSystemModule creates the module over the given filesystem.
// Production uses the OS filesystem; tests use an in-memory one.
func NewFileSystemModule(fs afero.Fs) *FileSystemModule {
	return &FileSystemModule{fs: fs}
}

func (m *FileSystemModule) Name() string { return "fs" }

func (m *FileSystemModule) HandleAction(_ context.Context, _ rag.VectorStore, action string, params []string) (string, error) {
	switch action {
	case "read":
		if len(params) == 0 {
			return "", errors.New("missing parameter for 'read' action")
		}
		data, err := afero.ReadFile(m.fs, params[0])
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "read_multiple":
		if len(params) == 0 {
			return "", errors.New("missing parameter for 'read_multiple' action")
		}
		var files []string
		for _, path := range strings.Split(params[0], ",") {
			data, err := afero.ReadFile(m.fs, path)
			if err != nil {
				return "", err
			}
			files = append(files, fmt.Sprintf("File: %s\n%s", path, data))
		}
		return strings.Join(files, "\n\n"), nil

	case "list_directory":
		if len(params) == 0 {
			return "", errors.New("missing parameter for 'list_directory' action")
		}
		entries, err := afero.ReadDir(m.fs, params[0])
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString("Files found:\n")
		for i, entry := range entries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, entry.Name())
		}
		return b.String(), nil

	case "write":
		if len(params) < 2 {
			return "", errors.New("missing parameters for 'write' action (need path and content)")
		}
		if err := afero.WriteFile(m.fs, params[0], []byte(params[1]), 0o644); err != nil {
			return "", err
		}
		return "File written successfully", nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (m *FileSystemModule) Actions() []Action {
	return []Action{
		{Name: "read", ArgCount: 1, Description: "Read a file usage: fs read <path>"},
		{Name: "list_directory", ArgCount: 1, Description: "List files in a directory usage: fs list_directory <path>"},
		{Name: "write", ArgCount: 2, Description: "Write to a file usage: fs write <path> <content>"},
		{Name: "read_multiple", ArgCount: 1, Description: "Read multiple files usage: fs read_multiple <path1,path2,...>"},
	}
}
