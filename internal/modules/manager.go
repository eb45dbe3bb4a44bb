package modules

import (
	"log/slog"
	"strings"

	"github.com/graniet/kheish/internal/config"
	"github.com/spf13/afero"
)

// Manager holds the modules loaded for one task, in configuration order.
type Manager struct {
	modules []Module
}

// NewManager loads modules named in the task configuration. Unknown
// names are logged and skipped rather than failing the task.
func NewManager(configs []config.ModuleConfig) *Manager {
	var loaded []Module
	for _, mc := range configs {
		switch mc.Name {
		case "fs":
			loaded = append(loaded, NewFileSystemModule(afero.NewOsFs()))
		case "sh":
			loaded = append(loaded, NewShellModule(mc.Config.AllowedCommands))
		case "http":
			loaded = append(loaded, NewHTTPModule())
		case "ssh":
			loaded = append(loaded, NewSSHModule())
		case "rag":
			loaded = append(loaded, NewVectorStoreModule())
		case "memories":
			loaded = append(loaded, NewMemoriesModule())
		default:
			slog.Warn("unknown module in task config", "module", mc.Name)
		}
	}
	return &Manager{modules: loaded}
}

// NewManagerWithModules builds a registry from explicit instances.
// Used by tests and the task-generation preview.
func NewManagerWithModules(mods ...Module) *Manager {
	return &Manager{modules: mods}
}

// Get returns a module by name, or false when none is registered.
func (m *Manager) Get(name string) (Module, bool) {
	for _, mod := range m.modules {
		if mod.Name() == name {
			return mod, true
		}
	}
	return nil, false
}

// Modules returns the loaded modules in configuration order.
func (m *Manager) Modules() []Module {
	return m.modules
}

// DescribeActions renders one module's action list for error messages.
func DescribeActions(mod Module) string {
	parts := make([]string, 0, len(mod.Actions()))
	for _, a := range mod.Actions() {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// DescribeAll enumerates every registered module and its actions,
// structured identically to the per-module listing. Used when a role
// requests a module that does not exist.
func (m *Manager) DescribeAll() string {
	parts := make([]string, 0, len(m.modules))
	for _, mod := range m.modules {
		parts = append(parts, mod.Name()+" (actions: "+DescribeActions(mod)+")")
	}
	return strings.Join(parts, "; ")
}
