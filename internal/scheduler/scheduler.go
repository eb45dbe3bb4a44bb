// Package scheduler owns long-running operation: it persists tasks,
// scans for tasks to configure or wake up, watches a drop directory
// for new task files and spawns a worker per runnable task.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/event"
	"github.com/graniet/kheish/internal/llm"
	"github.com/graniet/kheish/internal/memory"
	"github.com/graniet/kheish/internal/rag"
	"github.com/graniet/kheish/internal/task"
	"github.com/graniet/kheish/internal/worker"
)

// defaultScanInterval drives both periodic scans: configuring new
// tasks and waking up runnable ones.
const defaultScanInterval = 10 * time.Second

// ClientFactory builds the chat client for a task config.
type ClientFactory func(ctx context.Context, cfg config.TaskConfig) (*llm.Client, error)

// StoreFactory builds the per-task vector store.
type StoreFactory func(ctx context.Context, cfg config.TaskConfig) (rag.VectorStore, error)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	ScanInterval time.Duration
	// WatchDir, when set, is watched for dropped task YAML files.
	WatchDir string
	// OnMessage receives human-facing progress lines.
	OnMessage func(taskID, message string)
	Clients   ClientFactory
	Stores    StoreFactory
	// TaskGenClient generates configs for tasks submitted without one.
	TaskGenClient *llm.Client
}

// Manager runs the scheduling loop.
type Manager struct {
	store  *memory.TaskStore
	opts   Options
	events chan event.Event

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewManager creates a scheduler around the given task store.
func NewManager(store *memory.TaskStore, opts Options) *Manager {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = defaultScanInterval
	}
	if opts.Clients == nil {
		opts.Clients = defaultClientFactory
	}
	if opts.Stores == nil {
		opts.Stores = defaultStoreFactory
	}
	return &Manager{
		store:   store,
		opts:    opts,
		events:  make(chan event.Event, 64),
		running: make(map[string]bool),
	}
}

func defaultClientFactory(ctx context.Context, cfg config.TaskConfig) (*llm.Client, error) {
	return llm.NewClient(ctx, llm.Config{
		Provider: cfg.Parameters.LLMProvider,
		Model:    cfg.Parameters.LLMModel,
		APIKey:   llm.APIKeyFromEnv(cfg.Parameters.LLMProvider),
	})
}

// NeedsVectorStore reports whether the configured modules require a
// vector store at all.
func NeedsVectorStore(cfg *config.TaskConfig) bool {
	for _, m := range cfg.Modules {
		if m.Name == "rag" || m.Name == "memories" {
			return true
		}
	}
	return false
}

func defaultStoreFactory(ctx context.Context, cfg config.TaskConfig) (rag.VectorStore, error) {
	if !NeedsVectorStore(&cfg) {
		return nil, nil
	}
	provider := cfg.Parameters.LLMProvider
	model := llm.DefaultOpenAIEmbeddingModel
	if cfg.Parameters.Embedder != nil && cfg.Parameters.Embedder.Model != "" {
		model = cfg.Parameters.Embedder.Model
	}
	embedder, err := llm.NewEmbedder(ctx, llm.Config{
		Provider:       provider,
		EmbeddingModel: model,
		APIKey:         llm.APIKeyFromEnv(provider),
	})
	if err != nil {
		return nil, err
	}
	return rag.NewInMemoryStore(embedder), nil
}

// Submit persists a fully configured task in the Ready state; the next
// wake-up scan will pick it up.
func (m *Manager) Submit(cfg *config.TaskConfig, askUser task.UserInputFunc) (string, error) {
	tctx, err := task.BuildContext(cfg, askUser)
	if err != nil {
		return "", fmt.Errorf("build task context: %w", err)
	}
	t := task.New(uuid.New().String(), cfg.Name, cfg.Description, tctx, cfg.Interval)
	t.State = task.NewState(task.StateReady)
	if _, err := m.store.InsertTask(&t, cfg); err != nil {
		return "", err
	}
	m.message(t.ID, fmt.Sprintf("Task '%s' submitted", cfg.Name))
	return t.ID, nil
}

// SubmitDescription persists an unconfigured task in the New state;
// the next configuration scan will generate its config.
func (m *Manager) SubmitDescription(name, description string) (string, error) {
	t := task.New(uuid.New().String(), name, description, task.Context{}, "")
	if _, err := m.store.InsertTask(&t, nil); err != nil {
		return "", err
	}
	return t.ID, nil
}

// Run drives the scheduling loop until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	configTicker := time.NewTicker(m.opts.ScanInterval)
	wakeTicker := time.NewTicker(m.opts.ScanInterval)
	defer configTicker.Stop()
	defer wakeTicker.Stop()

	var watcherEvents <-chan fsnotify.Event
	if m.opts.WatchDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		if err := os.MkdirAll(m.opts.WatchDir, 0o755); err != nil {
			return fmt.Errorf("create watch dir: %w", err)
		}
		if err := watcher.Add(m.opts.WatchDir); err != nil {
			return fmt.Errorf("watch %s: %w", m.opts.WatchDir, err)
		}
		watcherEvents = watcher.Events
		slog.Info("watching for task files", "dir", m.opts.WatchDir)
	}

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return ctx.Err()

		case ev := <-m.events:
			m.handleEvent(ev)

		case <-configTicker.C:
			if err := m.configureNewTasks(ctx); err != nil {
				slog.Error("configuring new tasks", "err", err)
			}

		case <-wakeTicker.C:
			if err := m.wakeRunnableTasks(ctx); err != nil {
				slog.Error("waking runnable tasks", "err", err)
			}

		case fev, ok := <-watcherEvents:
			if !ok {
				watcherEvents = nil
				continue
			}
			if fev.Op.Has(fsnotify.Create) || fev.Op.Has(fsnotify.Write) {
				m.handleDroppedFile(fev.Name)
			}
		}
	}
}

func (m *Manager) message(taskID, msg string) {
	if m.opts.OnMessage != nil {
		m.opts.OnMessage(taskID, msg)
	} else {
		slog.Info(msg, "task", taskID)
	}
}

func (m *Manager) handleEvent(ev event.Event) {
	switch ev.Kind {
	case event.NewMessage:
		m.message(ev.TaskID, ev.Message)
	case event.TaskStateUpdated:
		if err := m.store.UpdateState(ev.TaskID, ev.State); err != nil {
			slog.Error("persisting task state", "task", ev.TaskID, "err", err)
		}
		m.message(ev.TaskID, fmt.Sprintf("Task %s state updated: %s", ev.TaskID, ev.State))
	case event.NewOutput:
		if err := m.store.AddOutput(ev.TaskID, ev.Output); err != nil {
			slog.Error("persisting task output", "task", ev.TaskID, "err", err)
		}
		m.message(ev.TaskID, fmt.Sprintf("Task %s output updated", ev.TaskID))
	case event.CreateTask:
		if ev.Task != nil {
			if _, err := m.store.InsertTask(ev.Task, nil); err != nil {
				slog.Error("persisting task", "task", ev.TaskID, "err", err)
			}
		}
	case event.TaskCompleted:
		m.message(ev.TaskID, "Task completed")
	}
}

// handleDroppedFile loads a task YAML dropped into the watch directory
// and submits it.
func (m *Manager) handleDroppedFile(path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return
	}
	cfg, err := config.LoadTaskConfig(path)
	if err != nil {
		slog.Error("loading dropped task file", "path", path, "err", err)
		return
	}
	if _, err := m.Submit(cfg, nil); err != nil {
		slog.Error("submitting dropped task", "path", path, "err", err)
	}
}

// configureNewTasks moves New tasks to Ready by generating their
// configuration from the task description.
func (m *Manager) configureNewTasks(ctx context.Context) error {
	if m.opts.TaskGenClient == nil {
		return nil
	}
	tasks, err := m.store.TasksByStates(task.StateNew)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := m.store.UpdateState(t.ID, task.NewState(task.StateConfiguring)); err != nil {
			slog.Error("marking task configuring", "task", t.ID, "err", err)
			continue
		}
		cfg, _, err := GenerateTaskConfig(ctx, m.opts.TaskGenClient, t.Description, nil)
		if err != nil {
			slog.Error("generating task config", "task", t.ID, "err", err)
			// back to New so the next scan retries
			_ = m.store.UpdateState(t.ID, task.NewState(task.StateNew))
			continue
		}
		if err := m.store.UpdateConfig(t.ID, cfg); err != nil {
			slog.Error("saving generated config", "task", t.ID, "err", err)
			continue
		}
		if err := m.store.UpdateState(t.ID, task.NewState(task.StateReady)); err != nil {
			slog.Error("marking task ready", "task", t.ID, "err", err)
			continue
		}
		m.message(t.ID, fmt.Sprintf("Task '%s' configured and ready", t.Name))
	}
	return nil
}

// wakeRunnableTasks spawns a worker for every Ready or sleeping task
// whose interval has elapsed.
func (m *Manager) wakeRunnableTasks(ctx context.Context) error {
	tasks, err := m.store.TasksByStates(task.StateReady, task.StateWaitingWakeUp)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if !ShouldExecuteNow(t.Interval, t.LastRunAt, time.Now()) {
			continue
		}
		m.mu.Lock()
		if m.running[t.ID] {
			m.mu.Unlock()
			continue
		}
		m.running[t.ID] = true
		m.mu.Unlock()

		if err := m.spawnWorker(ctx, t); err != nil {
			slog.Error("spawning worker", "task", t.ID, "err", err)
			m.mu.Lock()
			delete(m.running, t.ID)
			m.mu.Unlock()
		}
	}
	return nil
}

func (m *Manager) spawnWorker(ctx context.Context, t task.Task) error {
	cfg, err := m.store.TaskConfig(t.ID)
	if err != nil {
		return err
	}
	client, err := m.opts.Clients(ctx, *cfg)
	if err != nil {
		return err
	}
	store, err := m.opts.Stores(ctx, *cfg)
	if err != nil {
		return err
	}
	w, err := worker.New(*cfg, t, store, client, m.events, nil)
	if err != nil {
		return err
	}

	if err := m.store.UpdateLastRun(t.ID); err != nil {
		slog.Error("updating last run", "task", t.ID, "err", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		final := w.Run(ctx)
		if err := m.store.UpdateSnapshot(&final); err != nil {
			slog.Error("persisting task snapshot", "task", final.ID, "err", err)
		}
		m.mu.Lock()
		delete(m.running, final.ID)
		m.mu.Unlock()
	}()
	return nil
}

// ShouldExecuteNow reports whether a recurring task is due. Tasks
// without an interval or without a previous run are always due.
func ShouldExecuteNow(interval string, lastRun *time.Time, now time.Time) bool {
	if interval == "" || lastRun == nil {
		return true
	}
	d, err := time.ParseDuration(interval)
	if err != nil {
		return false
	}
	return !lastRun.Add(d).After(now)
}
