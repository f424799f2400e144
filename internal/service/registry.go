package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrRunCanceled is returned by a task that observed a cancel request and
// stopped early. The engine records such runs as canceled rather than failed.
var ErrRunCanceled = errors.New("run canceled on operator request")

// TaskContext is handed to every registered task. Tasks poll ShouldCancel at
// convenient checkpoints and use Log/UpdateMessage to surface progress on the
// run log.
type TaskContext interface {
	// ShouldCancel reports whether a cooperative cancel was requested for
	// this run's config. A task that stops in response returns
	// ErrRunCanceled.
	ShouldCancel(ctx context.Context) bool
	// Log writes one structured progress line attributed to the run.
	Log(msg string, args ...any)
	// UpdateMessage replaces the run log's live status message.
	UpdateMessage(ctx context.Context, msg string) error
	// Args returns the config's task arguments.
	Args() map[string]any
}

// TaskFunc is one executable unit of scheduled work. Returning an error marks
// the run as failed, except ErrRunCanceled which marks it canceled; the
// returned string becomes the run log message.
type TaskFunc func(ctx context.Context, tc TaskContext) (string, error)

// TaskRegistry maps task names to callables. Job configs reference tasks by
// name only, so renaming a registered task orphans its configs.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]TaskFunc)}
}

// Register adds a task under a name. Re-registering a name replaces the
// previous callable.
func (r *TaskRegistry) Register(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = fn
}

// Resolve returns the callable for a name.
func (r *TaskRegistry) Resolve(name string) (TaskFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("task %q is not registered", name)
	}
	return fn, nil
}

// Names returns the registered task names in sorted order.
func (r *TaskRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
