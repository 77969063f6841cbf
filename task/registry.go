package task

import (
	"errors"
	"fmt"
	"sync"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/log"
	"github.com/datar-psa/evalkit/pipeline"
)

var (
	// ErrConflictingSelection is returned when a selection has both a name and a filter.
	ErrConflictingSelection = errors.New("select tasks by name or by filter, not both")
	// ErrDuplicateTask is returned by a registry with unique names on a second registration.
	ErrDuplicateTask = errors.New("task already registered")
)

// Predicate selects tasks.
type Predicate func(*Task) bool

// Selection picks tasks from a Registry. The zero value selects every task.
type Selection struct {
	Name   string
	Filter Predicate
}

// Registry maps task names to tasks, remembering registration order.
type Registry struct {
	mu       sync.RWMutex
	datasets *dataset.Registry
	tasks    map[string]*Task
	names    []string
	unique   bool
	logger   log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithUniqueNames makes a repeated registration fail with ErrDuplicateTask
// instead of replacing the earlier task.
func WithUniqueNames() RegistryOption {
	return func(r *Registry) {
		r.unique = true
	}
}

// WithLogger sets the registry logger.
func WithLogger(l log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry whose tasks resolve datasets in datasets.
func NewRegistry(datasets *dataset.Registry, opts ...RegistryOption) *Registry {
	r := &Registry{
		datasets: datasets,
		tasks:    make(map[string]*Task),
		logger:   log.Default,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t. A task registered under an existing name replaces the
// earlier one and keeps its position.
func (r *Registry) Register(t *Task) error {
	if t == nil || t.Name == "" {
		return errors.New("task must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.Name]; ok {
		if r.unique {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
		}
		r.logger.Warnf("task %s registered twice, replacing the earlier definition", t.Name)
	} else {
		r.names = append(r.names, t.Name)
	}
	if t.datasets == nil {
		t.datasets = r.datasets
	}
	r.tasks[t.Name] = t
	return nil
}

// Declare creates a task and registers it.
func (r *Registry) Declare(name string, p *pipeline.Pipeline, opts ...Option) (*Task, error) {
	t := New(name, p, opts...)
	if err := r.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the task registered under name.
func (r *Registry) Get(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, &api.NotFoundError{Kind: "task", Key: name}
	}
	return t, nil
}

// Names returns task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Load resolves sel. A name yields that single task; a filter yields the
// matching tasks in registration order, possibly none; an empty selection
// yields every task.
func (r *Registry) Load(sel Selection) ([]*Task, error) {
	if sel.Name != "" && sel.Filter != nil {
		return nil, ErrConflictingSelection
	}
	if sel.Name != "" {
		t, err := r.Get(sel.Name)
		if err != nil {
			return nil, err
		}
		return []*Task{t}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.names))
	for _, name := range r.names {
		t := r.tasks[name]
		if sel.Filter == nil || sel.Filter(t) {
			out = append(out, t)
		}
	}
	return out, nil
}
