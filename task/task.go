// Package task binds datasets to evaluation pipelines under a name and keeps
// a registry of such tasks.
package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/pipeline"
)

// ErrNoSource is returned when a task has neither a loader nor a dataset registry.
var ErrNoSource = errors.New("task has no record source")

// Task is a named evaluation: where its records come from and how they are evaluated.
//
// Records are loaded at most once. Until loaded, or after SetRecords, the
// cached collection is what every reader sees.
type Task struct {
	Name        string
	DatasetName string
	// Split is passed to the dataset loader. Empty means the loader default.
	Split    string
	Loader   dataset.Loader
	Pipeline *pipeline.Pipeline
	Tags     []string

	datasets *dataset.Registry

	mu      sync.Mutex
	records api.Records
	loaded  bool
}

// Option configures a Task.
type Option func(*Task)

// WithDataset names the registered dataset the task reads.
func WithDataset(name string) Option {
	return func(t *Task) {
		t.DatasetName = name
	}
}

// WithSplit selects the dataset split.
func WithSplit(split string) Option {
	return func(t *Task) {
		t.Split = split
	}
}

// WithLoader sets an explicit loader, taking precedence over the dataset registry.
func WithLoader(l dataset.Loader) Option {
	return func(t *Task) {
		t.Loader = l
	}
}

// WithTags attaches free-form labels used by filters.
func WithTags(tags ...string) Option {
	return func(t *Task) {
		t.Tags = append(t.Tags, tags...)
	}
}

// WithDatasets sets the registry used to resolve DatasetName. Registering
// the task in a Registry sets it too.
func WithDatasets(r *dataset.Registry) Option {
	return func(t *Task) {
		t.datasets = r
	}
}

// WithRecords preloads the records cell.
func WithRecords(records api.Records) Option {
	return func(t *Task) {
		t.records = records
		t.loaded = true
	}
}

// New creates a task evaluated by p. DatasetName defaults to name.
func New(name string, p *pipeline.Pipeline, opts ...Option) *Task {
	t := &Task{Name: name, DatasetName: name, Pipeline: p}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Records returns the task's records, loading them on first use.
// A failed load is not cached and the loader error is returned unchanged.
func (t *Task) Records(ctx context.Context) (api.Records, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loaded {
		return t.records, nil
	}
	records, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	t.records, t.loaded = records, true
	return records, nil
}

func (t *Task) load(ctx context.Context) (api.Records, error) {
	if t.Loader != nil {
		return t.Loader(ctx, t.Split)
	}
	if t.datasets == nil {
		return nil, fmt.Errorf("task %s: %w", t.Name, ErrNoSource)
	}
	return t.datasets.Load(ctx, t.DatasetName, t.Split)
}

// SetRecords replaces the records cell. Later reads return records.
func (t *Task) SetRecords(records api.Records) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records, t.loaded = records, true
}

// Loaded reports whether the records cell holds a value.
func (t *Task) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// HasTag reports whether tag is attached to the task.
func (t *Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// Run loads the records and evaluates them with model.
func (t *Task) Run(ctx context.Context, model api.Model, params api.Params) (*api.EvaluationResult, error) {
	if t.Pipeline == nil {
		return nil, fmt.Errorf("task %s has no pipeline", t.Name)
	}
	records, err := t.Records(ctx)
	if err != nil {
		return nil, err
	}
	return t.Pipeline.Run(ctx, model, records, params)
}
