// Package runner evaluates selected tasks against a model and hands the
// results to a persister.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
	"github.com/datar-psa/evalkit/pipeline"
	"github.com/datar-psa/evalkit/results"
	"github.com/datar-psa/evalkit/task"
)

// Persister stores the result of one task evaluated by one model.
type Persister = results.Persister

// Options controls one Run.
type Options struct {
	// ModelID names the model in persisted output and metrics.
	ModelID string
	// Debug traces the first record of every task instead of evaluating it.
	// Nothing is scored or persisted.
	Debug bool
	// MaxRecords truncates each task's records when positive.
	MaxRecords int
	// Params override every pipeline's default invocation parameters.
	Params api.Params
	// KeepGoing runs the remaining tasks after a failure and returns all errors together.
	KeepGoing bool
}

// Report is the outcome of one task.
type Report struct {
	Task     string
	Result   *api.EvaluationResult
	Trace    pipeline.Trace
	Duration time.Duration
}

// Runner runs tasks from a registry.
type Runner struct {
	registry  *task.Registry
	persister Persister
	logger    log.Logger
	debugOut  io.Writer
	metrics   *Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithDebugOutput sets where debug traces are rendered. Defaults to stdout.
func WithDebugOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.debugOut = w
	}
}

// WithMetrics records every task run in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New returns a runner over registry. A nil persister discards results.
func New(registry *task.Registry, persister Persister, opts ...Option) *Runner {
	if persister == nil {
		persister = results.Discard{}
	}
	r := &Runner{
		registry:  registry,
		persister: persister,
		logger:    log.Default,
		debugOut:  os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSelection resolves sel in the registry and runs the selected tasks.
// A conflicting selection fails before any task runs.
func (r *Runner) RunSelection(ctx context.Context, model api.Model, sel task.Selection, opts Options) ([]Report, error) {
	tasks, err := r.registry.Load(sel)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		r.logger.Warnf("no task matches the selection")
	}
	return r.Run(ctx, model, tasks, opts)
}

// Run evaluates tasks in order. Without KeepGoing the first error is
// returned as is and later tasks do not run.
func (r *Runner) Run(ctx context.Context, model api.Model, tasks []*task.Task, opts Options) ([]Report, error) {
	reports := make([]Report, 0, len(tasks))
	var errs *multierror.Error
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := r.runTask(ctx, model, t, opts)
		if err != nil {
			r.logger.Errorf("task %s failed: %v", t.Name, err)
			if !opts.KeepGoing {
				return reports, err
			}
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t.Name, err))
			continue
		}
		if report != nil {
			reports = append(reports, *report)
		}
	}
	return reports, errs.ErrorOrNil()
}

func (r *Runner) runTask(ctx context.Context, model api.Model, t *task.Task, opts Options) (*Report, error) {
	if t.Pipeline == nil {
		return nil, fmt.Errorf("task %s has no pipeline", t.Name)
	}
	if opts.Debug {
		return r.debugTask(ctx, model, t, opts.Params)
	}

	start := time.Now()
	records, err := t.Records(ctx)
	if err != nil {
		r.metrics.observe(opts.ModelID, t.Name, time.Since(start), 0, nil, err)
		return nil, err
	}
	if opts.MaxRecords > 0 && len(records) > opts.MaxRecords {
		records = records[:opts.MaxRecords]
		t.SetRecords(records)
	}

	r.logger.Infof("running task %s on %d records (%s)", t.Name, len(records), t.Pipeline.InvokeMode())
	res, err := t.Pipeline.Run(ctx, model, records, opts.Params)
	elapsed := time.Since(start)
	if err != nil {
		r.metrics.observe(opts.ModelID, t.Name, elapsed, 0, nil, err)
		return nil, err
	}
	r.metrics.observe(opts.ModelID, t.Name, elapsed, len(res.Records), res.Metrics, nil)
	r.logger.Infof("task %s finished in %s: %v", t.Name, elapsed.Round(time.Millisecond), res.Metrics)

	if err := r.persister.Persist(ctx, opts.ModelID, t.Name, res); err != nil {
		return nil, err
	}
	return &Report{Task: t.Name, Result: res, Duration: elapsed}, nil
}

func (r *Runner) debugTask(ctx context.Context, model api.Model, t *task.Task, params api.Params) (*Report, error) {
	start := time.Now()
	records, err := t.Records(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		r.logger.Warnf("task %s has no records, skipping debug", t.Name)
		return nil, nil
	}
	trace, err := t.Pipeline.Debug(ctx, model, records[0], params)
	if err != nil {
		return nil, err
	}
	if err := pipeline.RenderTrace(r.debugOut, trace); err != nil {
		return nil, err
	}
	return &Report{Task: t.Name, Trace: trace, Duration: time.Since(start)}, nil
}
