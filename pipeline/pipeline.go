// Package pipeline runs the evaluation stages over a record collection:
// preprocess, compile, invoke, parse, postprocess and score.
package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
	"github.com/datar-psa/evalkit/metric"
	"github.com/datar-psa/evalkit/prompt"
)

var tracer = otel.Tracer("github.com/datar-psa/evalkit/pipeline")

// ErrOutputMismatch is returned when a model answers a batch with the wrong number of outputs.
var ErrOutputMismatch = errors.New("model output count does not match prompt count")

// Pipeline holds the stage configuration. It keeps no state between runs and
// is safe to Run concurrently if its stages are.
type Pipeline struct {
	compiler      api.PromptCompiler
	preprocessors []api.Processor
	parser        api.Parser
	postprocessor []api.Processor
	metrics       []api.Metric
	defaults      api.Params
	mode          api.InvokeMode
	logger        log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPreprocessors appends processors run before compilation, in order.
func WithPreprocessors(ps ...api.Processor) Option {
	return func(p *Pipeline) {
		p.preprocessors = append(p.preprocessors, ps...)
	}
}

// WithParser sets the parser applied to every raw output.
func WithParser(parser api.Parser) Option {
	return func(p *Pipeline) {
		p.parser = parser
	}
}

// WithPostprocessors appends processors run after outputs are attached, in order.
func WithPostprocessors(ps ...api.Processor) Option {
	return func(p *Pipeline) {
		p.postprocessor = append(p.postprocessor, ps...)
	}
}

// WithMetrics appends metrics. On name collision the later metric wins.
func WithMetrics(ms ...api.Metric) Option {
	return func(p *Pipeline) {
		p.metrics = append(p.metrics, ms...)
	}
}

// WithDefaultParams sets invocation parameters that per-run parameters override.
func WithDefaultParams(params api.Params) Option {
	return func(p *Pipeline) {
		p.defaults = params
	}
}

// WithInvokeMode sets the mode requested from the model in Run.
func WithInvokeMode(mode api.InvokeMode) Option {
	return func(p *Pipeline) {
		p.mode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New builds a pipeline around compiler.
func New(compiler api.PromptCompiler, opts ...Option) (*Pipeline, error) {
	if compiler == nil {
		return nil, errors.New("pipeline: prompt compiler is required")
	}
	p := &Pipeline{
		compiler: compiler,
		mode:     api.InvokeSync,
		logger:   log.Default,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MustNew is like New but panics on error.
func MustNew(compiler api.PromptCompiler, opts ...Option) *Pipeline {
	p, err := New(compiler, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// InvokeMode returns the mode Run requests from the model.
func (p *Pipeline) InvokeMode() api.InvokeMode {
	return p.mode
}

// DefaultParams returns a copy of the default invocation parameters.
func (p *Pipeline) DefaultParams() api.Params {
	return api.MergeParams(p.defaults, nil)
}

// Run evaluates records with model. The caller's collection and records are
// not modified; params override the pipeline defaults.
func (p *Pipeline) Run(ctx context.Context, model api.Model, records api.Records, params api.Params) (*api.EvaluationResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.Int("pipeline.records", len(records)),
		attribute.String("pipeline.invoke_mode", p.mode.String()),
	))
	defer span.End()

	res, err := p.run(ctx, model, records, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, model api.Model, records api.Records, params api.Params) (*api.EvaluationResult, error) {
	records = records.Clone()

	records, err := p.stage(ctx, "preprocess", func(context.Context) (api.Records, error) {
		return p.process(records, p.preprocessors)
	})
	if err != nil {
		return nil, err
	}

	prompts, err := p.compile(ctx, records)
	if err != nil {
		return nil, err
	}

	outputs, err := p.invoke(ctx, model, prompts, p.mode, params)
	if err != nil {
		return nil, err
	}
	p.attach(records, outputs)

	records, err = p.stage(ctx, "postprocess", func(context.Context) (api.Records, error) {
		return p.process(records, p.postprocessor)
	})
	if err != nil {
		return nil, err
	}

	scores, err := p.score(ctx, records)
	if err != nil {
		return nil, err
	}
	p.logger.Debugf("pipeline scored %d records: %v", len(records), scores)
	return &api.EvaluationResult{Metrics: scores, Records: records}, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) (api.Records, error)) (api.Records, error) {
	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	records, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, name)
	}
	span.SetAttributes(attribute.Int("pipeline.records", len(records)))
	return records, nil
}

func (p *Pipeline) process(records api.Records, processors []api.Processor) (api.Records, error) {
	for _, proc := range processors {
		var err error
		records, err = p.apply(proc, records)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (p *Pipeline) apply(proc api.Processor, records api.Records) (api.Records, error) {
	out, err := proc.Process(records)
	if err != nil {
		return nil, errors.Wrapf(err, "processor %s", proc.Name())
	}
	return out, nil
}

// compile stores each compiled prompt on its record and returns the batch.
func (p *Pipeline) compile(ctx context.Context, records api.Records) ([]api.Messages, error) {
	_, span := tracer.Start(ctx, "pipeline.compile")
	defer span.End()

	prompts := make([]api.Messages, len(records))
	for i, r := range records {
		fields, err := prompt.Fields(p.compiler, r)
		if err != nil {
			return nil, errors.Wrapf(err, "compile record %d", i)
		}
		msgs, err := p.compiler.Compile(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "compile record %d", i)
		}
		r.Set(api.FieldPrompt, msgs)
		prompts[i] = msgs
	}
	return prompts, nil
}

// invoke makes the single model call for the batch. Model errors are
// returned unwrapped.
func (p *Pipeline) invoke(ctx context.Context, model api.Model, prompts []api.Messages, mode api.InvokeMode, params api.Params) ([]string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.invoke", trace.WithAttributes(
		attribute.Int("pipeline.prompts", len(prompts)),
		attribute.String("pipeline.invoke_mode", mode.String()),
	))
	defer span.End()

	outputs, err := model.Invoke(ctx, prompts, mode, api.MergeParams(p.defaults, params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(outputs) != len(prompts) {
		return nil, errors.Wrapf(ErrOutputMismatch, "got %d outputs for %d prompts", len(outputs), len(prompts))
	}
	return outputs, nil
}

func (p *Pipeline) attach(records api.Records, outputs []string) {
	for i, r := range records {
		r.Set(api.FieldResult, outputs[i])
		if p.parser != nil {
			r.Set(api.FieldParsedResult, p.parser.Parse(outputs[i]))
		}
	}
}

func (p *Pipeline) score(ctx context.Context, records api.Records) (map[string]float64, error) {
	ctx, span := tracer.Start(ctx, "pipeline.score")
	defer span.End()

	scores, err := metric.Merge(ctx, records, p.metrics...)
	if err != nil {
		return nil, errors.Wrap(err, "score")
	}
	for name, v := range scores {
		span.SetAttributes(attribute.Float64("metric."+name, v))
	}
	return scores, nil
}
