package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"

	"github.com/datar-psa/evalkit/api"
)

// ErrEmptyBatch is returned by Debug when a preprocessor drops the record.
var ErrEmptyBatch = errors.New("preprocessing produced no records")

// Step is one titled snapshot of a Debug run.
type Step struct {
	Title string
	// Value is a *api.Record, api.Messages or string.
	Value any
}

// Trace lists the snapshots of a Debug run in stage order.
type Trace []Step

// Final returns the merged record of the last step, or nil.
func (t Trace) Final() *api.Record {
	if len(t) == 0 {
		return nil
	}
	r, _ := t[len(t)-1].Value.(*api.Record)
	return r
}

// Titles returns the step titles in order.
func (t Trace) Titles() []string {
	titles := make([]string, len(t))
	for i, s := range t {
		titles[i] = s.Title
	}
	return titles
}

// Debug runs one record through every stage in sync mode and records what
// each stage produced. params are merged over the defaults exactly as in Run.
// No metrics are computed and record is not modified.
//
// When a preprocessor expands the record, the first output is followed.
func (p *Pipeline) Debug(ctx context.Context, model api.Model, record *api.Record, params api.Params) (Trace, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Debug")
	defer span.End()

	trace, err := p.debug(ctx, model, record, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return trace, nil
}

func (p *Pipeline) debug(ctx context.Context, model api.Model, record *api.Record, params api.Params) (Trace, error) {
	original := record.Clone()
	trace := Trace{{Title: "Record", Value: original.Clone()}}

	records := api.Records{original.Clone()}
	var err error
	for _, proc := range p.preprocessors {
		records, err = p.apply(proc, records)
		if err != nil {
			return nil, errors.Wrap(err, "preprocess")
		}
		if len(records) == 0 {
			return nil, errors.Wrapf(ErrEmptyBatch, "after %s", proc.Name())
		}
		records = records[:1]
		trace = append(trace, Step{Title: proc.Name() + " Record", Value: records[0].Clone()})
	}

	prompts, err := p.compile(ctx, records)
	if err != nil {
		return nil, err
	}
	trace = append(trace, Step{Title: "Prompt", Value: prompts[0]})

	outputs, err := p.invoke(ctx, model, prompts, api.InvokeSync, params)
	if err != nil {
		return nil, err
	}
	p.attach(records, outputs)
	trace = append(trace, Step{Title: "Model Result", Value: outputs[0]})
	if p.parser != nil {
		parsed, _ := records[0].String(api.FieldParsedResult)
		trace = append(trace, Step{Title: "Parser Result", Value: parsed})
	}

	for _, proc := range p.postprocessor {
		records, err = p.apply(proc, records)
		if err != nil {
			return nil, errors.Wrap(err, "postprocess")
		}
		if len(records) == 0 {
			return nil, errors.Wrapf(ErrEmptyBatch, "after %s", proc.Name())
		}
		records = records[:1]
		trace = append(trace, Step{Title: proc.Name() + " Record", Value: records[0].Clone()})
	}

	trace = append(trace, Step{Title: "Final Record", Value: original.Update(records[0])})
	return trace, nil
}
