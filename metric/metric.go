// Package metric scores fully populated record collections.
package metric

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"

	"github.com/datar-psa/evalkit/api"
)

// ErrMissingField is returned when a record lacks a field a metric reads.
var ErrMissingField = errors.New("record is missing a metric field")

// Round rounds v to 5 decimal places, the precision reported for every metric.
func Round(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// Merge computes every metric in order and merges their outputs.
// A later metric overwrites an earlier one on name collision.
func Merge(ctx context.Context, records api.Records, metrics ...api.Metric) (map[string]float64, error) {
	merged := make(map[string]float64)
	for _, m := range metrics {
		scores, err := m.Compute(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", m.Name(), err)
		}
		maps.Copy(merged, scores)
	}
	return merged, nil
}

type accuracy struct {
	pred, target string
}

// Accuracy returns the fraction of records whose pred equals target.
// Numbers compare by value regardless of their Go type; other values must be
// deeply equal. An empty collection scores 0.
func Accuracy() api.Metric {
	return &accuracy{pred: api.FieldPred, target: api.FieldTarget}
}

func (m *accuracy) Name() string { return "accuracy" }

func (m *accuracy) Compute(_ context.Context, records api.Records) (map[string]float64, error) {
	if len(records) == 0 {
		return map[string]float64{m.Name(): 0}, nil
	}
	correct := 0
	for i, r := range records {
		pred, ok := r.Get(m.pred)
		if !ok {
			return nil, fmt.Errorf("%w: record %d has no %q", ErrMissingField, i, m.pred)
		}
		target, ok := r.Get(m.target)
		if !ok {
			return nil, fmt.Errorf("%w: record %d has no %q", ErrMissingField, i, m.target)
		}
		if equal(pred, target) {
			correct++
		}
	}
	return map[string]float64{m.Name(): Round(float64(correct) / float64(len(records)))}, nil
}

func equal(a, b any) bool {
	fa, okA := number(a)
	fb, okB := number(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// number converts numeric values only; numeric-looking strings stay strings.
func number(v any) (float64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return api.AsFloat(v)
}

// FieldMap names the record fields a Scorer reads.
// Empty Output and Expected default to "result" and "target"; an empty Input
// leaves ScoreInputs.Input blank.
type FieldMap struct {
	Output   string
	Expected string
	Input    string
}

type mean struct {
	name   string
	scorer api.Scorer
	fields FieldMap
}

// Mean lifts a per-record scorer into a metric reporting the average score
// under name. Any per-record scoring error fails the metric.
func Mean(name string, scorer api.Scorer, fields FieldMap) api.Metric {
	if fields.Output == "" {
		fields.Output = api.FieldResult
	}
	if fields.Expected == "" {
		fields.Expected = api.FieldTarget
	}
	return &mean{name: name, scorer: scorer, fields: fields}
}

func (m *mean) Name() string { return m.name }

func (m *mean) Compute(ctx context.Context, records api.Records) (map[string]float64, error) {
	if len(records) == 0 {
		return map[string]float64{m.name: 0}, nil
	}
	var total float64
	for i, r := range records {
		in, err := m.inputs(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		s := m.scorer.Score(ctx, in)
		if s.Error != nil {
			return nil, fmt.Errorf("record %d: %s: %w", i, s.Name, s.Error)
		}
		total += s.Score
	}
	return map[string]float64{m.name: Round(total / float64(len(records)))}, nil
}

func (m *mean) inputs(r *api.Record) (api.ScoreInputs, error) {
	var in api.ScoreInputs
	var ok bool
	if in.Output, ok = r.String(m.fields.Output); !ok {
		return in, fmt.Errorf("%w: %q", ErrMissingField, m.fields.Output)
	}
	if in.Expected, ok = r.String(m.fields.Expected); !ok {
		return in, fmt.Errorf("%w: %q", ErrMissingField, m.fields.Expected)
	}
	if m.fields.Input != "" {
		if in.Input, ok = r.String(m.fields.Input); !ok {
			return in, fmt.Errorf("%w: %q", ErrMissingField, m.fields.Input)
		}
	}
	return in, nil
}
