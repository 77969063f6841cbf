// Package processor provides record-collection transforms applied before
// prompt compilation and after model output is attached.
package processor

import (
	"fmt"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
)

// Chain applies processors in order, feeding each the previous output.
func Chain(records api.Records, processors ...api.Processor) (api.Records, error) {
	var err error
	for _, p := range processors {
		records, err = p.Process(records)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", p.Name(), err)
		}
	}
	return records, nil
}

type single struct {
	name string
	fn   func(*api.Record) (*api.Record, error)
}

// Single applies fn to every record. Length and order are preserved.
func Single(name string, fn func(*api.Record) (*api.Record, error)) api.Processor {
	return &single{name: name, fn: fn}
}

func (p *single) Name() string { return p.name }

func (p *single) Process(records api.Records) (api.Records, error) {
	out := make(api.Records, len(records))
	for i, r := range records {
		res, err := p.fn(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

// GroupFunc partitions records. Every input record should land in exactly one group.
type GroupFunc func(api.Records) []api.Records

type group struct {
	name    string
	groupFn GroupFunc
	fn      func(api.Records) (api.Records, error)
}

// Group partitions records with groupFn, transforms each group with fn and
// flattens the results in group order, then within-group order.
func Group(name string, groupFn GroupFunc, fn func(api.Records) (api.Records, error)) api.Processor {
	return &group{name: name, groupFn: groupFn, fn: fn}
}

func (p *group) Name() string { return p.name }

func (p *group) Process(records api.Records) (api.Records, error) {
	var out api.Records
	for i, g := range p.groupFn(records) {
		res, err := p.fn(g)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		out = append(out, res...)
	}
	return out, nil
}

// GroupBy partitions records by the value of field, in first-seen order.
// Records without the field share one group.
func GroupBy(field string) GroupFunc {
	return func(records api.Records) []api.Records {
		index := make(map[any]int)
		var groups []api.Records
		for _, r := range records {
			v, _ := r.Get(field)
			key := groupKey(v)
			i, ok := index[key]
			if !ok {
				i = len(groups)
				index[key] = i
				groups = append(groups, nil)
			}
			groups[i] = append(groups[i], r)
		}
		return groups
	}
}

// groupKey makes v usable as a map key. Numbers group by value whatever their
// Go type; other unhashable values group by their printed form.
func groupKey(v any) any {
	switch v.(type) {
	case nil, string, bool:
		return v
	}
	if f, ok := api.AsFloat(v); ok {
		return f
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Chunk partitions records into consecutive groups of at most n.
func Chunk(n int) GroupFunc {
	return func(records api.Records) []api.Records {
		if n <= 0 {
			return []api.Records{records}
		}
		var groups []api.Records
		for start := 0; start < len(records); start += n {
			end := min(start+n, len(records))
			groups = append(groups, records[start:end])
		}
		return groups
	}
}

// Lambda wraps an arbitrary per-record function.
func Lambda(fn func(*api.Record) (*api.Record, error)) api.Processor {
	return Single("lambda", fn)
}

// SelectKeys narrows every record to keys, in the given order.
// A record missing one of the keys is an error.
func SelectKeys(keys ...string) api.Processor {
	return Single("select_keys", func(r *api.Record) (*api.Record, error) {
		out := api.NewRecord()
		for _, k := range keys {
			v, ok := r.Get(k)
			if !ok {
				return nil, fmt.Errorf("missing key %q", k)
			}
			out.Set(k, v)
		}
		return out, nil
	})
}

// ToFloat converts field from into a float64 stored under to. A missing or
// non-numeric value is replaced by fallback and logged as a warning.
// A nil logger uses log.Default.
func ToFloat(from, to string, fallback float64, logger log.Logger) api.Processor {
	if logger == nil {
		logger = log.Default
	}
	return Single("to_float", func(r *api.Record) (*api.Record, error) {
		f, ok := r.Float(from)
		if !ok {
			v, _ := r.Get(from)
			logger.Warnf("cannot convert %s=%#v to float, using %v", from, v, fallback)
			f = fallback
		}
		r.Set(to, f)
		return r, nil
	})
}
