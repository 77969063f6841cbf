package processor

import (
	"errors"
	"testing"

	"github.com/datar-psa/evalkit/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func ids(records api.Records) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i], _ = r.Get("id")
	}
	return out
}

func TestSinglePreservesOrder(t *testing.T) {
	records := api.Records{
		api.NewRecord().Set("id", 1),
		api.NewRecord().Set("id", 2),
		api.NewRecord().Set("id", 3),
	}
	double := Single("double", func(r *api.Record) (*api.Record, error) {
		v, _ := r.Get("id")
		return r.Set("id", v.(int)*2), nil
	})

	out, err := double.Process(records)
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4, 6}, ids(out))
}

func TestSingleError(t *testing.T) {
	boom := errors.New("boom")
	p := Single("fail", func(*api.Record) (*api.Record, error) { return nil, boom })

	_, err := p.Process(api.Records{api.NewRecord()})
	assert.ErrorIs(t, err, boom)
}

func TestGroupFlattensInGroupOrder(t *testing.T) {
	records := api.Records{
		api.NewRecord().Set("id", 1).Set("k", "a"),
		api.NewRecord().Set("id", 2).Set("k", "b"),
		api.NewRecord().Set("id", 3).Set("k", "a"),
	}
	reverse := func(g api.Records) (api.Records, error) {
		out := make(api.Records, len(g))
		for i, r := range g {
			out[len(g)-1-i] = r
		}
		return out, nil
	}

	out, err := Group("by_k", GroupBy("k"), reverse).Process(records)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 1, 2}, ids(out))
}

func TestGroupIdentityFlattens(t *testing.T) {
	a, b, c, d := api.NewRecord().Set("id", "a"), api.NewRecord().Set("id", "b"), api.NewRecord().Set("id", "c"), api.NewRecord().Set("id", "d")
	pairs := func(api.Records) []api.Records { return []api.Records{{a, b}, {c, d}} }
	identity := func(g api.Records) (api.Records, error) { return g, nil }

	out, err := Group("pairs", pairs, identity).Process(api.Records{a, b, c, d})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c", "d"}, ids(out))
}

func TestGroupByNumericKeys(t *testing.T) {
	records := api.Records{
		api.NewRecord().Set("id", 1).Set("k", 4),
		api.NewRecord().Set("id", 2).Set("k", "4"),
		api.NewRecord().Set("id", 3).Set("k", 4.0),
		api.NewRecord().Set("id", 4).Set("k", int64(4)),
	}

	groups := GroupBy("k")(records)
	require.Len(t, groups, 2)
	assert.Equal(t, []any{1, 3, 4}, ids(groups[0]))
	assert.Equal(t, []any{2}, ids(groups[1]))
}

func TestChunk(t *testing.T) {
	records := make(api.Records, 5)
	for i := range records {
		records[i] = api.NewRecord().Set("id", i)
	}

	groups := Chunk(2)(records)
	require.Len(t, groups, 3)
	assert.Len(t, groups[2], 1)

	assert.Len(t, Chunk(0)(records), 1)
}

func TestSelectKeys(t *testing.T) {
	records := api.Records{api.NewRecord().Set("a", 1).Set("b", 2).Set("c", 3)}

	out, err := SelectKeys("c", "a").Process(records)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, out[0].Keys())

	_, err = SelectKeys("z").Process(records)
	assert.Error(t, err)
}

func TestToFloatFallsBackWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core).Sugar()

	records := api.Records{
		api.NewRecord().Set("answer", "18"),
		api.NewRecord().Set("answer", "eighteen"),
		api.NewRecord(),
	}
	out, err := ToFloat("answer", "target", 0, logger).Process(records)
	require.NoError(t, err)

	want := []float64{18, 0, 0}
	for i, r := range out {
		got, ok := r.Get("target")
		require.True(t, ok)
		assert.Equal(t, want[i], got)
	}
	assert.Equal(t, 2, logs.Len())
}

func TestChainAppliesInCallerOrder(t *testing.T) {
	appendTag := func(tag string) api.Processor {
		return Single(tag, func(r *api.Record) (*api.Record, error) {
			s, _ := r.String("trail")
			return r.Set("trail", s+tag), nil
		})
	}

	out, err := Chain(api.Records{api.NewRecord(), api.NewRecord()}, appendTag("a"), appendTag("b"), Lambda(func(r *api.Record) (*api.Record, error) {
		s, _ := r.String("trail")
		return r.Set("trail", s+"!"), nil
	}))
	require.NoError(t, err)
	require.Len(t, out, 2)
	s, _ := out[1].String("trail")
	assert.Equal(t, "ab!", s)
}

func TestChainWrapsProcessorName(t *testing.T) {
	_, err := Chain(api.Records{api.NewRecord()}, SelectKeys("missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select_keys")
}
