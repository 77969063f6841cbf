package gsm8k

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/log"
	"github.com/datar-psa/evalkit/prompt"
	"github.com/datar-psa/evalkit/task"
)

type stubModel struct {
	outputs []string
	prompts []api.Messages
	params  api.Params
}

func (m *stubModel) Invoke(_ context.Context, prompts []api.Messages, _ api.InvokeMode, params api.Params) ([]string, error) {
	m.prompts, m.params = prompts, params
	return m.outputs, nil
}

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"#### 4", 4, false},
		{"She has 3 + 5 = 8 apples.\n#### 8", 8, false},
		{"#### 1,250", 1250, false},
		{"#### -3.5", -3.5, false},
		{"no marker", 0, true},
		{"#### many", 0, true},
	}
	for _, tt := range tests {
		got, err := ExtractAnswer(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestZeroShotEndToEnd(t *testing.T) {
	p, err := ZeroShotPipeline(WithLogger(log.Nop()))
	require.NoError(t, err)
	m := &stubModel{outputs: []string{"the answer is |4|"}}
	in := api.Records{api.NewRecord().Set("question", "2+2?").Set("answer", "#### 4")}

	res, err := p.Run(context.Background(), m, in, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"accuracy": 1.0}, res.Metrics)
	require.Len(t, res.Records, 1)
	r := res.Records[0]
	target, _ := r.Float("target")
	pred, _ := r.Float("pred")
	parsed, _ := r.String("parsed_result")
	assert.Equal(t, 4.0, target)
	assert.Equal(t, 4.0, pred)
	assert.Equal(t, "4", parsed)

	require.Len(t, m.prompts, 1)
	assert.Equal(t, api.Messages{
		{Role: api.RoleSystem, Content: ZeroShotSystem},
		{Role: api.RoleUser, Content: "2+2?"},
	}, m.prompts[0])
	assert.Equal(t, api.Params{"temperature": 0.0}, m.params)
}

func TestZeroShotUnparseableOutputScoresZero(t *testing.T) {
	p, err := ZeroShotPipeline(WithLogger(log.Nop()))
	require.NoError(t, err)
	m := &stubModel{outputs: []string{"I am not sure", "the answer is |7|"}}
	in := api.Records{
		api.NewRecord().Set("question", "3+4?").Set("answer", "#### 7"),
		api.NewRecord().Set("question", "3+4?").Set("answer", "#### 7"),
	}

	res, err := p.Run(context.Background(), m, in, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"accuracy": 0.5}, res.Metrics)
	pred, _ := res.Records[0].Float("pred")
	assert.Zero(t, pred)
}

func TestFewShotPrompts(t *testing.T) {
	examples := []prompt.Example{
		{Question: "1+1?", Answer: "The answer is 2"},
		{Question: "2+3?", Answer: "The answer is 5"},
	}
	in := api.Records{api.NewRecord().Set("question", "4+4?").Set("answer", "#### 8")}

	t.Run("flattened", func(t *testing.T) {
		p, err := FewShotPipeline(false, WithExamples(examples), WithLogger(log.Nop()))
		require.NoError(t, err)
		m := &stubModel{outputs: []string{"so the answer is 8."}}

		res, err := p.Run(context.Background(), m, in, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"accuracy": 1.0}, res.Metrics)
		require.Len(t, m.prompts[0], 2)
		assert.Equal(t, "1+1?\nThe answer is 2\n2+3?\nThe answer is 5\n\nQuestion: 4+4?\nLet's think step by step", m.prompts[0][1].Content)
		assert.Equal(t, api.Params{"temperature": 0.01}, m.params)
	})

	t.Run("dialog", func(t *testing.T) {
		p, err := FewShotPipeline(true, WithExamples(examples), WithLogger(log.Nop()))
		require.NoError(t, err)
		m := &stubModel{outputs: []string{"the answer is 8"}}

		_, err = p.Run(context.Background(), m, in, nil)
		require.NoError(t, err)
		msgs := m.prompts[0]
		require.Len(t, msgs, 6)
		assert.Equal(t, api.RoleAssistant, msgs[2].Role)
		assert.Equal(t, api.Message{Role: api.RoleUser, Content: "4+4?\nLet's think step by step"}, msgs[5])
	})
}

func TestBuiltInExamples(t *testing.T) {
	examples, err := Examples()
	require.NoError(t, err)
	require.NotEmpty(t, examples)
	for _, ex := range examples {
		assert.NotEmpty(t, ex.Question)
		assert.True(t, strings.Contains(ex.Answer, "The answer is"), ex.Answer)
	}
}

func TestRegisterTasks(t *testing.T) {
	datasets := dataset.NewRegistry()
	RegisterDataset(datasets, dataset.Static(api.Records{
		api.NewRecord().Set("question", "2+2?").Set("answer", "#### 4"),
	}))
	reg := task.NewRegistry(datasets)
	require.NoError(t, RegisterTasks(reg, WithLogger(log.Nop())))

	assert.Equal(t, []string{ZeroShotTask, FewShotTask, DialogFewShotTask}, reg.Names())

	filter, err := task.CompileFilter(`"few-shot" in tags`)
	require.NoError(t, err)
	fewShot, err := reg.Load(task.Selection{Filter: filter})
	require.NoError(t, err)
	assert.Len(t, fewShot, 2)

	tk, err := reg.Get(ZeroShotTask)
	require.NoError(t, err)
	res, err := tk.Run(context.Background(), &stubModel{outputs: []string{"the answer is |4|"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metrics["accuracy"])
}
