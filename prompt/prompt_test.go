package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datar-psa/evalkit/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]any
		want     string
		wantErr  bool
	}{
		{name: "simple", template: "Q: {question}", values: map[string]any{"question": "2+2?"}, want: "Q: 2+2?"},
		{name: "non string value", template: "{n} apples", values: map[string]any{"n": 3}, want: "3 apples"},
		{name: "escaped braces", template: "{{literal}} {x}", values: map[string]any{"x": "y"}, want: "{literal} y"},
		{name: "unknown placeholder", template: "{missing}", values: map[string]any{}, wantErr: true},
		{name: "unmatched open", template: "oops {", wantErr: true},
		{name: "unmatched close", template: "oops }", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.template, tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZeroShotDefaults(t *testing.T) {
	p := &ZeroShot{}
	msgs, err := p.Compile(map[string]any{"question": "2+2?"})
	require.NoError(t, err)

	assert.Equal(t, api.Messages{
		{Role: api.RoleSystem, Content: DefaultZeroShotSystem},
		{Role: api.RoleUser, Content: "2+2?"},
	}, msgs)
	assert.Equal(t, []string{"question"}, p.CompileParameters())

	_, err = p.Compile(map[string]any{"q": "x"})
	assert.Error(t, err)
}

func TestZeroShotFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.txt")
	require.NoError(t, os.WriteFile(path, []byte("Be terse."), 0o644))

	p, err := ZeroShotFromFile(path)
	require.NoError(t, err)
	msgs, err := p.Compile(map[string]any{"question": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Be terse.", msgs[0].Content)
}

func TestFewShotFlattened(t *testing.T) {
	p := &FewShot{
		Examples: []Example{{Question: "1+1?", Answer: "2"}, {Question: "2+3?", Answer: "5"}},
	}
	msgs, err := p.Compile(map[string]any{"question": "4+4?"})
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, DefaultFewShotSystem, msgs[0].Content)
	assert.Equal(t, "1+1?\n2\n2+3?\n5\n4+4?", msgs[1].Content)
}

func TestFewShotDialog(t *testing.T) {
	p := &FewShot{
		Examples:         []Example{{Question: "1+1?", Answer: "2"}},
		DialogStyle:      true,
		SystemContent:    "sys",
		QuestionTemplate: "Q: {question}",
		AnswerTemplate:   "A: {answer}",
		FinalTemplate:    "Q: {question}\nThink.",
	}
	msgs, err := p.Compile(map[string]any{"question": "4+4?"})
	require.NoError(t, err)

	assert.Equal(t, api.Messages{
		{Role: api.RoleSystem, Content: "sys"},
		{Role: api.RoleUser, Content: "Q: 1+1?"},
		{Role: api.RoleAssistant, Content: "A: 2"},
		{Role: api.RoleUser, Content: "Q: 4+4?\nThink."},
	}, msgs)
}

func TestParseExamples(t *testing.T) {
	yamlData := []byte("- question: a\n  answer: b\n")
	examples, err := ParseExamples(yamlData, ".yaml")
	require.NoError(t, err)
	assert.Equal(t, []Example{{Question: "a", Answer: "b"}}, examples)

	examples, err = ParseExamples([]byte(`[{"question":"c","answer":"d"}]`), ".json")
	require.NoError(t, err)
	assert.Equal(t, []Example{{Question: "c", Answer: "d"}}, examples)
}

func TestFieldsCatchAllAndDeclared(t *testing.T) {
	r := api.NewRecord().Set("question", "2+2?").Set("answer", "#### 4").Set("id", 1)

	declared, err := Fields(&ZeroShot{}, r)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"question": "2+2?"}, declared)

	var seen map[string]any
	catchAll := Func(func(fields map[string]any) (api.Messages, error) {
		seen = fields
		return api.Messages{{Role: api.RoleUser, Content: "x"}}, nil
	})
	all, err := Fields(catchAll, r)
	require.NoError(t, err)
	_, err = catchAll.Compile(all)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"question": "2+2?", "answer": "#### 4", "id": 1}, seen)

	_, err = Fields(&ZeroShot{}, api.NewRecord())
	assert.Error(t, err)
}

func TestLoadExamples(t *testing.T) {
	dir := t.TempDir()
	want := []Example{{Question: "1+1?", Answer: "The answer is 2"}, {Question: "2+3?", Answer: "The answer is 5"}}

	files := map[string]string{
		"examples.json": `[{"question": "1+1?", "answer": "The answer is 2"}, {"question": "2+3?", "answer": "The answer is 5"}]`,
		"examples.yaml": "- question: 1+1?\n  answer: The answer is 2\n- question: 2+3?\n  answer: The answer is 5\n",
		"examples.yml":  "- {question: 1+1?, answer: The answer is 2}\n- {question: 2+3?, answer: The answer is 5}\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			got, err := LoadExamples(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := LoadExamples(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("question: [\n"), 0o644))
	_, err = LoadExamples(bad)
	assert.Error(t, err)
}
