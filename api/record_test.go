package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPreservesInsertionOrder(t *testing.T) {
	r := NewRecord().Set("question", "2+2?").Set("answer", "#### 4").Set("id", 7)
	r.Set("question", "3+3?")

	assert.Equal(t, []string{"question", "answer", "id"}, r.Keys())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"question":"3+3?","answer":"#### 4","id":7}`, string(data))
}

func TestRecordUnmarshalKeepsSourceOrder(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"a":"x","m":{"k":true}}`), &r))

	assert.Equal(t, []string{"z", "a", "m"}, r.Keys())
	f, ok := r.Float("z")
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)
}

func TestRecordCloneIsShallow(t *testing.T) {
	nested := map[string]any{"k": 1}
	r := NewRecord().Set("a", 1).Set("nested", nested)

	c := r.Clone()
	c.Set("b", 2)
	c.Set("a", 10)

	assert.False(t, r.Has("b"))
	a, _ := r.Get("a")
	assert.Equal(t, 1, a)

	got, _ := c.Get("nested")
	got.(map[string]any)["k"] = 2
	assert.Equal(t, 2, nested["k"])
}

func TestRecordUpdate(t *testing.T) {
	r := NewRecord().Set("a", 1).Set("b", 2)
	r.Update(NewRecord().Set("b", 3).Set("c", 4))

	assert.Equal(t, []string{"a", "b", "c"}, r.Keys())
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, r.Map())
}

func TestZeroRecord(t *testing.T) {
	var r Record
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get("x")
	assert.False(t, ok)
	r.Set("x", "y")
	s, ok := r.String("x")
	assert.True(t, ok)
	assert.Equal(t, "y", s)
}

func TestRecordFromMapSortsKeys(t *testing.T) {
	r := RecordFromMap(map[string]any{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, r.Keys())
}

func TestMergeParams(t *testing.T) {
	defaults := Params{"temperature": 0.0, "max_tokens": 64}
	merged := MergeParams(defaults, Params{"temperature": 0.7})

	assert.Equal(t, Params{"temperature": 0.7, "max_tokens": 64}, merged)
	assert.Equal(t, 0.0, defaults["temperature"])

	n, ok := merged.Int("max_tokens")
	assert.True(t, ok)
	assert.Equal(t, 64, n)
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{in: 4, want: 4, wantOK: true},
		{in: int64(-2), want: -2, wantOK: true},
		{in: float32(0.5), want: 0.5, wantOK: true},
		{in: " 18 ", want: 18, wantOK: true},
		{in: json.Number("3.25"), want: 3.25, wantOK: true},
		{in: "", wantOK: false},
		{in: "four", wantOK: false},
		{in: nil, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := AsFloat(tt.in)
		assert.Equal(t, tt.wantOK, ok, "AsFloat(%#v)", tt.in)
		if tt.wantOK {
			assert.Equal(t, tt.want, got, "AsFloat(%#v)", tt.in)
		}
	}
}

func TestNotFoundError(t *testing.T) {
	var err error = &NotFoundError{Kind: "task", Key: "gsm8k"}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `task "gsm8k" not found`, err.Error())
}
