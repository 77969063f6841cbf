package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/datar-psa/evalkit/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	first := api.Records{api.NewRecord().Set("q", "a")}
	second := api.Records{api.NewRecord().Set("q", "b"), api.NewRecord().Set("q", "c")}

	reg.Register("toy", Static(first))
	reg.Register("other", Static(nil))
	reg.Register("toy", Static(second))

	assert.Equal(t, []string{"toy", "other"}, reg.Names())

	got, err := reg.Load(context.Background(), "toy", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, api.ErrNotFound)
	var nf *api.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "dataset", nf.Kind)
}

func TestRegistryLoadPropagatesLoaderError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	reg.Register("broken", func(context.Context, string) (api.Records, error) {
		return nil, boom
	})

	_, err := reg.Load(context.Background(), "broken", "test")
	assert.Same(t, boom, err)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.jsonl"),
		[]byte("{\"question\":\"1+1?\",\"answer\":\"#### 2\"}\n\n{\"question\":\"2+2?\",\"answer\":\"#### 4\"}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.json"),
		[]byte(`[{"b":1,"a":2}]`), 0o644))

	tests := []struct {
		name      string
		template  string
		split     string
		wantLen   int
		wantKeys  []string
		wantError error
	}{
		{name: "jsonl", template: filepath.Join(dir, "{split}.jsonl"), split: "train", wantLen: 2, wantKeys: []string{"question", "answer"}},
		{name: "json array default split", template: filepath.Join(dir, "{split}.json"), wantLen: 1, wantKeys: []string{"b", "a"}},
		{name: "missing", template: filepath.Join(dir, "{split}.jsonl"), split: "validation", wantError: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := File(tt.template)(context.Background(), tt.split)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			require.Len(t, records, tt.wantLen)
			assert.Equal(t, tt.wantKeys, records[0].Keys())
		})
	}
}

func TestHTTPLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/test.jsonl" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"question":"3+3?","answer":"#### 6"}`)
	}))
	defer srv.Close()

	loader := HTTP(srv.Client(), srv.URL+"/data/{split}.jsonl")

	records, err := loader(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	q, _ := records[0].String("question")
	assert.Equal(t, "3+3?", q)

	_, err = loader(context.Background(), "train")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{uri: "https://example.com/{split}.jsonl"},
		{uri: "file:///tmp/{split}.jsonl"},
		{uri: "data/{split}.jsonl"},
		{uri: "gs://bucket/{split}.jsonl", wantErr: true},
		{uri: "", wantErr: true},
	}
	for _, tt := range tests {
		loader, err := FromURI(tt.uri)
		if tt.wantErr {
			assert.Error(t, err, tt.uri)
			continue
		}
		assert.NoError(t, err, tt.uri)
		assert.NotNil(t, loader, tt.uri)
	}
}
