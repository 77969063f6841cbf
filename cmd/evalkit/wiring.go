package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/mattn/go-isatty"
	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/config"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/gemini"
	"github.com/datar-psa/evalkit/log"
	"github.com/datar-psa/evalkit/model"
	"github.com/datar-psa/evalkit/openai"
	"github.com/datar-psa/evalkit/prompt"
	"github.com/datar-psa/evalkit/results"
	"github.com/datar-psa/evalkit/task"
	"github.com/datar-psa/evalkit/tasks/gsm8k"
)

// env holds clients shared by one command invocation.
type env struct {
	cfg     *config.Config
	logger  log.Logger
	storage *storage.Client
}

func newEnv(cfg *config.Config) *env {
	return &env{cfg: cfg, logger: log.Default}
}

func (e *env) storageClient(ctx context.Context) (*storage.Client, error) {
	if e.storage != nil {
		return e.storage, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	e.storage = client
	return client, nil
}

func (e *env) Close() error {
	if e.storage != nil {
		return e.storage.Close()
	}
	return nil
}

// defaultInvokeMode fans out when attached to a terminal and stays
// sequential when output is piped or captured.
func defaultInvokeMode() api.InvokeMode {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return api.InvokeConcurrent
	}
	return api.InvokeSync
}

// registry builds the dataset and task registries: the built-in GSM8K tasks
// plus every dataset listed in the config. A configured "gsm8k" source
// replaces the default download URL.
func (e *env) registry(ctx context.Context, mode api.InvokeMode) (*task.Registry, error) {
	datasets := dataset.NewRegistry()
	gsm8k.RegisterDataset(datasets, nil)

	names := make([]string, 0, len(e.cfg.Datasets))
	for name := range e.cfg.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uri := e.cfg.Datasets[name]
		opts := []func(*dataset.URIOptions){dataset.WithHTTPClient(http.DefaultClient)}
		if strings.HasPrefix(uri, "gs://") {
			client, err := e.storageClient(ctx)
			if err != nil {
				return nil, err
			}
			opts = append(opts, dataset.WithStorageClient(client))
		}
		loader, err := dataset.FromURI(uri, opts...)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		datasets.Register(name, loader)
	}

	opts, err := e.promptOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, gsm8k.WithLogger(e.logger), gsm8k.WithInvokeMode(mode))

	tasks := task.NewRegistry(datasets, task.WithLogger(e.logger))
	if err := gsm8k.RegisterTasks(tasks, opts...); err != nil {
		return nil, err
	}
	return tasks, nil
}

// promptOptions loads the prompt files named in the config.
func (e *env) promptOptions() ([]gsm8k.Option, error) {
	var opts []gsm8k.Option
	if path := e.cfg.Prompts.SystemFile; path != "" {
		zs, err := prompt.ZeroShotFromFile(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gsm8k.WithSystemContent(zs.SystemContent))
	}
	if path := e.cfg.Prompts.ExamplesFile; path != "" {
		examples, err := prompt.LoadExamples(path)
		if err != nil {
			return nil, err
		}
		if len(examples) == 0 {
			return nil, fmt.Errorf("%s: no examples", path)
		}
		opts = append(opts, gsm8k.WithExamples(examples))
	}
	return opts, nil
}

func selection(name, filter string) (task.Selection, error) {
	sel := task.Selection{Name: name}
	if filter != "" {
		pred, err := task.CompileFilter(filter)
		if err != nil {
			return sel, err
		}
		sel.Filter = pred
	}
	return sel, nil
}

func (e *env) generator(ctx context.Context, m *config.Model) (model.Generator, error) {
	switch m.Provider {
	case config.ProviderOpenAI:
		key, err := m.APIKey()
		if err != nil {
			return nil, err
		}
		var opts []func(*openai.Options)
		if m.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(m.BaseURL))
		}
		return openai.NewGenerator(key, m.Model, opts...), nil
	case config.ProviderGemini:
		cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
		if m.Project != "" {
			cc.Backend, cc.Project, cc.Location = genai.BackendVertexAI, m.Project, m.Location
		} else {
			key, err := m.APIKey()
			if err != nil {
				return nil, err
			}
			cc.APIKey = key
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		return gemini.NewGenerator(client, m.Model), nil
	default:
		return nil, fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider)
	}
}

// buildModel builds the batch client for m, wrapping its generator in cache when set.
func (e *env) buildModel(ctx context.Context, m *config.Model, cache *model.Cache) (api.Model, error) {
	gen, err := e.generator(ctx, m)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		gen = cache.Wrap(m.Name, gen)
	}
	opts := []model.Option{
		model.WithLogger(e.logger),
		model.WithConcurrency(m.Concurrency),
		model.WithRateLimit(m.RequestsPerMinute),
		model.WithRetries(m.Retries),
	}
	if m.Timeout > 0 {
		opts = append(opts, model.WithTimeout(m.Timeout))
	}
	if m.ErrorMode != "" {
		opts = append(opts, model.WithErrorMode(model.ErrorMode(m.ErrorMode)))
	}
	return model.NewClient(gen, opts...), nil
}

func (e *env) persister(ctx context.Context, outputDir string) (results.Persister, error) {
	var ps results.Multi
	if outputDir != "" {
		ps = append(ps, results.NewLocal(outputDir, e.logger))
	}
	if e.cfg.ResultsBucket != "" {
		client, err := e.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		ps = append(ps, results.NewGCS(client, e.cfg.ResultsBucket, e.cfg.ResultsPrefix, e.logger))
	}
	return ps, nil
}
