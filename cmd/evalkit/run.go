package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/model"
	"github.com/datar-psa/evalkit/runner"
)

type runFlags struct {
	model       string
	task        string
	filter      string
	outputDir   string
	debug       bool
	maxRecords  int
	concurrent  bool
	keepGoing   bool
	metricsFile string
	cacheDir    string

	timeout     time.Duration
	rpm         int
	concurrency int
	retries     uint64
	errorMode   string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a model on the selected tasks",
		Long: `Evaluate a model on every task matching --task or --filter (all tasks when neither is set).

Filters are CEL expressions over name, dataset, split and tags, e.g.
  evalkit run --model gemini_2_5_flash --filter '"few-shot" in tags'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, g)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.model, "model", "", "configured model name")
	fl.StringVar(&f.task, "task", "", "task name")
	fl.StringVar(&f.filter, "filter", "", "CEL expression selecting tasks")
	fl.StringVar(&f.outputDir, "output-dir", "", "result directory (config output_dir when empty)")
	fl.BoolVar(&f.debug, "debug", false, "trace the first record of each task instead of evaluating")
	fl.IntVar(&f.maxRecords, "max-records", 0, "evaluate at most this many records per task")
	fl.BoolVar(&f.concurrent, "concurrent", false, "let the model fan out requests (default: on when stdout is a terminal)")
	fl.BoolVar(&f.keepGoing, "keep-going", false, "run remaining tasks after a failure")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write prometheus metrics to this textfile")
	fl.StringVar(&f.cacheDir, "cache-dir", "", "response cache directory (config cache_dir when unset)")
	fl.DurationVar(&f.timeout, "timeout", 0, "per-request timeout")
	fl.IntVar(&f.rpm, "max-requests-per-minute", 0, "request rate limit")
	fl.IntVar(&f.concurrency, "concurrency", 0, "maximum in-flight requests in concurrent mode")
	fl.Uint64Var(&f.retries, "retries", 0, "retries per failed request")
	fl.StringVar(&f.errorMode, "error-mode", "", "raise or ignore failed requests")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func (f *runFlags) run(cmd *cobra.Command, g *globalFlags) error {
	ctx := cmd.Context()
	cfg := g.cfg
	mc, err := cfg.Model(f.model)
	if err != nil {
		return fmt.Errorf("%w (configured: %v)", err, cfg.ModelNames())
	}
	fl := cmd.Flags()
	if fl.Changed("timeout") {
		mc.Timeout = f.timeout
	}
	if fl.Changed("max-requests-per-minute") {
		mc.RequestsPerMinute = f.rpm
	}
	if fl.Changed("concurrency") {
		mc.Concurrency = f.concurrency
	}
	if fl.Changed("retries") {
		mc.Retries = f.retries
	}
	if fl.Changed("error-mode") {
		mc.ErrorMode = f.errorMode
	}
	if fl.Changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}
	if fl.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mode := defaultInvokeMode()
	if fl.Changed("concurrent") {
		mode = api.InvokeSync
		if f.concurrent {
			mode = api.InvokeConcurrent
		}
	}

	sel, err := selection(f.task, f.filter)
	if err != nil {
		return err
	}

	e := newEnv(cfg)
	defer e.Close()
	registry, err := e.registry(ctx, mode)
	if err != nil {
		return err
	}
	tasks, err := registry.Load(sel)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no task matches the selection")
	}

	var cache *model.Cache
	if cfg.CacheDir != "" {
		if cache, err = model.OpenCache(cfg.CacheDir, e.logger); err != nil {
			return err
		}
		defer cache.Close()
	}
	m, err := e.buildModel(ctx, mc, cache)
	if err != nil {
		return err
	}
	persister, err := e.persister(ctx, cfg.OutputDir)
	if err != nil {
		return err
	}

	metrics := runner.NewMetrics()
	r := runner.New(registry, persister,
		runner.WithLogger(e.logger),
		runner.WithDebugOutput(cmd.OutOrStdout()),
		runner.WithMetrics(metrics),
	)
	reports, runErr := r.Run(ctx, m, tasks, runner.Options{
		ModelID:    mc.Name,
		Debug:      f.debug,
		MaxRecords: f.maxRecords,
		Params:     mc.Params,
		KeepGoing:  f.keepGoing,
	})

	metricsFile := f.metricsFile
	if metricsFile == "" {
		metricsFile = cfg.MetricsFile
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			e.logger.Warnf("write metrics file %s: %v", metricsFile, err)
		}
	}
	if !f.debug {
		if err := printReports(cmd.OutOrStdout(), mc.Name, reports); err != nil {
			return err
		}
	}
	return runErr
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4")).Padding(0, 1)

// printReports renders one row per task and metric.
func printReports(w io.Writer, modelID string, reports []runner.Report) error {
	if len(reports) == 0 {
		return nil
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("model", "task", "metric", "value", "records", "elapsed")
	for _, rep := range reports {
		if rep.Result == nil {
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(rep.Result.Metrics)) {
			t.Row(modelID, rep.Task, name, fmt.Sprintf("%.5g", rep.Result.Metrics[name]),
				fmt.Sprint(len(rep.Result.Records)), rep.Duration.Round(time.Millisecond).String())
		}
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
