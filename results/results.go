// Package results persists evaluation results: per-record output as JSON
// Lines, the merged metrics and a small run manifest.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/datar-psa/evalkit/api"
)

// File names written for every (model, task) pair.
const (
	RecordsFile  = "records.jsonl"
	MetricsFile  = "metrics.json"
	ManifestFile = "run.json"
)

// Manifest describes one persisted run.
type Manifest struct {
	RunID     string             `json:"run_id"`
	Model     string             `json:"model"`
	Task      string             `json:"task"`
	Records   int                `json:"records"`
	Metrics   map[string]float64 `json:"metrics"`
	CreatedAt time.Time          `json:"created_at"`
}

type runIDKey struct{}

// WithRunID fixes the run ID recorded by persisters called with ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func newManifest(ctx context.Context, modelID, taskName string, res *api.EvaluationResult, now time.Time) Manifest {
	return Manifest{
		RunID:     runID(ctx),
		Model:     modelID,
		Task:      taskName,
		Records:   len(res.Records),
		Metrics:   res.Metrics,
		CreatedAt: now.UTC(),
	}
}

// WriteRecords writes one JSON object per line, fields in record order.
func WriteRecords(w io.Writer, records api.Records) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// segment makes a model or task identifier safe to use as one path element.
func segment(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	s := r.Replace(strings.TrimSpace(id))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Persister stores the result of one task evaluated by one model.
type Persister interface {
	Persist(ctx context.Context, modelID, taskName string, res *api.EvaluationResult) error
}

// Multi fans a result out to every persister under one run ID. All are
// attempted; failures are combined.
type Multi []Persister

func (m Multi) Persist(ctx context.Context, modelID, taskName string, res *api.EvaluationResult) error {
	ctx = WithRunID(ctx, runID(ctx))
	var result *multierror.Error
	for _, p := range m {
		if err := p.Persist(ctx, modelID, taskName, res); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Discard drops results.
type Discard struct{}

func (Discard) Persist(context.Context, string, string, *api.EvaluationResult) error { return nil }
