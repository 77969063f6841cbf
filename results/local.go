package results

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
)

// Local writes results under <dir>/<model>/<task>/.
type Local struct {
	dir    string
	now    func() time.Time
	logger log.Logger
}

// NewLocal returns a persister rooted at dir.
func NewLocal(dir string, logger log.Logger) *Local {
	if logger == nil {
		logger = log.Default
	}
	return &Local{dir: dir, now: time.Now, logger: logger}
}

// Dir returns the directory results for modelID and taskName are written to.
func (l *Local) Dir(modelID, taskName string) string {
	return filepath.Join(l.dir, segment(modelID), segment(taskName))
}

// Persist writes records.jsonl, metrics.json and run.json. Each file is
// written to a temporary name first so readers never see a partial file.
func (l *Local) Persist(ctx context.Context, modelID, taskName string, res *api.EvaluationResult) error {
	dir := l.Dir(modelID, taskName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}

	manifest := newManifest(ctx, modelID, taskName, res, l.now())
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{RecordsFile, func(w io.Writer) error { return WriteRecords(w, res.Records) }},
		{MetricsFile, func(w io.Writer) error { return writeIndented(w, res.Metrics) }},
		{ManifestFile, func(w io.Writer) error { return writeIndented(w, manifest) }},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	l.logger.Infof("results for %s on %s written to %s (run %s)", taskName, modelID, dir, manifest.RunID)
	return nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
