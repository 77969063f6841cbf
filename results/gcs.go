package results

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/log"
)

// GCS uploads results to gs://<bucket>/<prefix>/<model>/<task>/.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
	logger log.Logger
}

// NewGCS returns a persister writing to bucket under prefix.
func NewGCS(client *storage.Client, bucket, prefix string, logger log.Logger) *GCS {
	if logger == nil {
		logger = log.Default
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix, now: time.Now, logger: logger}
}

// ObjectName returns the object name of file for modelID and taskName.
func (g *GCS) ObjectName(modelID, taskName, file string) string {
	return path.Join(g.prefix, segment(modelID), segment(taskName), file)
}

func (g *GCS) Persist(ctx context.Context, modelID, taskName string, res *api.EvaluationResult) error {
	manifest := newManifest(ctx, modelID, taskName, res, g.now())
	uploads := []struct {
		file        string
		contentType string
		write       func(io.Writer) error
	}{
		{RecordsFile, "application/x-ndjson", func(w io.Writer) error { return WriteRecords(w, res.Records) }},
		{MetricsFile, "application/json", func(w io.Writer) error { return writeIndented(w, res.Metrics) }},
		{ManifestFile, "application/json", func(w io.Writer) error { return writeIndented(w, manifest) }},
	}
	for _, u := range uploads {
		name := g.ObjectName(modelID, taskName, u.file)
		if err := g.upload(ctx, name, u.contentType, u.write); err != nil {
			return fmt.Errorf("upload gs://%s/%s: %w", g.bucket, name, err)
		}
	}
	g.logger.Infof("results for %s on %s uploaded to gs://%s/%s (run %s)",
		taskName, modelID, g.bucket, path.Dir(g.ObjectName(modelID, taskName, RecordsFile)), manifest.RunID)
	return nil
}

func (g *GCS) upload(ctx context.Context, name, contentType string, write func(io.Writer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if err := write(w); err != nil {
		// Cancelling the context aborts the upload.
		cancel()
		w.Close()
		return err
	}
	return w.Close()
}
