package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/datar-psa/evalkit/api"
)

// DefaultSplit is used when a loader is called with an empty split.
const DefaultSplit = "test"

// ErrUnavailable is returned when a dataset source cannot be reached or does not exist.
var ErrUnavailable = errors.New("dataset unavailable")

func expand(template, split string) string {
	if split == "" {
		split = DefaultSplit
	}
	return strings.ReplaceAll(template, "{split}", split)
}

// File returns a loader reading a local file. "{split}" in pathTemplate is
// replaced by the requested split. Files ending in .json hold a JSON array of
// objects; anything else is read as JSON Lines.
func File(pathTemplate string) Loader {
	return func(ctx context.Context, split string) (api.Records, error) {
		path := expand(pathTemplate, split)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrUnavailable, path)
			}
			return nil, fmt.Errorf("failed to open dataset file: %w", err)
		}
		defer f.Close()

		if strings.EqualFold(filepath.Ext(path), ".json") {
			return DecodeArray(f)
		}
		return DecodeJSONL(f)
	}
}

// HTTP returns a loader fetching JSON Lines from urlTemplate. A nil client
// uses http.DefaultClient.
func HTTP(client *http.Client, urlTemplate string) Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, split string) (api.Records, error) {
		url := expand(urlTemplate, split)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build dataset request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, url, resp.StatusCode)
		}
		return DecodeJSONL(resp.Body)
	}
}

// GCS returns a loader reading a JSON Lines object from a Cloud Storage bucket.
func GCS(client *storage.Client, bucket, objectTemplate string) Loader {
	return func(ctx context.Context, split string) (api.Records, error) {
		object := expand(objectTemplate, split)
		r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
				return nil, fmt.Errorf("%w: gs://%s/%s", ErrUnavailable, bucket, object)
			}
			return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
		}
		defer r.Close()
		return DecodeJSONL(r)
	}
}

// URIOptions configures FromURI.
type URIOptions struct {
	HTTPClient    *http.Client
	StorageClient *storage.Client
}

// WithHTTPClient sets the client used for http and https URIs.
func WithHTTPClient(client *http.Client) func(*URIOptions) {
	return func(opts *URIOptions) {
		opts.HTTPClient = client
	}
}

// WithStorageClient sets the client used for gs URIs.
func WithStorageClient(client *storage.Client) func(*URIOptions) {
	return func(opts *URIOptions) {
		opts.StorageClient = client
	}
}

// FromURI picks a loader by URI scheme: gs://bucket/object, http(s)://...,
// otherwise a local path. The storage client is required for gs URIs.
func FromURI(uri string, opts ...func(*URIOptions)) (Loader, error) {
	options := &URIOptions{}
	for _, opt := range opts {
		opt(options)
	}

	switch {
	case strings.HasPrefix(uri, "gs://"):
		if options.StorageClient == nil {
			return nil, fmt.Errorf("storage client is required for %s", uri)
		}
		bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
		if !ok || bucket == "" || object == "" {
			return nil, fmt.Errorf("invalid gcs uri %q", uri)
		}
		return GCS(options.StorageClient, bucket, object), nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return HTTP(options.HTTPClient, uri), nil
	case uri == "":
		return nil, errors.New("dataset uri is empty")
	default:
		return File(strings.TrimPrefix(uri, "file://")), nil
	}
}

// DecodeJSONL reads one JSON object per line. Blank lines are skipped.
func DecodeJSONL(r io.Reader) (api.Records, error) {
	dec := json.NewDecoder(r)
	var records api.Records
	for dec.More() {
		rec := api.NewRecord()
		if err := dec.Decode(rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeArray reads a JSON array of objects.
func DecodeArray(r io.Reader) (api.Records, error) {
	var records api.Records
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}
