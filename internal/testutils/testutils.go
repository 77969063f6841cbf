// Package testutils builds record/replay HTTP clients for integration tests.
package testutils

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/areknoster/hypert"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/gemini"
)

// ShouldUpdate returns true if tests should update cached HTTP responses
// Set UPDATE_TESTS=true environment variable to update cached responses
func ShouldUpdate() bool {
	return os.Getenv("UPDATE_TESTS") == "true"
}

// HypertClientConfig configures hypert client creation
type HypertClientConfig struct {
	TestDataDir string
	SubDir      string // Optional subdirectory for organizing test data
}

func (c HypertClientConfig) dir() string {
	if c.SubDir == "" {
		return c.TestDataDir
	}
	return filepath.Join(c.TestDataDir, c.SubDir)
}

// replayClient returns a hypert client for dir. In replay mode a missing
// recording directory skips the test.
func replayClient(t *testing.T, dir string) *http.Client {
	t.Helper()
	if !ShouldUpdate() {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Skipf("no recorded responses in %s; run with UPDATE_TESTS=true to record", dir)
		}
	}

	namingScheme, err := hypert.NewContentHashNamingScheme(dir)
	if err != nil {
		t.Fatalf("failed to create naming scheme: %v", err)
	}

	return hypert.TestClient(t, ShouldUpdate(),
		hypert.WithNamingScheme(namingScheme),
		hypert.WithRequestValidator(hypert.ComposedRequestValidator(
			hypert.PathValidator(),
			hypert.QueryParamsValidator(),
			hypert.MethodValidator(),
		)),
	)
}

func oauthClient(t *testing.T, base *http.Client) *http.Client {
	t.Helper()
	ctx := context.Background()
	creds, err := google.FindDefaultCredentials(ctx)
	if err != nil {
		t.Fatalf("failed to get default credentials: %v", err)
	}
	return oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), creds.TokenSource)
}

// NewHypertClient creates a new hypert client for caching HTTP requests.
// In record mode requests are authenticated with application default credentials.
func NewHypertClient(t *testing.T, config HypertClientConfig) *http.Client {
	client := replayClient(t, config.dir())
	if ShouldUpdate() {
		return oauthClient(t, client)
	}
	return client
}

// quotaProjectTransport wraps an http.RoundTripper to add quota project header
type quotaProjectTransport struct {
	base      http.RoundTripper
	projectID string
}

func (t *quotaProjectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Goog-User-Project", t.projectID)
	return t.base.RoundTrip(req)
}

// NewAuthenticatedHypertClient is NewHypertClient for Google Cloud APIs that
// also require a quota project header when recording.
func NewAuthenticatedHypertClient(t *testing.T, config HypertClientConfig, projectID string) *http.Client {
	client := replayClient(t, config.dir())
	if !ShouldUpdate() {
		return client
	}

	oauth2Client := oauthClient(t, client)
	return &http.Client{
		Transport: &quotaProjectTransport{
			base:      oauth2Client.Transport,
			projectID: projectID,
		},
		Timeout: oauth2Client.Timeout,
	}
}

// GeminiTestConfig configures Gemini client creation for tests
type GeminiTestConfig struct {
	Project  string
	Location string
	SubDir   string // Subdirectory for hypert test data
}

// DefaultGeminiTestConfig returns a default configuration for Gemini testing
func DefaultGeminiTestConfig(subDir string) GeminiTestConfig {
	return GeminiTestConfig{
		Project:  os.Getenv("GOOGLE_PROJECT_ID"),
		Location: os.Getenv("GOOGLE_REGION"),
		SubDir:   subDir,
	}
}

// NewGeminiClient creates a new Gemini client for testing with hypert caching
func NewGeminiClient(t *testing.T, config GeminiTestConfig) *genai.Client {
	hypertClient := NewHypertClient(t, HypertClientConfig{
		TestDataDir: "testdata",
		SubDir:      config.SubDir,
	})

	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		Backend:    genai.BackendVertexAI,
		Project:    config.Project,
		Location:   config.Location,
		HTTPClient: hypertClient,
	})
	if err != nil {
		t.Fatalf("failed to create genai client: %v", err)
	}

	return genaiClient
}

// NewGeminiGenerator creates a new Gemini generator for testing
func NewGeminiGenerator(t *testing.T, config GeminiTestConfig, modelName string) *gemini.Generator {
	return gemini.NewGenerator(NewGeminiClient(t, config), modelName)
}

// NewGeminiEmbedder creates a new Gemini embedder for testing
func NewGeminiEmbedder(t *testing.T, config GeminiTestConfig, modelName string, opts ...gemini.EmbedderOption) *gemini.Embedder {
	return gemini.NewEmbedder(NewGeminiClient(t, config), modelName, opts...)
}
