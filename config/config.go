// Package config loads the evalkit YAML configuration: models, dataset
// sources, output locations and logging.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/datar-psa/evalkit/api"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var validate = validator.New()

// Config is the top-level configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	OutputDir string `yaml:"output_dir" validate:"required_without=ResultsBucket"`
	// ResultsBucket additionally uploads results to GCS when set.
	ResultsBucket string `yaml:"results_bucket"`
	ResultsPrefix string `yaml:"results_prefix"`
	// CacheDir holds the model response cache. Empty disables caching.
	CacheDir    string `yaml:"cache_dir"`
	MetricsFile string `yaml:"metrics_file"`
	// Datasets maps dataset names to URIs (gs://, http(s):// or a path).
	// "{split}" in a URI is replaced by the requested split.
	Datasets map[string]string `yaml:"datasets" validate:"dive,keys,required,endkeys,required"`
	Prompts  Prompts           `yaml:"prompts"`
	Models   []Model           `yaml:"models" validate:"unique=Name,dive"`
}

// Prompts replaces the built-in prompt material of the registered tasks.
type Prompts struct {
	// SystemFile holds the system message sent by every task.
	SystemFile string `yaml:"system_file" validate:"omitempty,file"`
	// ExamplesFile lists few-shot examples as JSON or YAML
	// ({question, answer} objects).
	ExamplesFile string `yaml:"examples_file" validate:"omitempty,file"`
}

// Model describes one model endpoint.
type Model struct {
	Name     string `yaml:"name" validate:"required"`
	Provider string `yaml:"provider" validate:"required,oneof=openai gemini"`
	// Model is the provider's model identifier, e.g. "gpt-4o-mini".
	Model string `yaml:"model" validate:"required"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	// Project and Location select a Vertex AI backend for gemini models.
	Project  string `yaml:"project"`
	Location string `yaml:"location"`

	Concurrency       int           `yaml:"concurrency" validate:"gte=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	Retries           uint64        `yaml:"retries"`
	ErrorMode         string        `yaml:"error_mode" validate:"omitempty,oneof=raise ignore"`
	Params            api.Params    `yaml:"params"`
}

// APIKey reads the key from the configured environment variable.
func (m *Model) APIKey() (string, error) {
	if m.APIKeyEnv == "" {
		return "", nil
	}
	key := os.Getenv(m.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("model %s: environment variable %s is not set", m.Name, m.APIKeyEnv)
	}
	return key, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		OutputDir: "outputs",
		CacheDir:  "evalkit_cache",
		Models: []Model{
			{
				Name:              "openai_gpt_4o_mini",
				Provider:          ProviderOpenAI,
				Model:             "gpt-4o-mini",
				APIKeyEnv:         "OPENAI_API_KEY",
				Concurrency:       5,
				RequestsPerMinute: 30,
				Timeout:           40 * time.Second,
				ErrorMode:         "ignore",
			},
			{
				Name:              "gemini_2_5_flash",
				Provider:          ProviderGemini,
				Model:             "gemini-2.5-flash",
				APIKeyEnv:         "GEMINI_API_KEY",
				Concurrency:       5,
				RequestsPerMinute: 30,
				Timeout:           40 * time.Second,
				ErrorMode:         "ignore",
			},
		},
	}
}

// Load reads path over the defaults and validates the result. Models and
// datasets listed in the file replace the built-in ones.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Model returns the model configured under name.
func (c *Config) Model(name string) (*Model, error) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, &api.NotFoundError{Kind: "model", Key: name}
}

// ModelNames lists configured model names in file order.
func (c *Config) ModelNames() []string {
	names := make([]string, len(c.Models))
	for i, m := range c.Models {
		names[i] = m.Name
	}
	return names
}
