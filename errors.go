package evalkit

import "github.com/datar-psa/evalkit/api"

var (
	// ErrNoExpectedValue is returned when an expected value is required but not provided
	ErrNoExpectedValue = api.ErrNoExpectedValue
	// ErrLLMGenerationFailed is returned when LLM generation fails
	ErrLLMGenerationFailed = api.ErrLLMGenerationFailed
	// ErrNotFound matches every registry lookup miss.
	ErrNotFound = api.ErrNotFound
)
