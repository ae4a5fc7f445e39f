package config

import "errors"

var (
	ErrMissingLLMBase    = errors.New("LLM base URL is not configured")
	ErrMissingLLMKey     = errors.New("LLM API key is not configured")
	ErrMissingCanvasBase = errors.New("canvas base URL is not configured")
)

// RunConfig carries the settings for a single agent run. Callers may
// override the process defaults per request, typically from HTTP
// headers, without mutating the shared Config.
type RunConfig struct {
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	Temperature float64

	MaxToolIterations int
	TimeoutSeconds    int
	Verbose           bool

	// RequestID correlates log lines for one run. The server fills it
	// from X-REQUEST-ID or generates one.
	RequestID string
}

// RunDefaults derives a RunConfig from the process configuration.
func (c *Config) RunDefaults() RunConfig {
	return RunConfig{
		LLMBaseURL:        c.LLM.BaseURL,
		LLMAPIKey:         c.LLM.APIKey,
		LLMModel:          c.LLM.Model,
		Temperature:       c.LLM.Temperature,
		MaxToolIterations: c.Agent.MaxToolIterations,
		TimeoutSeconds:    c.Agent.TimeoutSeconds,
		Verbose:           c.Agent.Verbose,
	}
}

// Validate reports the first missing field an agent run cannot proceed
// without.
func (r RunConfig) Validate() error {
	if r.LLMBaseURL == "" {
		return ErrMissingLLMBase
	}
	if r.LLMAPIKey == "" {
		return ErrMissingLLMKey
	}
	return nil
}
