// Package model turns the current screen into the next proposed action by
// querying a vision-language model backend.
package model

import (
	"github.com/phonectl/phonectl/internal/config"
)

// Config is the model configuration, fixed for the lifetime of a client.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64

	// Lang picks the built-in system prompt: "cn" or "en".
	Lang string

	// SystemPrompt replaces the built-in prompt when non-empty.
	SystemPrompt string
}

// DefaultConfig matches AutoGLM-Phone's recommended sampling settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:          config.KnownProviderBaseURLs["local"],
		Model:            config.KnownProviderModels["local"],
		Temperature:      0.0,
		MaxTokens:        3000,
		TopP:             0.85,
		FrequencyPenalty: 0.2,
		Lang:             "cn",
	}
}

// FromConfig builds the model configuration for the active provider.
func FromConfig(c *config.Config) Config {
	pc := c.GetProviderConfig(c.Provider)
	return Config{
		BaseURL:          c.ResolveBaseURL(),
		APIKey:           pc.APIKey,
		Model:            c.ResolveModel(),
		Temperature:      c.Sampling.Temperature,
		MaxTokens:        c.Sampling.MaxTokens,
		TopP:             c.Sampling.TopP,
		FrequencyPenalty: c.Sampling.FrequencyPenalty,
		Lang:             c.Agent.Lang,
		SystemPrompt:     c.Agent.SystemPrompt,
	}
}
