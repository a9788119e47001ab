package provider

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest
const APIVersion = "2023-06-01"

// NewAnthropicClient returns a client authenticated with apiKey. Extra
// options (HTTP client, base URL) are applied after the key.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) *anthropic.Client {
	c := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &c
}

// ResolveModel returns the first non-empty name, or DefaultModel.
func ResolveModel(names ...string) anthropic.Model {
	for _, n := range names {
		if n != "" {
			return anthropic.Model(n)
		}
	}
	return DefaultModel
}
