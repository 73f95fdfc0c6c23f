// Package provider defines the LLM backend interface for AI features.
package provider

import "context"

// Provider is a hosted language model backend. Implementations send a
// fixed system instruction plus user content and return the raw model
// text; callers own any JSON extraction from that text.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai", "mock").
	Name() string

	// Complete sends one system+user exchange and returns the model text.
	Complete(ctx context.Context, system, user string) (string, error)
}
