package core

import "context"

// Options controls model behavior; fields are optional per provider.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int
	SystemPrompt        string
}

// Client is a provider-agnostic interface for the one chat-completion
// operation the grader needs.
type Client interface {
	// Complete sends a single user prompt and returns the raw model text.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
