package out

import "context"

// LLMClient is the generateContent-style capability consumed by the
// classifier and summarizer. Prompts request JSON output; the core is
// responsible for validating whatever comes back.
type LLMClient interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}
