package llm

import "context"

// Document is one staged file handed to an extraction provider.
type Document struct {
	Name     string // original upload filename
	Path     string // staged path on local disk
	MIMEType string
}

// DocumentExtractor sends documents plus an instruction prompt to a
// generative model and returns the raw text of the first candidate.
// Implementations do not retry.
type DocumentExtractor interface {
	ExtractDocuments(ctx context.Context, prompt string, docs []Document) (string, error)
	// Provider is the display name used in error messages ("Gemini", "Claude", ...).
	Provider() string
}
