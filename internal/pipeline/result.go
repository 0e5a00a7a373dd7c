package pipeline

import (
	"fmt"

	"github.com/joseph-ayodele/kpi-extractor/internal/common"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

// ErrorKind classifies a failed extraction.
type ErrorKind string

const (
	KindUpstream ErrorKind = "upstream_error"
	KindParse    ErrorKind = "parse_error"
	KindShape    ErrorKind = "shape_error"
)

// TaggedError is the JSON body returned for a failed extraction.
// RawResponse is set for parse and shape errors, even when empty.
type TaggedError struct {
	Kind        ErrorKind `json:"-"`
	Message     string    `json:"error"`
	RawResponse *string   `json:"raw_response,omitempty"`

	cause error
}

func (e *TaggedError) Error() string { return e.Message }

// Unwrap exposes the provider error; upstream failures match common.ErrUpstream.
func (e *TaggedError) Unwrap() error { return e.cause }

// Result is either a coerced record or a tagged error.
type Result struct {
	Record *entity.KpiRecord
	Err    *TaggedError
}

func (r Result) OK() bool { return r.Err == nil && r.Record != nil }

func upstreamError(provider string, err error) *TaggedError {
	return &TaggedError{
		Kind:    KindUpstream,
		Message: "Error processing with " + provider + ": " + err.Error(),
		cause:   fmt.Errorf("%w: %w", common.ErrUpstream, err),
	}
}

func parseError(text string) *TaggedError {
	return &TaggedError{Kind: KindParse, Message: "Failed to parse JSON response", RawResponse: &text}
}

func shapeError(text string) *TaggedError {
	return &TaggedError{Kind: KindShape, Message: "Unexpected JSON response: expected a single object", RawResponse: &text}
}
