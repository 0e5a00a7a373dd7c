package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// NormalizeKind classifies the outcome of parsing model text.
type NormalizeKind string

const (
	NormalizedOK         NormalizeKind = "ok"
	NormalizedParseError NormalizeKind = "parse_error"
	NormalizedShapeError NormalizeKind = "shape_error"
)

// Normalized is the tagged result of Normalize. Candidate is set only for
// NormalizedOK; Text always carries the fence-stripped model output.
type Normalized struct {
	Kind      NormalizeKind
	Candidate map[string]any
	Text      string
	Err       error
}

// Normalize strips Markdown code fences from raw model output and parses the
// remainder as a single JSON object. It never panics on malformed input.
func Normalize(raw string) Normalized {
	text := StripCodeFence(raw)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Normalized{Kind: NormalizedParseError, Text: text, Err: fmt.Errorf("decode model output: %w", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Normalized{Kind: NormalizedParseError, Text: text, Err: errors.New("decode model output: trailing data after JSON value")}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return Normalized{Kind: NormalizedShapeError, Text: text, Err: fmt.Errorf("model output is %s, want object", jsonKind(v))}
	}
	return Normalized{Kind: NormalizedOK, Candidate: obj, Text: text}
}

// StripCodeFence removes surrounding whitespace, one leading ``` fence with an
// optional language tag, and one trailing ``` fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimLeftFunc(rest, isFenceTagRune)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+'
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
