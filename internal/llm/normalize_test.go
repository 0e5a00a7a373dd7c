package llm

import (
	"reflect"
	"strings"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"  ```\n{\"a\":1}```  ":   `{"a":1}`,
		"```JSON5 {\"a\":1} ```":  `{"a":1}`,
		"{\"a\":1}":               `{"a":1}`,
		"\n\t not json \n":        "not json",
		"```json\n[1,2]\n```\n\n": "[1,2]",
		"```\n```":                "",
	}
	for in, want := range cases {
		if got := StripCodeFence(in); got != want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeObject(t *testing.T) {
	n := Normalize("```json\n{\"PO No.\": \"PO1\", \"Supplier\": \"Acme\"}\n```")
	if n.Kind != NormalizedOK {
		t.Fatalf("expected ok, got %s (%v)", n.Kind, n.Err)
	}
	if n.Candidate["PO No."] != "PO1" || n.Candidate["Supplier"] != "Acme" {
		t.Fatalf("unexpected candidate: %v", n.Candidate)
	}

	// normalizing the stripped text again yields the same object
	again := Normalize(n.Text)
	if again.Kind != NormalizedOK || !reflect.DeepEqual(again.Candidate, n.Candidate) {
		t.Fatalf("normalize is not idempotent: %+v vs %+v", again.Candidate, n.Candidate)
	}
	if again.Text != n.Text {
		t.Fatalf("text changed on second pass: %q vs %q", again.Text, n.Text)
	}
}

func TestNormalizeParseError(t *testing.T) {
	for _, raw := range []string{"not json", "{\"a\":", "{\"a\":1} trailing", ""} {
		n := Normalize(raw)
		if n.Kind != NormalizedParseError {
			t.Fatalf("%q: expected parse_error, got %s", raw, n.Kind)
		}
		if n.Err == nil {
			t.Fatalf("%q: expected error", raw)
		}
		if n.Candidate != nil {
			t.Fatalf("%q: candidate must be nil", raw)
		}
	}
	if n := Normalize("not json"); n.Text != "not json" {
		t.Fatalf("raw text not carried: %q", n.Text)
	}
}

func TestNormalizeShapeError(t *testing.T) {
	for raw, kind := range map[string]string{
		"```json\n[{\"a\":1}]\n```": "array",
		"42":                        "number",
		"\"text\"":                  "string",
		"null":                      "null",
	} {
		n := Normalize(raw)
		if n.Kind != NormalizedShapeError {
			t.Fatalf("%q: expected shape_error, got %s", raw, n.Kind)
		}
		if n.Err == nil || !strings.Contains(n.Err.Error(), kind) {
			t.Fatalf("%q: error %v should mention %s", raw, n.Err, kind)
		}
	}
}
