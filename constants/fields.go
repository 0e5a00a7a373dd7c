package constants

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// FieldType tags how a KPI value is coerced and rendered.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
)

const (
	// MissingValue marks a field that is recognized but was not found.
	MissingValue = "N/A"
	// FileNameField tags a record with the document it came from (batch mode).
	FileNameField = "File Name"
	// DateLayout is the canonical rendering of date-valued fields.
	DateLayout = "2006-01-02"
)

// Field is one entry of the KPI catalog.
type Field struct {
	Name    string    `yaml:"name"`
	Type    FieldType `yaml:"type"`
	Hint    string    `yaml:"hint,omitempty"`
	Key     bool      `yaml:"key,omitempty"`
	Aliases []string  `yaml:"aliases,omitempty"`
}

// Catalog is the ordered KPI field enumeration. Prompt text, coercion rules,
// store headers and export columns are all derived from it.
type Catalog struct {
	Version string  `yaml:"version"`
	Fields  []Field `yaml:"fields"`

	byKey map[string]int
	key   int
}

//go:embed fields.yaml
var defaultCatalogYAML []byte

// DefaultCatalog returns the embedded catalog. It panics if the embedded file is invalid.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded fields.yaml: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path, or returns the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and indexes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Fields) == 0 {
		return nil, errors.New("catalog has no fields")
	}

	c.byKey = make(map[string]int, len(c.Fields)*3)
	c.key = -1
	for i := range c.Fields {
		f := &c.Fields[i]
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if f.Name == FileNameField {
			return nil, fmt.Errorf("field name %q is reserved", FileNameField)
		}
		switch f.Type {
		case "":
			f.Type = FieldText
		case FieldText, FieldNumber, FieldDate:
		default:
			return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Key {
			if c.key >= 0 {
				return nil, fmt.Errorf("field %q: only one key field is allowed", f.Name)
			}
			c.key = i
		}
		for _, k := range append([]string{f.Name}, f.Aliases...) {
			nk := NormalizeKey(k)
			if nk == "" {
				continue
			}
			if prev, ok := c.byKey[nk]; ok && prev != i {
				return nil, fmt.Errorf("field %q: alias %q already used by %q", f.Name, k, c.Fields[prev].Name)
			}
			c.byKey[nk] = i
		}
	}
	if c.key < 0 {
		return nil, errors.New("catalog has no key field")
	}
	return &c, nil
}

// Names returns the canonical field names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name
	}
	return out
}

// Header is Names, plus File Name when requested.
func (c *Catalog) Header(withFileName bool) []string {
	h := c.Names()
	if withFileName {
		h = append(h, FileNameField)
	}
	return h
}

// Lookup resolves a canonical name or alias, ignoring case, punctuation and spacing.
func (c *Catalog) Lookup(name string) (Field, bool) {
	i, ok := c.byKey[NormalizeKey(name)]
	if !ok {
		return Field{}, false
	}
	return c.Fields[i], true
}

// KeyField is the field used as the record store identity (PO No.).
func (c *Catalog) KeyField() Field {
	return c.Fields[c.key]
}

// NormalizeKey folds a field label to lowercase letters and digits only.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
