package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

// explicit layouts tried before dateparse. Numeric dates are month-first;
// the day-first forms only match when the first number cannot be a month.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02-Jan-2006",
	"02-Jan-06",
	"2-Jan-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2 Jan, 2006",
	"2 January, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006/01/02",
	"02.01.2006",
}

// unit and currency tokens stripped from numeric text before parsing.
var numericAffixes = []string{"US$", "USD", "MTS", "MT", "KGS", "KG", "$"}

// Coercer maps a normalized candidate onto the KPI catalog.
type Coercer struct {
	catalog *constants.Catalog
	schema  *SchemaValidator
	logger  *slog.Logger
}

// NewCoercer builds a coercer for cat. The schema used for drift reporting is
// compiled once here.
func NewCoercer(cat *constants.Catalog, logger *slog.Logger) (*Coercer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sv, err := CompileSchema(BuildKPIJSONSchema(cat))
	if err != nil {
		return nil, fmt.Errorf("kpi schema: %w", err)
	}
	return &Coercer{catalog: cat, schema: sv, logger: logger}, nil
}

// Catalog returns the field catalog the coercer was built with.
func (c *Coercer) Catalog() *constants.Catalog { return c.catalog }

// Coerce produces a KpiRecord carrying every catalog field. Absent fields are
// Missing; numeric and date fields are parsed; keys outside the catalog are
// dropped. When fileName is non-empty the File Name field is attached.
// The result depends only on candidate, fileName and the catalog.
func (c *Coercer) Coerce(candidate map[string]any, fileName string) *entity.KpiRecord {
	rec := entity.NewKpiRecord(c.catalog.Names())

	// Sorted iteration keeps alias resolution deterministic: when a canonical
	// name and an alias both appear, the canonical name wins, then the
	// lexically first alias.
	keys := make([]string, 0, len(candidate))
	for k := range candidate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assigned := make(map[string]bool, len(c.catalog.Fields))
	var dropped []string
	resolve := func(k string, canonicalOnly bool) {
		f, ok := c.catalog.Lookup(k)
		if !ok {
			if !canonicalOnly && k != constants.FileNameField {
				dropped = append(dropped, k)
			}
			return
		}
		isCanonical := constants.NormalizeKey(k) == constants.NormalizeKey(f.Name)
		if canonicalOnly != isCanonical || assigned[f.Name] {
			return
		}
		v := coerceValue(f, candidate[k])
		if v.Kind == entity.ValueMissing {
			return
		}
		rec.Set(f.Name, v)
		assigned[f.Name] = true
	}
	for _, k := range keys {
		resolve(k, true)
	}
	for _, k := range keys {
		resolve(k, false)
	}

	if fileName != "" {
		rec.Set(constants.FileNameField, entity.Text(fileName))
	}
	if len(dropped) > 0 {
		c.logger.Debug("llm.coerce.dropped_keys", "keys", dropped)
	}
	return rec
}

// SchemaDrift reports how candidate deviates from the catalog schema, or ""
// when it conforms. It is informational; Coerce never rejects a candidate.
func (c *Coercer) SchemaDrift(candidate map[string]any) string {
	b, err := json.Marshal(candidate)
	if err != nil {
		return err.Error()
	}
	if err := c.schema.Validate(b); err != nil {
		return err.Error()
	}
	return ""
}

func coerceValue(f constants.Field, raw any) entity.Value {
	if isMissing(raw) {
		return entity.Missing()
	}
	switch f.Type {
	case constants.FieldNumber:
		return coerceNumber(raw)
	case constants.FieldDate:
		return coerceDate(raw)
	default:
		return coerceText(raw)
	}
}

func isMissing(raw any) bool {
	switch t := raw.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || strings.EqualFold(s, constants.MissingValue) || strings.EqualFold(s, "null")
	}
	return false
}

func coerceNumber(raw any) entity.Value {
	var f float64
	var err error
	switch t := raw.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		f, err = parseNumericText(t)
	default:
		return entity.NaN()
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return entity.NaN()
	}
	return entity.Number(f)
}

func parseNumericText(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, a := range numericAffixes {
		if len(s) >= len(a) && strings.EqualFold(s[:len(a)], a) {
			s = s[len(a):]
		}
		if len(s) >= len(a) && strings.EqualFold(s[len(s)-len(a):], a) {
			s = s[:len(s)-len(a)]
		}
		s = strings.TrimSpace(s)
	}
	s = strings.ReplaceAll(s, " ", "")
	if !thousandsGrouped(s) {
		return 0, fmt.Errorf("ambiguous digit grouping in %q", s)
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

// thousandsGrouped reports whether every comma in s separates groups of three
// digits in the integer part. "1.234,50" and "1,5" are rejected rather than
// read as 1.2345 and 15.
func thousandsGrouped(s string) bool {
	if !strings.Contains(s, ",") {
		return true
	}
	intPart := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		if strings.Contains(s[i:], ",") {
			return false
		}
	}
	intPart = strings.TrimLeft(intPart, "+-")
	groups := strings.Split(intPart, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func coerceDate(raw any) entity.Value {
	s, ok := raw.(string)
	if !ok {
		return entity.NaT()
	}
	t, err := parseDate(strings.TrimSpace(s))
	if err != nil {
		return entity.NaT()
	}
	return entity.Date(t)
}

// minDateYear rejects parses that carried no real year, such as "12:30".
const minDateYear = 1000

func parseDate(s string) (time.Time, error) {
	t, err := parseDateAny(s)
	if err != nil {
		return time.Time{}, err
	}
	if t.Year() < minDateYear {
		return time.Time{}, fmt.Errorf("date %q has no year", s)
	}
	return t, nil
}

func parseDateAny(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseIn(s, time.UTC)
}

func coerceText(raw any) entity.Value {
	switch t := raw.(type) {
	case string:
		return entity.Text(strings.TrimSpace(t))
	case json.Number:
		return entity.Text(t.String())
	case bool:
		return entity.Text(strconv.FormatBool(t))
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return entity.Text(fmt.Sprint(t))
		}
		return entity.Text(string(b))
	}
}
