package entity

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/joseph-ayodele/kpi-extractor/constants"
)

// ValueKind tags the state of one KPI value after coercion.
type ValueKind int

const (
	ValueMissing ValueKind = iota // recognized but not found ("N/A")
	ValueText
	ValueNumber
	ValueDate
	ValueNaN // numeric field whose text did not parse
	ValueNaT // date field whose text did not parse
)

func (k ValueKind) String() string {
	switch k {
	case ValueMissing:
		return "missing"
	case ValueText:
		return "text"
	case ValueNumber:
		return "number"
	case ValueDate:
		return "date"
	case ValueNaN:
		return "nan"
	case ValueNaT:
		return "nat"
	default:
		return "unknown"
	}
}

// Value is a single KPI cell.
type Value struct {
	Kind   ValueKind
	Text   string  // text fields and canonical YYYY-MM-DD dates
	Number float64 // numeric fields
}

func Missing() Value         { return Value{Kind: ValueMissing} }
func Text(s string) Value    { return Value{Kind: ValueText, Text: s} }
func Number(f float64) Value { return Value{Kind: ValueNumber, Number: f} }
func NaN() Value             { return Value{Kind: ValueNaN} }
func NaT() Value             { return Value{Kind: ValueNaT} }
func Date(t time.Time) Value { return Value{Kind: ValueDate, Text: t.Format(constants.DateLayout)} }
func (v Value) IsBlank() bool {
	return v.Kind == ValueMissing || v.Kind == ValueNaN || v.Kind == ValueNaT
}
func (v Value) IsNumber() bool { return v.Kind == ValueNumber }

// String renders the value as a flat-file cell. Missing keeps the sentinel;
// NaN and NaT render empty.
func (v Value) String() string {
	switch v.Kind {
	case ValueMissing:
		return constants.MissingValue
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueText, ValueDate:
		return v.Text
	default:
		return ""
	}
}

// MarshalJSON renders Missing as "N/A", NaN/NaT as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueMissing:
		return json.Marshal(constants.MissingValue)
	case ValueNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Number)
	case ValueText, ValueDate:
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// KpiRecord maps field names to values, preserving field order.
type KpiRecord struct {
	fields []string
	values map[string]Value
}

// NewKpiRecord creates a record with every field set to Missing.
func NewKpiRecord(fields []string) *KpiRecord {
	r := &KpiRecord{
		fields: make([]string, 0, len(fields)+1),
		values: make(map[string]Value, len(fields)+1),
	}
	for _, f := range fields {
		r.Set(f, Missing())
	}
	return r
}

// Set assigns a value, appending the field if it is new.
func (r *KpiRecord) Set(field string, v Value) {
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = v
}

// Get returns the value for field.
func (r *KpiRecord) Get(field string) (Value, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields returns field names in insertion order.
func (r *KpiRecord) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Cells renders the record as flat-file cells for the given header.
// Columns the record does not carry render empty.
func (r *KpiRecord) Cells(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if v, ok := r.values[h]; ok {
			out[i] = v.String()
		}
	}
	return out
}

// MarshalJSON writes an object whose keys follow field order.
func (r *KpiRecord) MarshalJSON() ([]byte, error) {
	return marshalOrdered(r.fields, func(k string) any { return r.values[k] })
}

// Row is one stored record as read back from a record store.
type Row struct {
	Columns []string
	Values  map[string]string
}

// NewRow pairs header columns with cells; missing trailing cells read as "".
func NewRow(header, cells []string) Row {
	row := Row{Columns: header, Values: make(map[string]string, len(header))}
	for i, h := range header {
		if i < len(cells) {
			row.Values[h] = cells[i]
		} else {
			row.Values[h] = ""
		}
	}
	return row
}

// Get returns the cell for column.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// MarshalJSON writes an object whose keys follow column order.
func (r Row) MarshalJSON() ([]byte, error) {
	return marshalOrdered(r.Columns, func(k string) any { return r.Values[k] })
}

func marshalOrdered(keys []string, value func(string) any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(value(k))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
