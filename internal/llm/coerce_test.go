package llm

import (
	"encoding/json"
	"testing"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

func newTestCoercer(t *testing.T) *Coercer {
	t.Helper()
	c, err := NewCoercer(constants.DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("NewCoercer: %v", err)
	}
	return c
}

func candidate(t *testing.T, raw string) map[string]any {
	t.Helper()
	n := Normalize(raw)
	if n.Kind != NormalizedOK {
		t.Fatalf("normalize %q: %s %v", raw, n.Kind, n.Err)
	}
	return n.Candidate
}

func mustGet(t *testing.T, r *entity.KpiRecord, field string) entity.Value {
	t.Helper()
	v, ok := r.Get(field)
	if !ok {
		t.Fatalf("field %q absent", field)
	}
	return v
}

func TestCoerceFillsMissingFields(t *testing.T) {
	c := newTestCoercer(t)
	rec := c.Coerce(candidate(t, `{"PO No.": "PO1", "Supplier": "Acme"}`), "")

	if got := rec.Fields(); len(got) != len(c.Catalog().Fields) {
		t.Fatalf("expected %d fields, got %d: %v", len(c.Catalog().Fields), len(got), got)
	}
	if v := mustGet(t, rec, "PO No."); v.Kind != entity.ValueText || v.Text != "PO1" {
		t.Fatalf("PO No.: %+v", v)
	}
	if v := mustGet(t, rec, "Supplier"); v.Text != "Acme" {
		t.Fatalf("Supplier: %+v", v)
	}
	for _, name := range c.Catalog().Names() {
		if name == "PO No." || name == "Supplier" {
			continue
		}
		if v := mustGet(t, rec, name); v.Kind != entity.ValueMissing {
			t.Fatalf("%s: expected missing, got %+v", name, v)
		}
	}
	if _, ok := rec.Get(constants.FileNameField); ok {
		t.Fatal("File Name must not be attached without a filename")
	}
}

func TestCoerceNumbersAndDates(t *testing.T) {
	c := newTestCoercer(t)
	rec := c.Coerce(candidate(t, `{
		"PO No.": "PO1",
		"PO Rate": "1234.5",
		"Qty Shipped": "1,250.75 MT",
		"Net Weight": 24.5,
		"Gross Weight": "about twenty",
		"Acceptance Amount": "USD 98,000",
		"Total No. of Containers": true,
		"BL Date": "05/06/2024",
		"Invoice Date": "unknown"
	}`), "")

	numbers := map[string]float64{
		"PO Rate":           1234.5,
		"Qty Shipped":       1250.75,
		"Net Weight":        24.5,
		"Acceptance Amount": 98000,
	}
	for field, want := range numbers {
		v := mustGet(t, rec, field)
		if v.Kind != entity.ValueNumber || v.Number != want {
			t.Fatalf("%s: got %+v, want %v", field, v, want)
		}
	}
	for _, field := range []string{"Gross Weight", "Total No. of Containers"} {
		if v := mustGet(t, rec, field); v.Kind != entity.ValueNaN {
			t.Fatalf("%s: expected NaN, got %+v", field, v)
		}
	}
	if v := mustGet(t, rec, "BL Date"); v.Kind != entity.ValueDate || v.Text != "2024-05-06" {
		t.Fatalf("BL Date: %+v", v)
	}
	if v := mustGet(t, rec, "Invoice Date"); v.Kind != entity.ValueNaT {
		t.Fatalf("Invoice Date: expected NaT, got %+v", v)
	}
}

func TestCoerceRejectsAmbiguousNumbers(t *testing.T) {
	c := newTestCoercer(t)
	for _, in := range []string{"1.234,50", "1,5", "12,34,567", "1,234.5 USD/MT", "USD/MT 1,234.5"} {
		rec := c.Coerce(map[string]any{"PO Rate": in}, "")
		if v := mustGet(t, rec, "PO Rate"); v.Kind != entity.ValueNaN {
			t.Fatalf("%q: expected NaN, got %+v", in, v)
		}
	}
	for in, want := range map[string]float64{"1,234.50": 1234.5, "-1,000": -1000, "98,000 USD": 98000, "0.5": 0.5} {
		rec := c.Coerce(map[string]any{"PO Rate": in}, "")
		if v := mustGet(t, rec, "PO Rate"); v.Kind != entity.ValueNumber || v.Number != want {
			t.Fatalf("%q: got %+v, want %v", in, v, want)
		}
	}
}

func TestCoerceNonNumericTextNeverPanics(t *testing.T) {
	c := newTestCoercer(t)
	inputs := []any{"abc", "12abc", "--", "$", "1.2.3", map[string]any{"x": 1}, []any{1}, false}
	for _, in := range inputs {
		rec := c.Coerce(map[string]any{"PO Rate": in}, "")
		if v := mustGet(t, rec, "PO Rate"); v.Kind != entity.ValueNaN {
			t.Fatalf("%v: expected NaN, got %+v", in, v)
		}
	}
}

func TestCoerceDateLayouts(t *testing.T) {
	cases := map[string]string{
		"2024-05-06":  "2024-05-06",
		"5/6/2024":    "2024-05-06",
		"06-May-2024": "2024-05-06",
		"6 May 2024":  "2024-05-06",
		"May 6, 2024": "2024-05-06",
		"2024/05/06":  "2024-05-06",
		"05/06/2024":  "2024-05-06",
		"05-06-2024":  "2024-05-06",
		"31/12/2024":  "2024-12-31",
		"31-12-2024":  "2024-12-31",
		"5 May, 2024": "2024-05-05",
	}
	c := newTestCoercer(t)
	for in, want := range cases {
		rec := c.Coerce(map[string]any{"BL Date": in}, "")
		if v := mustGet(t, rec, "BL Date"); v.Kind != entity.ValueDate || v.Text != want {
			t.Fatalf("%q: got %+v, want %s", in, v, want)
		}
	}
}

func TestCoerceDateWithoutYearIsNaT(t *testing.T) {
	c := newTestCoercer(t)
	for _, in := range []string{"12:30", "1/", "2.2.", "0012-01-01"} {
		rec := c.Coerce(map[string]any{"BL Date": in}, "")
		if v := mustGet(t, rec, "BL Date"); v.Kind != entity.ValueNaT {
			t.Fatalf("%q: expected NaT, got %+v", in, v)
		}
	}
}

func TestCoerceAliasesAndDroppedKeys(t *testing.T) {
	c := newTestCoercer(t)
	rec := c.Coerce(candidate(t, `{
		"PO No.": "A-1",
		"PO Number": "B-2",
		"Net Weight (MT)": "20",
		"FLC No": "LC-9",
		"Invoice Date": "N/A",
		"Invoice No": 12345,
		"Remarks": "ignored",
		"File Name": "model-made.pdf"
	}`), "")

	if v := mustGet(t, rec, "PO No."); v.Text != "A-1" {
		t.Fatalf("canonical name should win over alias: %+v", v)
	}
	if v := mustGet(t, rec, "Net Weight"); v.Number != 20 {
		t.Fatalf("Net Weight alias: %+v", v)
	}
	if v := mustGet(t, rec, "LC No."); v.Text != "LC-9" {
		t.Fatalf("LC No. alias: %+v", v)
	}
	if v := mustGet(t, rec, "Invoice No."); v.Kind != entity.ValueText || v.Text != "12345" {
		t.Fatalf("Invoice No. alias: %+v", v)
	}
	if v := mustGet(t, rec, "Invoice Date"); v.Kind != entity.ValueMissing {
		t.Fatalf("N/A should stay missing: %+v", v)
	}
	for _, f := range rec.Fields() {
		if f == "Remarks" || f == "PO Number" || f == constants.FileNameField {
			t.Fatalf("unexpected field %q retained", f)
		}
	}
}

func TestCoerceAliasFillsMissingCanonical(t *testing.T) {
	c := newTestCoercer(t)
	rec := c.Coerce(map[string]any{"PO No.": "N/A", "PO Number": "B-2"}, "")
	if v := mustGet(t, rec, "PO No."); v.Text != "B-2" {
		t.Fatalf("alias should fill a missing canonical value: %+v", v)
	}
}

func TestCoerceAttachesFileName(t *testing.T) {
	c := newTestCoercer(t)
	rec := c.Coerce(map[string]any{"PO No.": "PO1"}, "first.pdf")
	v := mustGet(t, rec, constants.FileNameField)
	if v.Text != "first.pdf" {
		t.Fatalf("File Name: %+v", v)
	}
	fields := rec.Fields()
	if fields[len(fields)-1] != constants.FileNameField {
		t.Fatalf("File Name should be the last field: %v", fields)
	}
}

func TestCoerceIsDeterministic(t *testing.T) {
	c := newTestCoercer(t)
	raw := `{"PO No":"X","PO Number":"Y","Purchase Order No.":"Z","Rate":"5","PO Rate USD":"6","Extra":1}`
	first, err := json.Marshal(c.Coerce(candidate(t, raw), "a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		got, _ := json.Marshal(c.Coerce(candidate(t, raw), "a.pdf"))
		if string(got) != string(first) {
			t.Fatalf("run %d differs:\n%s\n%s", i, got, first)
		}
	}
}

func TestSchemaDrift(t *testing.T) {
	c := newTestCoercer(t)
	if d := c.SchemaDrift(candidate(t, `{"PO No.":"PO1","PO Rate":12.5,"BL Date":null}`)); d != "" {
		t.Fatalf("expected no drift, got %s", d)
	}
	if d := c.SchemaDrift(candidate(t, `{"PO No.":"PO1","Remarks":"x"}`)); d == "" {
		t.Fatal("expected drift for unknown key")
	}
	if d := c.SchemaDrift(candidate(t, `{"Supplier":{"name":"Acme"}}`)); d == "" {
		t.Fatal("expected drift for nested object")
	}
}
