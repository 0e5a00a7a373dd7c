package entity

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestNewKpiRecordFillsMissing(t *testing.T) {
	r := NewKpiRecord([]string{"PO No.", "Supplier"})

	for _, f := range []string{"PO No.", "Supplier"} {
		v, ok := r.Get(f)
		if !ok || v.Kind != ValueMissing {
			t.Fatalf("%s: expected missing, got %+v (ok=%t)", f, v, ok)
		}
	}
	if got := r.Fields(); len(got) != 2 || got[0] != "PO No." {
		t.Fatalf("unexpected fields: %v", got)
	}
}

func TestKpiRecordJSONOrderAndKinds(t *testing.T) {
	r := NewKpiRecord([]string{"PO No.", "PO Rate", "BL Date", "Net Weight", "Invoice Date", "Supplier"})
	r.Set("PO No.", Text("PO1"))
	r.Set("PO Rate", Number(1234.5))
	r.Set("BL Date", Date(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)))
	r.Set("Net Weight", NaN())
	r.Set("Invoice Date", NaT())
	r.Set("File Name", Text("a.pdf"))

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"PO No.":"PO1","PO Rate":1234.5,"BL Date":"2024-05-06","Net Weight":null,"Invoice Date":null,"Supplier":"N/A","File Name":"a.pdf"}`
	if string(b) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", b, want)
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Missing(), "N/A"},
		{Text("Acme"), "Acme"},
		{Number(12), "12"},
		{Number(0.125), "0.125"},
		{NaN(), ""},
		{NaT(), ""},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Fatalf("%s: got %q, want %q", c.v.Kind, got, c.want)
		}
	}
	if b, _ := json.Marshal(Number(math.Inf(1))); string(b) != "null" {
		t.Fatalf("infinite number should marshal as null, got %s", b)
	}
}

func TestCellsAndRow(t *testing.T) {
	r := NewKpiRecord([]string{"A", "B"})
	r.Set("A", Text("x"))

	cells := r.Cells([]string{"B", "A", "C"})
	if cells[0] != "N/A" || cells[1] != "x" || cells[2] != "" {
		t.Fatalf("unexpected cells: %q", cells)
	}

	row := NewRow([]string{"A", "B", "C"}, []string{"1", "2"})
	if row.Get("C") != "" || row.Get("B") != "2" {
		t.Fatalf("unexpected row: %+v", row)
	}
	b, _ := json.Marshal(row)
	if string(b) != `{"A":"1","B":"2","C":""}` {
		t.Fatalf("unexpected row json: %s", b)
	}
}
