package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/export"
	"github.com/joseph-ayodele/kpi-extractor/internal/llm"
	"github.com/joseph-ayodele/kpi-extractor/internal/pipeline"
	"github.com/joseph-ayodele/kpi-extractor/internal/repository"
	"github.com/joseph-ayodele/kpi-extractor/internal/staging"
)

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Provider() string { return "Gemini" }

func (s *stubExtractor) ExtractDocuments(context.Context, string, []llm.Document) (string, error) {
	return s.text, s.err
}

func newTestServer(t *testing.T, ex *stubExtractor) http.Handler {
	t.Helper()
	cat := constants.DefaultCatalog()
	stager, err := staging.NewStager(staging.Config{Dir: t.TempDir(), MaxBytes: 1 << 20}, nil)
	if err != nil {
		t.Fatal(err)
	}
	coercer, err := llm.NewCoercer(cat, nil)
	if err != nil {
		t.Fatal(err)
	}
	artifacts := export.NewArtifacts(filepath.Join(t.TempDir(), "extracted_kpis.xlsx"), export.NewService(cat, nil), nil)
	p := pipeline.NewPipeline(nil, pipeline.Config{}, stager, ex, coercer, artifacts)
	store := repository.NewCSVStore(filepath.Join(t.TempDir(), "KPI_Entries.csv"), cat, nil)
	return NewServer(p, store, 4<<20, nil).Routes()
}

func multipartBody(t *testing.T, field string, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, n := range names {
		fw, err := mw.CreateFormFile(field, n)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.WriteString(fw, "%PDF-1.4\n%fake\n")
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func upload(t *testing.T, h http.Handler, path string, names ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, "files", names...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return do(t, h, req)
}

func TestRoot(t *testing.T) {
	h := newTestServer(t, &stubExtractor{})
	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || body["message"] != "KPI Extraction API is running!" {
		t.Fatalf("root = %d %v", rec.Code, body)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	h := newTestServer(t, &stubExtractor{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.test")
	rec, _ := do(t, h, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestExtractKPIReturnsRecord(t *testing.T) {
	h := newTestServer(t, &stubExtractor{text: "```json\n{\"PO Number\": \"PO-7\", \"Net Weight (MT)\": \"24.5 MT\"}\n```"})
	rec, body := upload(t, h, "/extract_kpi/", "a.pdf")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if body["PO No."] != "PO-7" || body["Net Weight"] != 24.5 {
		t.Fatalf("record = %v", body)
	}
	if body["Supplier"] != "N/A" {
		t.Fatalf("missing field = %v, want N/A", body["Supplier"])
	}
	if _, ok := body["File Name"]; ok {
		t.Fatal("single extraction must not carry File Name")
	}
}

func TestExtractKPIParseErrorCarriesRawResponse(t *testing.T) {
	h := newTestServer(t, &stubExtractor{text: "not json"})
	rec, body := upload(t, h, "/extract_kpi/", "a.pdf")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["error"] != "Failed to parse JSON response" || body["raw_response"] != "not json" {
		t.Fatalf("body = %v", body)
	}
}

func TestExtractKPIUpstreamError(t *testing.T) {
	h := newTestServer(t, &stubExtractor{err: errors.New("quota exceeded")})
	_, body := upload(t, h, "/extract_kpi/", "a.pdf")
	if body["error"] != "Error processing with Gemini: quota exceeded" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["raw_response"]; ok {
		t.Fatal("upstream error must not carry raw_response")
	}
}

func TestExtractKPIRejectsBadUploads(t *testing.T) {
	h := newTestServer(t, &stubExtractor{text: "{}"})

	body, ct := multipartBody(t, "other", "a.pdf")
	req := httptest.NewRequest(http.MethodPost, "/extract_kpi/", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := do(t, h, req)
	if rec.Code != http.StatusBadRequest || !strings.HasPrefix(resp["error"].(string), "File processing error: ") {
		t.Fatalf("no files = %d %v", rec.Code, resp)
	}

	rec, resp = upload(t, h, "/extract_kpi/", "notes.txt")
	if rec.Code != http.StatusBadRequest || !strings.HasPrefix(resp["error"].(string), "File processing error: ") {
		t.Fatalf("non-pdf = %d %v", rec.Code, resp)
	}
}

func TestDownloadBeforeAndAfterBatch(t *testing.T) {
	h := newTestServer(t, &stubExtractor{text: `{"PO No.": "PO-9", "Supplier": "Acme"}`})

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/download_excel/", nil))
	if body["error"] == nil {
		t.Fatalf("download before extraction = %v", body)
	}

	rec, body := upload(t, h, "/extract_kpi_multiple/", "first.pdf", "second.pdf")
	if rec.Code != http.StatusOK || body["excel_url"] != "/download_excel/" {
		t.Fatalf("batch = %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/download_excel/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, downloadName) {
		t.Fatalf("content disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows = %v, %v", rows, err)
	}
	last := len(rows[0]) - 1
	if rows[0][last] != "File Name" || len(rows[1]) <= last || rows[1][last] != "first.pdf" {
		t.Fatalf("file name column = %v / %v", rows[0], rows[1])
	}
}

func TestBatchFailureDoesNotPublish(t *testing.T) {
	h := newTestServer(t, &stubExtractor{text: "[1, 2]"})
	_, body := upload(t, h, "/extract_kpi_multiple/", "a.pdf")
	if body["raw_response"] != "[1, 2]" {
		t.Fatalf("body = %v", body)
	}
	_, body = do(t, h, httptest.NewRequest(http.MethodGet, "/download_excel/", nil))
	if body["error"] == nil {
		t.Fatalf("download after failed batch = %v", body)
	}
}

func TestSaveAndGetKPIs(t *testing.T) {
	h := newTestServer(t, &stubExtractor{})

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/get_kpis/", nil))
	if body["error"] != "CSV file not found." {
		t.Fatalf("get before save = %v", body)
	}

	save := func(payload string) map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/save_kpis/", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		_, b := do(t, h, req)
		return b
	}
	if b := save(`{"PO No.": "PO1", "Supplier": "Acme", "PO Rate": 12.5}`); b["message"] != msgSaved {
		t.Fatalf("first save = %v", b)
	}
	if b := save(`{"PO No.": "PO1", "Supplier": "Other"}`); b["message"] != msgDuplicate {
		t.Fatalf("second save = %v", b)
	}
	if b := save(`{"Supplier": "NoKey"}`); b["error"] == nil {
		t.Fatalf("save without key = %v", b)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_kpis/", nil))
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode rows: %v: %s", err, rec.Body)
	}
	if len(rows) != 1 || rows[0]["PO No."] != "PO1" || rows[0]["Supplier"] != "Acme" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestSaveRejectsMalformedJSON(t *testing.T) {
	h := newTestServer(t, &stubExtractor{})
	req := httptest.NewRequest(http.MethodPost, "/save_kpis/", strings.NewReader("{nope"))
	rec, body := do(t, h, req)
	if rec.Code != http.StatusBadRequest || body["error"] == nil {
		t.Fatalf("malformed = %d %v", rec.Code, body)
	}
}
