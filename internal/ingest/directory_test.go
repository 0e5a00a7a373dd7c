package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.pdf"))
	touch(t, filepath.Join(root, "a.PDF"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, ".hidden.pdf"))
	touch(t, filepath.Join(root, ".cache", "c.pdf"))
	touch(t, filepath.Join(root, "sub", "d.pdf"))

	results, stats, err := ScanDirectory(context.Background(), root, true)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "a.PDF"),
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "sub", "d.pdf"),
	}
	if len(results) != len(want) {
		t.Fatalf("results = %v", results)
	}
	for i, w := range want {
		if results[i].Path != w || results[i].Err != "" {
			t.Fatalf("results[%d] = %+v, want %s", i, results[i], w)
		}
	}
	if stats.Matched != 3 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	all, _, err := ScanDirectory(context.Background(), root, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("without skipHidden got %d files, want 5", len(all))
	}
}

func TestScanDirectoryRequiresRoot(t *testing.T) {
	if _, _, err := ScanDirectory(context.Background(), "  ", true); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestAllowedExt(t *testing.T) {
	for ext, want := range map[string]bool{".pdf": true, "PDF": true, ".png": false, "": false} {
		if got := AllowedExt(ext); got != want {
			t.Errorf("AllowedExt(%q) = %v", ext, got)
		}
	}
}
