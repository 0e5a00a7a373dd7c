package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

// CSVStore keeps records in a single comma-separated file. The mutex is held
// across read-check-append so concurrent requests cannot both insert a key.
type CSVStore struct {
	path    string
	catalog *constants.Catalog
	mu      sync.Mutex
	logger  *slog.Logger
}

func NewCSVStore(path string, cat *constants.Catalog, logger *slog.Logger) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{path: path, catalog: cat, logger: logger}
}

func (s *CSVStore) Append(ctx context.Context, rec *entity.KpiRecord) (AppendOutcome, error) {
	key, err := recordKey(s.catalog, rec)
	if err != nil {
		return Saved, err
	}
	if err := ctx.Err(); err != nil {
		return Saved, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	header, rows, err := s.read()
	if err != nil && !errors.Is(err, ErrStoreNotFound) {
		return Saved, err
	}

	fresh := len(header) == 0
	if fresh {
		header = s.catalog.Names()
	}
	fields := s.canonicalColumns(header)
	keyCol := indexOf(fields, s.catalog.KeyField().Name)
	if keyCol < 0 {
		return Saved, fmt.Errorf("csv store %s: header has no %q column", s.path, s.catalog.KeyField().Name)
	}
	for _, r := range rows {
		if keyCol < len(r) && strings.TrimSpace(r[keyCol]) == key {
			s.logger.Info("store.csv.duplicate", "key", key)
			return Duplicate, nil
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Saved, fmt.Errorf("open csv store: %w", err)
	}
	w := csv.NewWriter(f)
	if fresh {
		_ = w.Write(header)
	}
	_ = w.Write(rec.Cells(fields))
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return Saved, fmt.Errorf("write csv store: %w", err)
	}
	if err := f.Close(); err != nil {
		return Saved, fmt.Errorf("close csv store: %w", err)
	}

	s.logger.Info("store.csv.append",
		"key", key,
		"rows", len(rows)+1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Saved, nil
}

func (s *CSVStore) ReadAll(ctx context.Context) ([]entity.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	header, rows, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]entity.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, entity.NewRow(header, r))
	}
	return out, nil
}

func (s *CSVStore) Close() error { return nil }

// read returns the header and data rows. An empty file yields a nil header.
func (s *CSVStore) read() ([]string, [][]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open csv store: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv rows: %w", err)
	}
	return header, rows, nil
}

// canonicalColumns maps each header column to its catalog field name, so a
// file written with alias headers such as "PO Rate (USD)" still receives the
// PO Rate value. Unknown columns map to "" and are left empty.
func (s *CSVStore) canonicalColumns(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if constants.NormalizeKey(h) == constants.NormalizeKey(constants.FileNameField) {
			out[i] = constants.FileNameField
			continue
		}
		if f, ok := s.catalog.Lookup(h); ok {
			out[i] = f.Name
		}
	}
	return out
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
