package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/kpi-extractor/constants"
	"github.com/joseph-ayodele/kpi-extractor/internal/entity"
)

const (
	SheetName = "KPIs"
	// extra characters added to the widest cell of each column
	widthMargin = 2
	maxColWidth = 255
)

// Service renders KPI records into XLSX workbooks.
type Service struct {
	catalog *constants.Catalog
	logger  *slog.Logger
}

func NewService(cat *constants.Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: cat, logger: logger}
}

// RenderXLSX returns a workbook (as bytes) with one header row in catalog
// order (plus File Name when withFileName) and one row per record. Numbers
// are numeric cells, dates their YYYY-MM-DD text, and Missing/NaN/NaT are
// left blank. An empty slice yields a header-only sheet.
func (s *Service) RenderXLSX(ctx context.Context, records []*entity.KpiRecord, withFileName bool) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headers := s.catalog.Header(withFileName)
	widths := make([]int, len(headers))

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		widths[i] = utf8.RuneCountInString(h)
	}
	if len(headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(SheetName, "A1", last, bold)
	}

	for r, rec := range records {
		row := r + 2
		for i, h := range headers {
			v, ok := rec.Get(h)
			if !ok || v.IsBlank() {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			var (
				value any
				text  string
			)
			if v.IsNumber() {
				value = v.Number
				text = strconv.FormatFloat(v.Number, 'f', -1, 64)
			} else {
				value = v.Text
				text = v.Text
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write %s: %w", cell, err)
			}
			if w := utf8.RuneCountInString(text); w > widths[i] {
				widths[i] = w
			}
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetName, col, col, columnWidth(w))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(records),
		"columns", len(headers),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func columnWidth(runes int) float64 {
	w := runes + widthMargin
	if w > maxColWidth {
		w = maxColWidth
	}
	return float64(w)
}
